package sentry

import (
	"context"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"

	"folioagent/pkg/errors"
)

const flushTimeout = 2 * time.Second

// sensitiveHeaders are stripped from request data before an event leaves the process
var sensitiveHeaders = []string{"Authorization", "Cookie", "Impersonation-Id"}

// Options configure the Sentry client
type Options struct {
	DSN         string
	Environment string
	Release     string
	// Service tags every event with the process role (agent, gateway or cli)
	Service string
}

// Tracker reports errors to Sentry
type Tracker struct {
	hub     *sentry.Hub
	service string
}

var _ errors.Tracker = (*Tracker)(nil)

// New initializes the Sentry client
func New(opts Options) (*Tracker, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		AttachStacktrace: true,
		BeforeSend:       scrub,
	})
	if err != nil {
		return nil, errors.Wrap(err, "sentry init")
	}

	return &Tracker{hub: sentry.CurrentHub(), service: opts.Service}, nil
}

// CaptureError reports err with tags and the user id carried by ctx
func (t *Tracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	hub := t.scoped(ctx, tags)
	hub.CaptureException(err)
	return nil
}

// CaptureMessage reports a message at level
func (t *Tracker) CaptureMessage(ctx context.Context, message string, level errors.Level, tags map[string]string) error {
	hub := t.scoped(ctx, tags)
	hub.Scope().SetLevel(convertLevel(level))
	hub.CaptureMessage(message)
	return nil
}

// Flush waits for pending events, bounded by ctx's deadline
func (t *Tracker) Flush(ctx context.Context) error {
	timeout := flushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if !sentry.Flush(timeout) {
		return errors.Wrap(errors.ErrTimeout, "sentry flush")
	}
	return nil
}

// scoped clones the hub so tags never leak between concurrent turns
func (t *Tracker) scoped(ctx context.Context, tags map[string]string) *sentry.Hub {
	hub := t.hub.Clone()
	scope := hub.Scope()
	scope.SetTag("service", t.service)
	for k, v := range tags {
		scope.SetTag(k, v)
	}
	if userID, ok := errors.UserIDFromContext(ctx); ok {
		scope.SetUser(sentry.User{ID: userID})
	}
	return hub
}

func scrub(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event.Request != nil {
		for _, h := range sensitiveHeaders {
			delete(event.Request.Headers, h)
			delete(event.Request.Headers, http.CanonicalHeaderKey(h))
		}
		event.Request.Cookies = ""
	}
	return event
}

func convertLevel(level errors.Level) sentry.Level {
	switch level {
	case errors.LevelWarning:
		return sentry.LevelWarning
	case errors.LevelError:
		return sentry.LevelError
	default:
		return sentry.LevelInfo
	}
}
