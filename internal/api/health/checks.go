package health

import (
	"context"
	"net/http"
	"time"

	"folioagent/pkg/errors"
)

// Pinger is anything with a connectivity probe, such as the Redis and ClickHouse clients
type Pinger interface {
	Health(ctx context.Context) error
}

// PingCheck probes a client's Health method
func PingCheck(name string, p Pinger, critical bool) Check {
	return Check{Name: name, Critical: critical, Probe: p.Health}
}

// CredentialCheck reports whether an LLM provider is configured
func CredentialCheck(configured func() bool) Check {
	return Check{
		Name: "llm",
		Probe: func(context.Context) error {
			if !configured() {
				return errors.Wrap(errors.ErrNotConfigured, "llm credential")
			}
			return nil
		},
	}
}

// UpstreamCheck GETs url and treats any response below 500 as reachable.
// An empty url reports not configured.
func UpstreamCheck(name, url string, timeout time.Duration) Check {
	client := &http.Client{Timeout: timeout}
	return Check{
		Name: name,
		Probe: func(ctx context.Context) error {
			if url == "" {
				return errors.Wrap(errors.ErrNotConfigured, name)
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return errors.Wrap(err, "build health request")
			}
			resp, err := client.Do(req)
			if err != nil {
				return errors.Wrapf(errors.ErrUnavailable, "%s: %v", name, err)
			}
			resp.Body.Close()
			if resp.StatusCode >= http.StatusInternalServerError {
				return &errors.StatusError{StatusCode: resp.StatusCode}
			}
			return nil
		},
	}
}
