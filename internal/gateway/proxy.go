package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"folioagent/pkg/auth"
	"folioagent/pkg/errors"
	"folioagent/pkg/logger"
)

// Upstream agent paths
const (
	AgentChatPath   = "/chat"
	AgentStreamPath = "/chat/stream"
	AgentHealthPath = "/health"
)

const maxUnaryBody = 8 << 20

// Identity is the authenticated caller forwarded to the agent
type Identity struct {
	UserID string
	Token  string
}

// UnaryResult is the agent's status and JSON body
type UnaryResult struct {
	Status int
	Body   json.RawMessage
}

// Proxy relays requests to the agent process over HTTP
type Proxy struct {
	baseURL    string
	userHeader string
	client     *http.Client
	stream     *http.Client
	log        *logger.Logger
}

// NewProxy creates a proxy to baseURL. An empty baseURL leaves it unconfigured.
// timeout bounds unary calls only; streams live as long as their context.
func NewProxy(baseURL string, timeout time.Duration, userHeader string, log *logger.Logger) *Proxy {
	if userHeader == "" {
		userHeader = "X-User-Id"
	}
	return &Proxy{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		userHeader: userHeader,
		client:     &http.Client{Timeout: timeout},
		stream:     &http.Client{},
		log:        log.With("component", "agent_proxy"),
	}
}

// Configured reports whether an upstream agent URL is set
func (p *Proxy) Configured() bool {
	return p != nil && p.baseURL != ""
}

// Unary forwards one request and returns the agent's status with its JSON body.
// A non-JSON response is wrapped as {"error": text}.
func (p *Proxy) Unary(ctx context.Context, method, path string, body []byte, id Identity) (*UnaryResult, error) {
	if !p.Configured() {
		return nil, errors.Wrap(errors.ErrNotConfigured, "agent url")
	}

	req, err := p.newRequest(ctx, method, path, body, id)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrUnavailable, "agent %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUnaryBody))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrUnavailable, "read agent response: %v", err)
	}

	if isJSON(resp.Header.Get("Content-Type")) && json.Valid(raw) {
		return &UnaryResult{Status: resp.StatusCode, Body: raw}, nil
	}

	wrapped, _ := json.Marshal(map[string]string{"error": strings.TrimSpace(string(raw))})
	return &UnaryResult{Status: resp.StatusCode, Body: wrapped}, nil
}

// OpenStream starts an SSE request to the agent. The caller owns the response body.
// Cancelling ctx aborts the upstream request.
func (p *Proxy) OpenStream(ctx context.Context, path string, body []byte, id Identity) (*http.Response, error) {
	if !p.Configured() {
		return nil, errors.Wrap(errors.ErrNotConfigured, "agent url")
	}

	req, err := p.newRequest(ctx, http.MethodPost, path, body, id)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := p.stream.Do(req)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrUnavailable, "agent stream: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &errors.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return resp, nil
}

func (p *Proxy) newRequest(ctx context.Context, method, path string, body []byte, id Identity) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, rdr)
	if err != nil {
		return nil, errors.Wrap(err, "build agent request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h := auth.BearerHeader(id.Token); h != "" {
		req.Header.Set("Authorization", h)
	}
	if id.UserID != "" {
		req.Header.Set(p.userHeader, id.UserID)
	}
	return req, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
