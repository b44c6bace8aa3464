package portfolio

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domain "folioagent/internal/domain/portfolio"
	"folioagent/pkg/auth"
	"folioagent/pkg/errors"
	"folioagent/pkg/logger"
)

const (
	detailsPath     = "/api/v1/portfolio/details"
	performancePath = "/api/v2/portfolio/performance"

	impersonationHeader = "Impersonation-Id"
	maxErrorBody        = 512
)

// Client reads portfolio data from the wealth application's REST API.
// It never issues writes.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

var _ domain.Provider = (*Client)(nil)

// NewClient creates a client for the API rooted at baseURL
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With("component", "portfolio_client"),
	}
}

// GetDetails fetches holdings for the caller
func (c *Client) GetDetails(ctx context.Context, q domain.Query) (*domain.Details, error) {
	var out domain.Details
	if err := c.get(ctx, detailsPath, q, &out); err != nil {
		return nil, errors.Wrap(err, "get portfolio details")
	}
	if out.Holdings == nil {
		out.Holdings = map[string]domain.Position{}
	}
	return &out, nil
}

// GetPerformance fetches the performance series for the caller
func (c *Client) GetPerformance(ctx context.Context, q domain.Query) (*domain.PerformanceResult, error) {
	var out domain.PerformanceResult
	if err := c.get(ctx, performancePath, q, &out); err != nil {
		return nil, errors.Wrap(err, "get portfolio performance")
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, q domain.Query, out interface{}) error {
	rng := q.DateRange
	if rng == "" {
		rng = domain.DateRangeMax
	}

	u := c.baseURL + path + "?" + url.Values{"range": []string{rng.String()}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, "create HTTP request")
	}

	req.Header.Set("Accept", "application/json")
	if h := auth.BearerHeader(q.AccessToken); h != "" {
		req.Header.Set("Authorization", h)
	}
	if q.ImpersonationID != "" {
		req.Header.Set(impersonationHeader, q.ImpersonationID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debugw("portfolio API call",
		"path", path,
		"range", rng,
		"user_id", q.UserID,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &errors.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode portfolio response")
	}
	return nil
}
