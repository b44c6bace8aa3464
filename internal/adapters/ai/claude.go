package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"folioagent/pkg/errors"
)

const claudeMessagesPath = "/v1/messages"

// ClaudeProvider talks to the Anthropic Messages API.
type ClaudeProvider struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	rateLimiter RateLimiter
}

// Ensure ClaudeProvider implements ChatProvider
var _ ChatProvider = (*ClaudeProvider)(nil)

// NewClaudeProvider creates a new Claude provider. A nil limiter disables rate limiting.
func NewClaudeProvider(apiKey, baseURL string, timeout time.Duration, limiter RateLimiter) *ClaudeProvider {
	if limiter == nil {
		limiter = NewNoOpLimiter()
	}
	return &ClaudeProvider{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		rateLimiter: limiter,
	}
}

// Name returns provider name.
func (p *ClaudeProvider) Name() string {
	return ProviderNameAnthropic.String()
}

// Configured reports whether an API key is set.
func (p *ClaudeProvider) Configured() bool {
	return p.apiKey != ""
}

// Chat sends a chat completion request to Claude API.
func (p *ClaudeProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if !p.Configured() {
		return nil, errors.Wrap(errors.ErrNotConfigured, "claude API key not configured")
	}

	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, &RateLimitError{
			Provider: ProviderNameAnthropic,
			Limit:    p.rateLimiter.Limit(),
			Err:      err,
		}
	}

	body, err := json.Marshal(toClaudeRequest(req))
	if err != nil {
		return nil, errors.Wrap(err, "marshal claude request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+claudeMessagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create HTTP request")
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "send claude request")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read claude response")
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, errors.Wrapf(statusKind(resp.StatusCode), "claude API error (%d): %s - %s",
				resp.StatusCode, errResp.Error.Type, errResp.Error.Message)
		}
		return nil, errors.Wrapf(statusKind(resp.StatusCode), "claude API error (%d): %s",
			resp.StatusCode, truncate(string(respBody), maxErrorBody))
	}

	var claudeResp claudeResponse
	if err := json.Unmarshal(respBody, &claudeResp); err != nil {
		return nil, errors.Wrap(err, "unmarshal claude response")
	}

	return fromClaudeResponse(&claudeResp), nil
}

// Claude API types
type claudeRequest struct {
	Model       string          `json:"model"`
	Messages    []claudeMessage `json:"messages"`
	System      string          `json:"system,omitempty"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	Tools       []claudeTool    `json:"tools,omitempty"`
}

type claudeMessage struct {
	Role    string          `json:"role"`
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type      string          `json:"type"` // "text", "tool_use", "tool_result"
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Content   string          `json:"content,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type claudeTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type claudeResponse struct {
	ID         string          `json:"id"`
	Role       string          `json:"role"`
	Content    []claudeContent `json:"content"`
	Model      string          `json:"model"`
	StopReason string          `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func toClaudeRequest(req ChatRequest) claudeRequest {
	out := claudeRequest{
		Model:       req.Model,
		System:      req.System,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if out.Model == "" {
		out.Model = defaultClaudeModel
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = defaultMaxTokens
	}

	for _, msg := range req.Messages {
		cm := claudeMessage{Role: string(msg.Role)}
		for _, b := range msg.Content {
			switch b.Type {
			case BlockText:
				cm.Content = append(cm.Content, claudeContent{Type: "text", Text: b.Text})
			case BlockToolUse:
				input := b.Input
				if len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				cm.Content = append(cm.Content, claudeContent{Type: "tool_use", ID: b.ID, Name: b.Name, Input: input})
			case BlockToolResult:
				cm.Content = append(cm.Content, claudeContent{
					Type:      "tool_result",
					ToolUseID: b.ToolUseID,
					Content:   b.Content,
					IsError:   b.IsError,
				})
			}
		}
		if len(cm.Content) > 0 {
			out.Messages = append(out.Messages, cm)
		}
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, claudeTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}

	return out
}

func fromClaudeResponse(resp *claudeResponse) *ChatResponse {
	out := &ChatResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}

	for _, c := range resp.Content {
		switch c.Type {
		case "text":
			out.Content = append(out.Content, TextBlock(c.Text))
		case "tool_use":
			out.Content = append(out.Content, ContentBlock{Type: BlockToolUse, ID: c.ID, Name: c.Name, Input: c.Input})
		}
	}

	switch resp.StopReason {
	case "tool_use":
		out.StopReason = StopToolUse
	case "max_tokens":
		out.StopReason = StopMaxTokens
	case "stop_sequence":
		out.StopReason = StopStopSequence
	default:
		out.StopReason = StopEndTurn
	}

	return out
}

// statusKind maps a provider HTTP status onto an error kind
func statusKind(code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return errors.ErrRateLimitExceeded
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errors.ErrUnauthorized
	case code >= 500:
		return errors.ErrUnavailable
	default:
		return errors.ErrExternal
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
