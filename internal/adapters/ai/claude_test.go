package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folioagent/pkg/errors"
)

func TestClaudeProvider_ChatToolRoundTrip(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"role": "assistant",
			"model": "claude-test",
			"stop_reason": "tool_use",
			"content": [
				{"type": "text", "text": "Let me check."},
				{"type": "tool_use", "id": "toolu_1", "name": "getPortfolioSnapshot", "input": {"dateRange": "max"}}
			],
			"usage": {"input_tokens": 12, "output_tokens": 7}
		}`))
	}))
	defer srv.Close()

	p := NewClaudeProvider("test-key", srv.URL, time.Second, nil)
	resp, err := p.Chat(context.Background(), ChatRequest{
		Model:  "claude-test",
		System: "be precise",
		Messages: []Message{
			UserText("What's my allocation?"),
			{Role: RoleAssistant, Content: []ContentBlock{{Type: BlockToolUse, ID: "toolu_0", Name: "getPerformance"}}},
			{Role: RoleUser, Content: []ContentBlock{ToolResultBlock("toolu_0", `{"error":"boom"}`, true)}},
		},
		Tools: []ToolDefinition{{
			Name:        "getPortfolioSnapshot",
			Description: "snapshot",
			InputSchema: map[string]interface{}{"type": "object"},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "be precise", captured["system"])
	assert.EqualValues(t, defaultMaxTokens, captured["max_tokens"])

	msgs := captured["messages"].([]interface{})
	require.Len(t, msgs, 3)
	toolUse := msgs[1].(map[string]interface{})["content"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "tool_use", toolUse["type"])
	assert.Equal(t, map[string]interface{}{}, toolUse["input"])
	toolResult := msgs[2].(map[string]interface{})["content"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "toolu_0", toolResult["tool_use_id"])
	assert.Equal(t, true, toolResult["is_error"])

	tools := captured["tools"].([]interface{})
	require.Len(t, tools, 1)
	assert.Equal(t, "getPortfolioSnapshot", tools[0].(map[string]interface{})["name"])

	assert.Equal(t, StopToolUse, resp.StopReason)
	assert.Equal(t, "Let me check.", resp.Text())
	uses := resp.ToolUses()
	require.Len(t, uses, 1)
	assert.Equal(t, "toolu_1", uses[0].ID)
	assert.JSONEq(t, `{"dateRange":"max"}`, string(uses[0].Input))
	assert.Equal(t, 12, resp.Usage.InputTokens)
}

func TestClaudeProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	p := NewClaudeProvider("test-key", srv.URL, time.Second, nil)
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{UserText("hi")}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRateLimitExceeded))
	assert.Contains(t, err.Error(), "slow down")
}

func TestClaudeProvider_NotConfigured(t *testing.T) {
	p := NewClaudeProvider("", "http://127.0.0.1:0", time.Second, nil)
	assert.False(t, p.Configured())

	_, err := p.Chat(context.Background(), ChatRequest{})
	assert.True(t, errors.Is(err, errors.ErrNotConfigured))
}
