package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"folioagent/internal/agents"
	"folioagent/internal/api/health"
	"folioagent/internal/tools"
	"folioagent/pkg/errors"
	"folioagent/pkg/logger"
	"folioagent/pkg/sse"
)

type mockRunner struct {
	mock.Mock
	events []agents.Event
}

func (m *mockRunner) Chat(ctx context.Context, req agents.ChatRequest, tc tools.ToolContext) (*agents.ChatResponse, error) {
	args := m.Called(req, tc)
	resp, _ := args.Get(0).(*agents.ChatResponse)
	return resp, args.Error(1)
}

func (m *mockRunner) ChatStream(ctx context.Context, req agents.ChatRequest, tc tools.ToolContext, emit agents.Emitter) error {
	args := m.Called(req, tc)
	if err := args.Error(0); err != nil {
		return err
	}
	for _, ev := range m.events {
		emit(ev)
	}
	return nil
}

func newAgentEngine(runner ChatRunner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logger.Nop()
	r := NewEngine(ServerConfig{ServiceName: "agent", Version: "test"}, health.New(log, "agent", "test"), log)
	NewAgentHandler(runner, "USD", log).Register(r)
	return r
}

func chatRequest(path, body string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestAgentHandler_RequiresUserHeader(t *testing.T) {
	runner := &mockRunner{}
	rec := httptest.NewRecorder()
	newAgentEngine(runner).ServeHTTP(rec, chatRequest("/chat", `{"message":"hi"}`, nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	runner.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
}

func TestAgentHandler_RejectsMalformedBody(t *testing.T) {
	runner := &mockRunner{}
	rec := httptest.NewRecorder()
	newAgentEngine(runner).ServeHTTP(rec, chatRequest("/chat", `{"message":`, map[string]string{HeaderUserID: "u1"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request body")
}

func TestAgentHandler_Chat(t *testing.T) {
	runner := &mockRunner{}
	wantTC := tools.ToolContext{
		UserID:          "u1",
		BaseCurrency:    "CHF",
		ImpersonationID: "acct-owner",
		AccountID:       "acc-9",
		AccessToken:     "tok",
	}
	runner.On("Chat", mock.MatchedBy(func(req agents.ChatRequest) bool {
		return req.Message == "What's my allocation?" && req.Mode == "deep" && len(req.ConversationHistory) == 1
	}), wantTC).Return(&agents.ChatResponse{Answer: "60/40", Confidence: 1, Warnings: []string{}}, nil)

	rec := httptest.NewRecorder()
	body := `{"message":"What's my allocation?","mode":"deep","accountId":"acc-9",
		"conversationHistory":[{"role":"user","content":"hello"}]}`
	newAgentEngine(runner).ServeHTTP(rec, chatRequest("/chat", body, map[string]string{
		HeaderUserID:          "u1",
		HeaderBaseCurrency:    "chf",
		HeaderImpersonationID: "acct-owner",
		"Authorization":       "Bearer tok",
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp agents.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "60/40", resp.Answer)
	assert.Equal(t, 1.0, resp.Confidence)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
	runner.AssertExpectations(t)
}

func TestAgentHandler_DefaultCurrency(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Chat", mock.Anything, mock.MatchedBy(func(tc tools.ToolContext) bool {
		return tc.BaseCurrency == "USD" && tc.AccessToken == ""
	})).Return(&agents.ChatResponse{Answer: "ok"}, nil)

	rec := httptest.NewRecorder()
	newAgentEngine(runner).ServeHTTP(rec, chatRequest("/chat", `{"message":"hi"}`, map[string]string{HeaderUserID: "u1"}))
	assert.Equal(t, http.StatusOK, rec.Code)
	runner.AssertExpectations(t)
}

func TestAgentHandler_ChatErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", errors.NewValidationError("message", "must not be empty", ""), http.StatusBadRequest},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockRunner{}
			runner.On("Chat", mock.Anything, mock.Anything).Return(nil, tt.err)

			rec := httptest.NewRecorder()
			newAgentEngine(runner).ServeHTTP(rec, chatRequest("/chat", `{"message":" "}`, map[string]string{HeaderUserID: "u1"}))
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestAgentHandler_ChatStream(t *testing.T) {
	yes := true
	ms := int64(12)
	runner := &mockRunner{events: []agents.Event{
		{Type: agents.EventIterationStart, Iteration: 1},
		{Type: agents.EventToolStart, Tool: "getPortfolioSnapshot"},
		{Type: agents.EventToolEnd, Tool: "getPortfolioSnapshot", OK: &yes, Ms: &ms, Detail: "3 holdings"},
		{Type: agents.EventDone, ChatResponse: &agents.ChatResponse{Answer: "done", Confidence: 1}},
	}}
	runner.On("ChatStream", mock.Anything, mock.Anything).Return(nil)

	rec := httptest.NewRecorder()
	newAgentEngine(runner).ServeHTTP(rec, chatRequest("/chat/stream", `{"message":"hi"}`, map[string]string{HeaderUserID: "u1"}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events, rest := sse.Split(rec.Body.String())
	assert.Empty(t, rest)
	require.Len(t, events, 4)

	var types []string
	for _, ev := range events {
		var head map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(ev.Data), &head))
		types = append(types, head["type"].(string))
	}
	assert.Equal(t, []string{"iteration_start", "tool_start", "tool_end", "done"}, types)

	var last map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(events[3].Data), &last))
	assert.Equal(t, "done", last["answer"])
	assert.Contains(t, events[2].Data, `"detail":"3 holdings"`)
}

func TestAgentHandler_ChatStreamValidationBeforeStreaming(t *testing.T) {
	runner := &mockRunner{}
	runner.On("ChatStream", mock.Anything, mock.Anything).
		Return(errors.NewValidationError("message", "must not be empty", ""))

	rec := httptest.NewRecorder()
	newAgentEngine(runner).ServeHTTP(rec, chatRequest("/chat/stream", `{"message":""}`, map[string]string{HeaderUserID: "u1"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEngine_OpsRoutes(t *testing.T) {
	r := newAgentEngine(&mockRunner{})

	for path, code := range map[string]int{
		"/live":    http.StatusOK,
		"/health":  http.StatusOK,
		"/ready":   http.StatusOK,
		"/metrics": http.StatusOK,
		"/":        http.StatusOK,
		"/nope":    http.StatusNotFound,
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, code, rec.Code, path)
	}
}

func TestEngine_CORSPreflight(t *testing.T) {
	r := newAgentEngine(&mockRunner{})

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSConfig(t *testing.T) {
	assert.True(t, corsConfig(nil).AllowAllOrigins)
	assert.True(t, corsConfig([]string{"*"}).AllowAllOrigins)

	cfg := corsConfig([]string{" https://a.example.com ", ""})
	assert.False(t, cfg.AllowAllOrigins)
	assert.Equal(t, []string{"https://a.example.com"}, cfg.AllowOrigins)
}
