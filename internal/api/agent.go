package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"folioagent/internal/agents"
	"folioagent/internal/tools"
	"folioagent/pkg/auth"
	"folioagent/pkg/errors"
	"folioagent/pkg/logger"
)

// Identity headers set by the gateway
const (
	HeaderUserID          = "X-User-Id"
	HeaderImpersonationID = "Impersonation-Id"
	HeaderBaseCurrency    = "X-Base-Currency"
)

// ChatRunner is the orchestrator surface the agent routes need
type ChatRunner interface {
	Chat(ctx context.Context, req agents.ChatRequest, tc tools.ToolContext) (*agents.ChatResponse, error)
	ChatStream(ctx context.Context, req agents.ChatRequest, tc tools.ToolContext, emit agents.Emitter) error
}

// AgentHandler serves the orchestrator over HTTP
type AgentHandler struct {
	runner       ChatRunner
	baseCurrency string
	log          *logger.Logger
}

// NewAgentHandler creates the chat routes. baseCurrency applies when the caller
// sends no X-Base-Currency header.
func NewAgentHandler(runner ChatRunner, baseCurrency string, log *logger.Logger) *AgentHandler {
	return &AgentHandler{
		runner:       runner,
		baseCurrency: baseCurrency,
		log:          log.With("component", "agent_api"),
	}
}

// Register mounts POST /chat and POST /chat/stream
func (h *AgentHandler) Register(r *gin.Engine) {
	r.POST("/chat", h.Chat)
	r.POST("/chat/stream", h.ChatStream)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}

// Chat runs one turn and answers with the full response
func (h *AgentHandler) Chat(c *gin.Context) {
	req, tc, ok := h.bind(c)
	if !ok {
		return
	}

	resp, err := h.runner.Chat(c.Request.Context(), req, tc)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ChatStream runs one turn and writes each event as an SSE data frame
func (h *AgentHandler) ChatStream(c *gin.Context) {
	req, tc, ok := h.bind(c)
	if !ok {
		return
	}

	w := c.Writer
	started := false
	emit := func(ev agents.Event) {
		if !started {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.Header().Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := sse.Encode(w, sse.Event{Data: ev}); err != nil {
			h.log.Debugw("sse write failed", "error", err)
			return
		}
		w.Flush()
	}

	err := h.runner.ChatStream(c.Request.Context(), req, tc, emit)
	if err != nil && !started {
		h.fail(c, err)
	}
}

func (h *AgentHandler) bind(c *gin.Context) (agents.ChatRequest, tools.ToolContext, bool) {
	var req agents.ChatRequest
	userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + HeaderUserID + " header"})
		return req, tools.ToolContext{}, false
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return req, tools.ToolContext{}, false
	}

	currency := strings.ToUpper(strings.TrimSpace(c.GetHeader(HeaderBaseCurrency)))
	if currency == "" {
		currency = h.baseCurrency
	}
	tc := tools.ToolContext{
		UserID:          userID,
		BaseCurrency:    currency,
		ImpersonationID: strings.TrimSpace(c.GetHeader(HeaderImpersonationID)),
		AccountID:       req.AccountID,
		AccessToken:     auth.StripBearer(c.GetHeader("Authorization")),
	}
	return req, tc, true
}

func (h *AgentHandler) fail(c *gin.Context, err error) {
	switch {
	case c.Request.Context().Err() != nil:
		// client went away
		c.Abort()
	case errors.Is(err, errors.ErrInvalidInput):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.ErrorWithContext(c.Request.Context(), err, map[string]string{"component": "agent_api"})
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
