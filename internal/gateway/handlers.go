package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"folioagent/internal/metrics"
	"folioagent/pkg/auth"
	"folioagent/pkg/errors"
	"folioagent/pkg/logger"
)

const (
	identityKey   = "gateway.identity"
	maxClientBody = 1 << 20
	copyBuffer    = 32 << 10
)

// Handler serves the client-facing agent routes
type Handler struct {
	proxy  *Proxy
	tokens TokenValidator
	bridge *Bridge
	wsPath string
	log    *logger.Logger
}

// NewHandler wires the HTTP routes and the WebSocket bridge at wsPath
func NewHandler(proxy *Proxy, tokens TokenValidator, bridge *Bridge, wsPath string, log *logger.Logger) *Handler {
	return &Handler{
		proxy:  proxy,
		tokens: tokens,
		bridge: bridge,
		wsPath: wsPath,
		log:    log.With("component", "gateway"),
	}
}

// Register mounts the routes on r. Serve r through GuardUpgrades so upgrade
// requests on routes registered elsewhere are closed as well.
func (h *Handler) Register(r *gin.Engine) {
	r.GET(h.wsPath, gin.WrapH(h.bridge))

	api := r.Group("/api/v1/agent", h.RequireAuth())
	api.POST("/chat", h.Chat)
	api.POST("/chat/stream", h.ChatStream)
	api.GET("/health", h.Health)

	r.NoRoute(RejectUpgrade)
}

// RequireAuth verifies the bearer token and stores the caller identity
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.StripBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := h.tokens.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(identityKey, Identity{UserID: claims.UserID, Token: token})
		c.Next()
	}
}

func identity(c *gin.Context) Identity {
	id, _ := c.Get(identityKey)
	v, _ := id.(Identity)
	return v
}

// Chat relays a unary chat request
func (h *Handler) Chat(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	h.unary(c, http.MethodPost, AgentChatPath, body, "unary")
}

// Health relays the agent's health endpoint
func (h *Handler) Health(c *gin.Context) {
	h.unary(c, http.MethodGet, AgentHealthPath, nil, "health")
}

func (h *Handler) unary(c *gin.Context, method, path string, body []byte, mode string) {
	if !h.proxy.Configured() {
		metrics.RecordProxyRequest(mode, http.StatusServiceUnavailable)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "agent service is not configured"})
		return
	}

	res, err := h.proxy.Unary(c.Request.Context(), method, path, body, identity(c))
	if err != nil {
		if c.Request.Context().Err() != nil {
			return
		}
		h.log.ErrorWithContext(c.Request.Context(), err, map[string]string{"component": "gateway", "mode": mode})
		metrics.RecordProxyRequest(mode, http.StatusBadGateway)
		c.JSON(http.StatusBadGateway, gin.H{"error": "agent service is unreachable"})
		return
	}

	metrics.RecordProxyRequest(mode, res.Status)
	c.Data(res.Status, "application/json; charset=utf-8", res.Body)
}

// ChatStream relays the agent's SSE body byte for byte
func (h *Handler) ChatStream(c *gin.Context) {
	if !h.proxy.Configured() {
		metrics.RecordProxyRequest("sse", http.StatusServiceUnavailable)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "agent service is not configured"})
		return
	}
	body, ok := h.readBody(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	resp, err := h.proxy.OpenStream(ctx, AgentStreamPath, body, identity(c))

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		h.log.ErrorWithContext(ctx, err, map[string]string{"component": "gateway", "mode": "sse"})
		metrics.RecordProxyRequest("sse", http.StatusBadGateway)
		w.WriteHeader(http.StatusOK)
		writeSSEError(w, upstreamErrorMessage(err))
		w.Flush()
		return
	}
	defer resp.Body.Close()

	metrics.RecordProxyRequest("sse", resp.StatusCode)
	w.WriteHeader(http.StatusOK)
	w.Flush()

	if err := pipe(ctx, w, resp.Body); err != nil && ctx.Err() == nil {
		h.log.Warnw("sse relay interrupted", "user_id", identity(c).UserID, "error", err)
	}
}

type flushWriter interface {
	io.Writer
	Flush()
}

// pipe copies src to w, flushing after every read
func pipe(ctx context.Context, w flushWriter, src io.Reader) error {
	buf := make([]byte, copyBuffer)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			w.Flush()
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func writeSSEError(w io.Writer, message string) {
	payload, _ := json.Marshal(ErrorFrame{Type: "error", Message: message})
	_, _ = io.WriteString(w, "data: "+string(payload)+"\n\n")
}

func (h *Handler) readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxClientBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
		return nil, false
	}
	if len(body) == 0 || !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errors.ErrInvalidInput.Error() + ": body must be JSON"})
		return nil, false
	}
	return body, true
}

// GuardUpgrades closes WebSocket upgrade requests for any path other than the
// bridge path before they reach the router.
func (h *Handler) GuardUpgrades(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isUpgrade(r) && r.URL.Path != h.wsPath {
			closeUpgrade(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RejectUpgrade closes WebSocket upgrade attempts on unknown paths without a
// handshake and answers everything else with 404.
func RejectUpgrade(c *gin.Context) {
	if !isUpgrade(c.Request) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Abort()
	closeUpgrade(c.Writer)
}

func closeUpgrade(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	_ = conn.Close()
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}
