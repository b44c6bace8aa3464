package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"folioagent/pkg/auth"
	"folioagent/pkg/logger"
)

const (
	testSecret = "test-secret"
	testUserID = "user-42"
	wsPath     = "/api/v1/agent/ws"
)

func testJWT() *auth.JWTService {
	return auth.NewJWTService(testSecret, "", time.Hour)
}

func testToken(t *testing.T) string {
	t.Helper()
	tok, err := testJWT().GenerateToken(testUserID)
	require.NoError(t, err)
	return tok
}

// newGateway starts a gateway in front of agent; a nil agent leaves the proxy unconfigured
func newGateway(t *testing.T, agent http.Handler) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	agentURL := ""
	if agent != nil {
		upstream := httptest.NewServer(agent)
		t.Cleanup(upstream.Close)
		agentURL = upstream.URL
	}

	log := logger.Nop()
	proxy := NewProxy(agentURL, 5*time.Second, "X-User-Id", log)
	bridge := NewBridge(proxy, testJWT(), nil, log)

	r := gin.New()
	r.RedirectTrailingSlash = false
	h := NewHandler(proxy, testJWT(), bridge, wsPath, log)
	h.Register(r)
	r.GET("/live", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	srv := httptest.NewServer(h.GuardUpgrades(r))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

// sseWrite writes one SSE frame and flushes it
func sseWrite(w http.ResponseWriter, data string) {
	_, _ = w.Write([]byte("data: " + data + "\n\n"))
	w.(http.Flusher).Flush()
}
