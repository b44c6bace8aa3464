package gateway

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
	"folioagent/pkg/logger"
)

func TestProxy_UnaryForwardsAuthAndBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		assert.Equal(t, "u1", r.Header.Get("X-Custom-User"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"message":"hi"}`, string(body))

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"answer":"hello"}`))
	}))
	defer upstream.Close()

	p := NewProxy(upstream.URL+"/", time.Second, "X-Custom-User", logger.Nop())
	for _, token := range []string{"abc", "Bearer abc"} {
		res, err := p.Unary(context.Background(), http.MethodPost, AgentChatPath, []byte(`{"message":"hi"}`),
			Identity{UserID: "u1", Token: token})
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, res.Status)
		assert.JSONEq(t, `{"answer":"hello"}`, string(res.Body))
	}
}

func TestProxy_UnaryWrapsNonJSON(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("upstream exploded\n"))
	}))
	defer upstream.Close()

	p := NewProxy(upstream.URL, time.Second, "", logger.Nop())
	res, err := p.Unary(context.Background(), http.MethodGet, AgentHealthPath, nil, Identity{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, res.Status)

	var body map[string]string
	require.NoError(t, json.Unmarshal(res.Body, &body))
	assert.Equal(t, "upstream exploded", body["error"])
}

func TestProxy_Unreachable(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	p := NewProxy(url, time.Second, "", logger.Nop())
	_, err := p.Unary(context.Background(), http.MethodGet, AgentHealthPath, nil, Identity{})
	assert.True(t, errors.Is(err, errors.ErrUnavailable))

	_, err = p.OpenStream(context.Background(), AgentStreamPath, []byte(`{}`), Identity{})
	assert.True(t, errors.Is(err, errors.ErrUnavailable))
}

func TestProxy_NotConfigured(t *testing.T) {
	p := NewProxy("  ", time.Second, "", logger.Nop())
	assert.False(t, p.Configured())

	_, err := p.Unary(context.Background(), http.MethodGet, AgentHealthPath, nil, Identity{})
	assert.True(t, errors.Is(err, errors.ErrNotConfigured))
}

func TestProxy_OpenStreamStatusError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer upstream.Close()

	p := NewProxy(upstream.URL, time.Second, "", logger.Nop())
	_, err := p.OpenStream(context.Background(), AgentStreamPath, []byte(`{}`), Identity{})

	var se *errors.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.True(t, errors.Is(err, errors.ErrExternal))
}
