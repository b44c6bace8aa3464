package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Type    string `json:"type"`
	Turn    int    `json:"turn"`
	Message string `json:"message"`
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func next(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(data, &f), string(data))
	return f
}

func TestBridge_RejectsBadTokenBeforeHandshake(t *testing.T) {
	srv := newGateway(t, http.NotFoundHandler())

	for name, query := range map[string]string{
		"missing": "",
		"invalid": "?token=garbage",
	} {
		t.Run(name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, wsPath)+query, nil)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			resp.Body.Close()
		})
	}
}

func TestBridge_UnconfiguredAgent(t *testing.T) {
	srv := newGateway(t, nil)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, wsPath)+"?token="+testToken(t), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestBridge_ForwardsEventsInOrder(t *testing.T) {
	srv := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, AgentStreamPath, r.URL.Path)
		assert.Equal(t, testUserID, r.Header.Get("X-User-Id"))
		assert.NotEmpty(t, r.Header.Get("Authorization"))

		var body map[string]interface{}
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "How is my portfolio?", body["message"])
		assert.Equal(t, "deep", body["mode"])

		w.Header().Set("Content-Type", "text/event-stream")
		sseWrite(w, `{"type":"iteration_start","iteration":1}`)
		sseWrite(w, `not json at all`)
		sseWrite(w, `[1,2,3]`)
		sseWrite(w, `{"type":"tool_start","tool":"getPortfolioSnapshot"}`)
		sseWrite(w, `{"type":"done","answer":"fine"}`)
	}))

	conn := dial(t, wsURL(srv, wsPath)+"?token="+testToken(t))
	send(t, conn, map[string]string{"type": "chat", "message": "How is my portfolio?", "mode": "deep"})

	var types []string
	for {
		f := next(t, conn)
		types = append(types, f.Type)
		if f.Type == "done" {
			break
		}
	}
	assert.Equal(t, []string{"iteration_start", "tool_start", "done"}, types)
}

func TestBridge_StreamWithoutTerminalFrame(t *testing.T) {
	srv := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		sseWrite(w, `{"type":"iteration_start","iteration":1}`)
	}))

	conn := dial(t, wsURL(srv, wsPath)+"?token="+testToken(t))
	send(t, conn, map[string]string{"type": "chat", "message": "hi"})

	assert.Equal(t, "iteration_start", next(t, conn).Type)
	f := next(t, conn)
	assert.Equal(t, "error", f.Type)
	assert.Contains(t, f.Message, "ended unexpectedly")
}

func TestBridge_UpstreamRejection(t *testing.T) {
	srv := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))

	conn := dial(t, wsURL(srv, wsPath)+"?token="+testToken(t))
	send(t, conn, map[string]string{"type": "chat", "message": "hi"})

	f := next(t, conn)
	assert.Equal(t, "error", f.Type)
	assert.Contains(t, f.Message, "status 503")
}

func TestBridge_UnsupportedMessages(t *testing.T) {
	srv := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		sseWrite(w, `{"type":"done","answer":"ok"}`)
	}))

	conn := dial(t, wsURL(srv, wsPath)+"?token="+testToken(t))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello?")))
	assert.Equal(t, "error", next(t, conn).Type)

	send(t, conn, map[string]string{"type": "subscribe"})
	assert.Contains(t, next(t, conn).Message, "Unsupported message")

	send(t, conn, map[string]string{"type": "chat", "message": "   "})
	assert.Contains(t, next(t, conn).Message, "must not be empty")

	// a cancel with nothing in flight is silent, and the socket stays usable
	send(t, conn, map[string]string{"type": "cancel"})
	send(t, conn, map[string]string{"type": "chat", "message": "hi"})
	assert.Equal(t, "done", next(t, conn).Type)
}

// blockingAgent serves turn 1 as an endless stream and later turns as short ones
func blockingAgent(t *testing.T, aborted chan<- struct{}) http.Handler {
	var calls int32
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		turn := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "text/event-stream")

		if turn == 1 {
			sseWrite(w, `{"type":"iteration_start","turn":1}`)
			<-r.Context().Done()
			aborted <- struct{}{}
			return
		}
		sseWrite(w, `{"type":"iteration_start","turn":2}`)
		sseWrite(w, `{"type":"done","turn":2}`)
	})
}

func TestBridge_CancelAbortsTurnAndAllowsNext(t *testing.T) {
	aborted := make(chan struct{}, 1)
	srv := newGateway(t, blockingAgent(t, aborted))

	conn := dial(t, wsURL(srv, wsPath)+"?token="+testToken(t))
	send(t, conn, map[string]string{"type": "chat", "message": "first"})
	first := next(t, conn)
	assert.Equal(t, 1, first.Turn)

	send(t, conn, map[string]string{"type": "cancel"})
	select {
	case <-aborted:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream request was not aborted")
	}

	send(t, conn, map[string]string{"type": "chat", "message": "second"})
	f := next(t, conn)
	assert.Equal(t, 2, f.Turn, "no frame of the cancelled turn may follow the cancel")
	assert.Equal(t, "iteration_start", f.Type)
	f = next(t, conn)
	assert.Equal(t, "done", f.Type)
	assert.Equal(t, 2, f.Turn)
}

func TestBridge_RejectsConcurrentChat(t *testing.T) {
	aborted := make(chan struct{}, 1)
	srv := newGateway(t, blockingAgent(t, aborted))

	conn := dial(t, wsURL(srv, wsPath)+"?token="+testToken(t))
	send(t, conn, map[string]string{"type": "chat", "message": "first"})
	assert.Equal(t, 1, next(t, conn).Turn)

	send(t, conn, map[string]string{"type": "chat", "message": "again"})
	f := next(t, conn)
	assert.Equal(t, "error", f.Type)
	assert.Contains(t, f.Message, "already in progress")

	send(t, conn, map[string]string{"type": "cancel"})
	select {
	case <-aborted:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream request was not aborted")
	}
}
