package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"folioagent/internal/metrics"
	"folioagent/pkg/auth"
	"folioagent/pkg/errors"
	"folioagent/pkg/logger"
	"folioagent/pkg/sse"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxClientFrame = 256 << 10
)

// Client message types
const (
	MessageChat   = "chat"
	MessageCancel = "cancel"
)

// TokenValidator verifies the signed session token passed in the query string
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// ClientMessage is one inbound WebSocket frame
type ClientMessage struct {
	Type                string            `json:"type"`
	Message             string            `json:"message,omitempty"`
	ConversationHistory []json.RawMessage `json:"conversationHistory,omitempty"`
	AccountID           string            `json:"accountId,omitempty"`
	Timeframe           string            `json:"timeframe,omitempty"`
	Mode                string            `json:"mode,omitempty"`
}

// ErrorFrame is the bridge's own error message to the client
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Bridge upgrades authenticated clients and relays agent SSE streams over WebSocket
type Bridge struct {
	proxy    *Proxy
	tokens   TokenValidator
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewBridge creates a bridge. checkOrigin may be nil to accept any origin.
func NewBridge(proxy *Proxy, tokens TokenValidator, checkOrigin func(*http.Request) bool, log *logger.Logger) *Bridge {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Bridge{
		proxy:  proxy,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		log: log.With("component", "ws_bridge"),
	}
}

// ServeHTTP authenticates the upgrade request and runs the session until the
// socket closes. Authentication failures are answered before any handshake.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.StripBearer(r.URL.Query().Get("token"))
	if token == "" {
		metrics.RecordProxyRequest("ws", http.StatusUnauthorized)
		writeJSONError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := b.tokens.ValidateToken(token)
	if err != nil {
		metrics.RecordProxyRequest("ws", http.StatusUnauthorized)
		writeJSONError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if !b.proxy.Configured() {
		metrics.RecordProxyRequest("ws", http.StatusServiceUnavailable)
		writeJSONError(w, http.StatusServiceUnavailable, "agent service is not configured")
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		b.log.Debugw("websocket upgrade failed", "error", err)
		return
	}
	metrics.RecordProxyRequest("ws", http.StatusSwitchingProtocols)
	metrics.WebSocketConnections.Inc()
	defer metrics.WebSocketConnections.Dec()

	s := newSession(conn, b.proxy, Identity{UserID: claims.UserID, Token: token},
		b.log.With("user_id", claims.UserID))
	s.run()
}

// turnState is the single in-flight turn of a session
type turnState struct {
	seq    uint64
	cancel context.CancelFunc
}

// session owns one socket. All data frames are written under mu, which also guards
// the in-flight turn, so a cancelled turn can never write after the cancel.
type session struct {
	conn  *websocket.Conn
	proxy *Proxy
	id    Identity
	log   *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	seq    uint64
	active *turnState
	wg     sync.WaitGroup
}

func newSession(conn *websocket.Conn, proxy *Proxy, id Identity, log *logger.Logger) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{conn: conn, proxy: proxy, id: id, log: log, ctx: ctx, cancel: cancel}
}

func (s *session) run() {
	defer func() {
		s.cancelTurn()
		s.cancel()
		s.wg.Wait()
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxClientFrame)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.wg.Add(1)
	go s.keepAlive()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.log.Debugw("websocket read failed", "error", err)
			}
			return
		}
		s.handle(data)
	}
}

func (s *session) keepAlive() {
	defer s.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *session) handle(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.reply("Unsupported message: expected a JSON object with a type of chat or cancel")
		return
	}

	switch msg.Type {
	case MessageCancel:
		s.cancelTurn()
	case MessageChat:
		if strings.TrimSpace(msg.Message) == "" {
			s.reply("Chat message must not be empty")
			return
		}
		if err := s.startTurn(msg); err != nil {
			s.reply(err.Error())
		}
	default:
		s.reply("Unsupported message: expected a JSON object with a type of chat or cancel")
	}
}

func (s *session) startTurn(msg ClientMessage) error {
	body, err := json.Marshal(agentRequest(msg))
	if err != nil {
		return errors.Wrap(err, "encode chat request")
	}

	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return errors.ErrTurnInProgress
	}
	s.seq++
	ctx, cancel := context.WithCancel(s.ctx)
	turn := &turnState{seq: s.seq, cancel: cancel}
	s.active = turn
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.finish(turn.seq)
		s.relay(ctx, turn.seq, body)
	}()
	return nil
}

// relay streams one turn from the agent to the socket
func (s *session) relay(ctx context.Context, seq uint64, body []byte) {
	resp, err := s.proxy.OpenStream(ctx, AgentStreamPath, body, s.id)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.ErrorWithContext(ctx, err, map[string]string{"component": "ws_bridge", "user_id": s.id.UserID})
		s.forwardError(seq, upstreamErrorMessage(err))
		return
	}
	defer resp.Body.Close()

	reader := sse.NewReader(resp.Body)
	for {
		ev, err := reader.Next()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if err != io.EOF {
				s.log.Warnw("agent stream interrupted", "error", err)
			}
			s.forwardError(seq, "The agent stream ended unexpectedly")
			return
		}

		eventType, ok := decodeEvent(ev.Data)
		if !ok {
			metrics.RecordDroppedFrame()
			continue
		}

		terminal := eventType == "done" || eventType == "error"
		if !s.forward(seq, []byte(ev.Data), terminal) {
			return
		}
		metrics.RecordForwardedEvent(eventType)
		if terminal {
			return
		}
	}
}

// forward writes payload if seq is still the active turn. A terminal payload ends
// the turn so the client may start the next one as soon as it reads it.
func (s *session) forward(seq uint64, payload []byte, terminal bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil || s.active.seq != seq {
		return false
	}
	if err := s.write(payload); err != nil {
		s.log.Debugw("websocket write failed", "error", err)
		s.active.cancel()
		s.active = nil
		return false
	}
	if terminal {
		s.active.cancel()
		s.active = nil
	}
	return true
}

func (s *session) forwardError(seq uint64, message string) {
	payload, _ := json.Marshal(ErrorFrame{Type: "error", Message: message})
	s.forward(seq, payload, true)
}

// reply sends a bridge error outside of any turn
func (s *session) reply(message string) {
	payload, _ := json.Marshal(ErrorFrame{Type: "error", Message: message})
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(payload); err != nil {
		s.log.Debugw("websocket write failed", "error", err)
	}
}

// cancelTurn aborts the in-flight turn. Without one it does nothing.
func (s *session) cancelTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		s.active.cancel()
		s.active = nil
	}
}

func (s *session) finish(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && s.active.seq == seq {
		s.active.cancel()
		s.active = nil
	}
}

// write must be called with mu held
func (s *session) write(payload []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// agentRequest is the body sent to the agent's stream endpoint
func agentRequest(msg ClientMessage) map[string]interface{} {
	body := map[string]interface{}{"message": msg.Message}
	if len(msg.ConversationHistory) > 0 {
		body["conversationHistory"] = msg.ConversationHistory
	}
	if msg.AccountID != "" {
		body["accountId"] = msg.AccountID
	}
	if msg.Timeframe != "" {
		body["timeframe"] = msg.Timeframe
	}
	if msg.Mode != "" {
		body["mode"] = msg.Mode
	}
	return body
}

// decodeEvent checks that data is a JSON object and returns its type field
func decodeEvent(data string) (string, bool) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(data), &head); err != nil {
		return "", false
	}
	trimmed := strings.TrimSpace(data)
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}
	return head.Type, true
}

func upstreamErrorMessage(err error) string {
	var se *errors.StatusError
	if errors.As(err, &se) {
		return fmt.Sprintf("The agent service rejected the request (status %d)", se.StatusCode)
	}
	return "The agent service is unreachable right now"
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
