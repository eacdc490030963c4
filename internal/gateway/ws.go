package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/regassist/regassist/internal/orchestrator"
	"github.com/regassist/regassist/pkg/models"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsPingInterval    = 15 * time.Second
	wsPongWait        = 45 * time.Second
	wsWriteWait       = 10 * time.Second
)

// Close codes used by the core: clean shutdown, invalid or
// missing auth (never auto-reconnected by a well-behaved client), quota
// exhaustion, and an unexpected internal failure.
const (
	CloseClean          = 1000
	CloseAuthRequired   = 4001
	CloseQuotaExhausted = 4003
	CloseInternalError  = 1011
)

// wsFrame is the wire shape of every frame in both directions — a request
// from the client ({type:"req", id, method, params}), an event pushed to
// the client ({type:"event", event, payload}), or a response to a request
// ({type:"res", id, ok, payload|error}). Narrowed from
// internal/gateway/ws_control_plane.go's wsFrame to the one method this
// service exposes.
type wsFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Event   string          `json:"event,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Payload any             `json:"payload,omitempty"`
	Error   *wsError        `json:"error,omitempty"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wsConnectParams struct {
	ConversationID string `json:"conversationId"`
	Token          string `json:"token"`
}

type wsChatSendParams struct {
	Message string `json:"message"`
}

// AgentResolver looks up a configured agent by name (models.Registry
// already satisfies this).
type AgentResolver interface {
	Get(name string) (*models.Agent, bool)
}

// ConnectionMetrics tracks the open duplex-connection count. Satisfied by
// *metrics.Collector; left nil, the server simply doesn't report it.
type ConnectionMetrics interface {
	ConnectionOpened()
	ConnectionClosed()
}

// Server upgrades incoming HTTP requests to the duplex channel and drives
// each connection's turns through an orchestrator.Loop.
type Server struct {
	loop     *orchestrator.Loop
	agents   AgentResolver
	auth     *Authenticator
	logger   *slog.Logger
	upgrader websocket.Upgrader
	metrics  ConnectionMetrics
}

// NewServer builds a gateway Server.
func NewServer(loop *orchestrator.Loop, agents AgentResolver, auth *Authenticator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		loop:   loop,
		agents: agents,
		auth:   auth,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// SetMetrics attaches a connection-count sink.
func (s *Server) SetMetrics(m ConnectionMetrics) { s.metrics = m }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	if s.metrics != nil {
		s.metrics.ConnectionOpened()
		defer s.metrics.ConnectionClosed()
	}

	ctx, cancel := context.WithCancel(context.Background())
	session := &wsSession{
		server: s,
		conn:   conn,
		send:   make(chan []byte, 64),
		ctx:    ctx,
		cancel: cancel,
		id:     uuid.NewString(),
	}
	session.run()
}

type wsSession struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	id             string
	connected      atomic.Bool
	conversationID string
	fingerprint    string
	agent          *models.Agent
}

func (s *wsSession) run() {
	defer s.close()
	go s.writeLoop()
	go s.pingLoop()
	s.readLoop()
}

func (s *wsSession) close() {
	s.cancel()
	close(s.send)
	_ = s.conn.Close()
}

func (s *wsSession) readLoop() {
	s.conn.SetReadLimit(wsMaxPayloadBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.sendError("", "invalid_frame", err.Error())
			continue
		}

		if !s.connected.Load() {
			if frame.Method != "connect" {
				s.closeWith(CloseAuthRequired, "connect required")
				return
			}
			if err := s.handleConnect(&frame); err != nil {
				reason := "authentication failed"
				if tokenExpired(err) {
					reason = "token expired"
				}
				s.sendError(frame.ID, "connect_failed", reason)
				s.closeWith(CloseAuthRequired, reason)
				return
			}
			continue
		}

		if err := s.handleRequest(&frame); err != nil {
			s.sendError(frame.ID, "request_failed", err.Error())
		}
	}
}

func (s *wsSession) writeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-s.send:
			if !ok {
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// pingLoop sends a periodic keep-alive frame the client must ignore; it
// never carries a seq or backpressure signal, it's pure liveness.
func (s *wsSession) pingLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sendEvent("ping", nil)
		}
	}
}

func (s *wsSession) handleConnect(frame *wsFrame) error {
	var params wsConnectParams
	if len(frame.Params) > 0 {
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			return fmt.Errorf("invalid connect params: %w", err)
		}
	}
	if params.ConversationID == "" {
		return fmt.Errorf("conversationId is required")
	}

	fingerprint, agentName, err := s.server.auth.Authenticate(params.Token)
	if err != nil {
		return err
	}
	agent, ok := s.server.agents.Get(agentName)
	if !ok {
		return fmt.Errorf("unknown agent %q", agentName)
	}

	s.conversationID = params.ConversationID
	s.fingerprint = fingerprint
	s.agent = agent
	s.connected.Store(true)

	return s.sendResponse(frame.ID, true, map[string]any{
		"conversationId": s.conversationID,
		"agent":          agent.Name,
	}, nil)
}

func (s *wsSession) handleRequest(frame *wsFrame) error {
	switch frame.Method {
	case "chat.send":
		return s.handleChatSend(frame)
	default:
		return fmt.Errorf("unknown method %q", frame.Method)
	}
}

func (s *wsSession) handleChatSend(frame *wsFrame) error {
	var params wsChatSendParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		return fmt.Errorf("invalid chat.send params: %w", err)
	}
	if params.Message == "" {
		return fmt.Errorf("message is required")
	}

	events, err := s.server.loop.HandleTurn(s.ctx, s.agent, s.conversationID, s.fingerprint, params.Message)
	if err != nil {
		if errors.Is(err, orchestrator.ErrTurnInFlight) {
			s.sendEvent("warning", map[string]any{"message": "a turn is already in flight for this conversation"})
			return nil
		}
		return err
	}

	go s.forwardEvents(events)
	return s.sendResponse(frame.ID, true, nil, nil)
}

// forwardEvents relays the loop's normalized event stream to the client.
// enqueue blocks rather than dropping when the client's send buffer is
// full; it only
// gives up when the session itself is closing.
func (s *wsSession) forwardEvents(events <-chan *models.Event) {
	for event := range events {
		s.sendEvent("turn", event)
	}
}

func (s *wsSession) sendEvent(event string, payload any) {
	_ = s.enqueue(wsFrame{Type: "event", Event: event, Payload: payload})
}

func (s *wsSession) sendResponse(id string, ok bool, payload any, wsErr *wsError) error {
	return s.enqueue(wsFrame{Type: "res", ID: id, OK: &ok, Payload: payload, Error: wsErr})
}

func (s *wsSession) sendError(id string, code string, message string) {
	ok := false
	_ = s.enqueue(wsFrame{Type: "res", ID: id, OK: &ok, Error: &wsError{Code: code, Message: message}})
}

func (s *wsSession) enqueue(frame wsFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	select {
	case s.send <- data:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *wsSession) closeWith(code int, reason string) {
	deadline := time.Now().Add(wsWriteWait)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}
