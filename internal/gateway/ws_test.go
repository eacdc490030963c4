package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/regassist/regassist/internal/convstore"
	"github.com/regassist/regassist/internal/llm"
	"github.com/regassist/regassist/internal/orchestrator"
	"github.com/regassist/regassist/pkg/models"
)

// fakeProvider answers every completion with a single text chunk and no
// tool calls, which is enough to drive a turn through orchestrator.Loop
// without ever touching a network.
type fakeProvider struct{}

func (fakeProvider) Name() string { return "fake" }

func (fakeProvider) Complete(ctx context.Context, req *llm.Request) (<-chan *llm.Chunk, error) {
	ch := make(chan *llm.Chunk, 2)
	ch <- &llm.Chunk{Text: "acknowledged"}
	ch <- &llm.Chunk{Done: true}
	close(ch)
	return ch, nil
}

func newTestServer(t *testing.T, secret string) (*httptest.Server, string) {
	t.Helper()
	loop := orchestrator.NewLoop(fakeProvider{}, orchestrator.NewToolRegistry(), convstore.NewMemoryStore(), nil, nil)
	registry, err := models.NewRegistry([]*models.Agent{
		{Name: "aviation-safety", SystemPrompt: "you are a helpful regulatory assistant"},
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	auth := NewAuthenticator(secret)
	gw := NewServer(loop, registry, auth, nil)

	server := httptest.NewServer(gw)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return server, wsURL
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame wsFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return frame
}

// readFrameSkipPing reads frames until it sees one that is not a "ping"
// liveness event, since pingLoop can fire concurrently with test assertions.
func readFrameSkipPing(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	for {
		frame := readFrame(t, conn)
		if frame.Type == "event" && frame.Event == "ping" {
			continue
		}
		return frame
	}
}

func TestServeHTTPConnectThenChatSendRoundTrips(t *testing.T) {
	server, wsURL := newTestServer(t, "shared-secret")
	defer server.Close()

	token := signToken(t, "shared-secret", Claims{Fingerprint: "fp-1", Agent: "aviation-safety"})
	conn := dial(t, wsURL)
	defer conn.Close()

	connectFrame := wsFrame{
		Type:   "req",
		ID:     "1",
		Method: "connect",
		Params: mustJSON(t, wsConnectParams{ConversationID: "conv-1", Token: token}),
	}
	if err := conn.WriteJSON(connectFrame); err != nil {
		t.Fatalf("write connect: %v", err)
	}

	res := readFrameSkipPing(t, conn)
	if res.Type != "res" || res.OK == nil || !*res.OK {
		t.Fatalf("expected successful connect response, got %+v", res)
	}

	sendFrame := wsFrame{
		Type:   "req",
		ID:     "2",
		Method: "chat.send",
		Params: mustJSON(t, wsChatSendParams{Message: "what does 14 CFR 25.1309 require?"}),
	}
	if err := conn.WriteJSON(sendFrame); err != nil {
		t.Fatalf("write chat.send: %v", err)
	}

	ack := readFrameSkipPing(t, conn)
	if ack.Type != "res" || ack.ID != "2" || ack.OK == nil || !*ack.OK {
		t.Fatalf("expected ack response to chat.send, got %+v", ack)
	}

	turn := readFrameSkipPing(t, conn)
	if turn.Type != "event" || turn.Event != "turn" {
		t.Fatalf("expected a turn event, got %+v", turn)
	}
}

func TestServeHTTPRejectsRequestBeforeConnect(t *testing.T) {
	server, wsURL := newTestServer(t, "shared-secret")
	defer server.Close()

	conn := dial(t, wsURL)
	defer conn.Close()

	sendFrame := wsFrame{
		Type:   "req",
		ID:     "1",
		Method: "chat.send",
		Params: mustJSON(t, wsChatSendParams{Message: "hello"}),
	}
	if err := conn.WriteJSON(sendFrame); err != nil {
		t.Fatalf("write chat.send: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("expected connection to be closed")
	}
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected a close error, got %v", err)
	}
	if closeErr.Code != CloseAuthRequired {
		t.Errorf("expected close code %d, got %d", CloseAuthRequired, closeErr.Code)
	}
}

func TestServeHTTPRejectsInvalidToken(t *testing.T) {
	server, wsURL := newTestServer(t, "shared-secret")
	defer server.Close()

	conn := dial(t, wsURL)
	defer conn.Close()

	connectFrame := wsFrame{
		Type:   "req",
		ID:     "1",
		Method: "connect",
		Params: mustJSON(t, wsConnectParams{ConversationID: "conv-1", Token: "not-a-jwt"}),
	}
	if err := conn.WriteJSON(connectFrame); err != nil {
		t.Fatalf("write connect: %v", err)
	}

	res := readFrameSkipPing(t, conn)
	if res.Type != "res" || res.OK == nil || *res.OK {
		t.Fatalf("expected a failed connect response, got %+v", res)
	}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}
