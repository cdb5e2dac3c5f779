package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialWS connects a test client to the server's WebSocket endpoint.
func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // Deadline failure surfaces as a read error below
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading message: %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal message %q: %v", data, err)
	}
	return msg
}

func TestWebSocketSubscribeAndBroadcast(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.buildRouter())
	defer srv.Close()

	conn := dialWS(t, srv)

	sub := WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelStateChanged}},
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("writing subscribe: %v", err)
	}

	resp := readMessage(t, conn)
	if resp.Type != WSTypeResponse || resp.ID != "sub-1" {
		t.Fatalf("subscribe response = %+v", resp)
	}

	// Broadcast after the subscription is registered.
	s.Hub().Broadcast(ChannelStateChanged, map[string]any{"on": true, "speed": 66.0})

	event := readMessage(t, conn)
	if event.Type != WSTypeEvent || event.EventType != ChannelStateChanged {
		t.Fatalf("event = %+v", event)
	}
	payload, ok := event.Payload.(map[string]any)
	if !ok || payload["speed"] != 66.0 {
		t.Errorf("payload = %v", event.Payload)
	}
}

func TestWebSocketUnsubscribedClientGetsNothing(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.buildRouter())
	defer srv.Close()

	conn := dialWS(t, srv)

	// Give the server a moment to register the client.
	deadline := time.Now().Add(time.Second)
	for s.Hub().ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	s.Hub().Broadcast(ChannelStateChanged, map[string]any{"on": true})

	//nolint:errcheck // Deadline failure surfaces as a read error below
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("unsubscribed client received a broadcast")
	}
}

func TestWebSocketPingMessage(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.buildRouter())
	defer srv.Close()

	conn := dialWS(t, srv)

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("writing ping: %v", err)
	}
	resp := readMessage(t, conn)
	if resp.Type != WSTypePong || resp.ID != "p1" {
		t.Errorf("pong = %+v", resp)
	}
}
