package diagserver

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestBroadcastReachesConnectedClient(t *testing.T) {
	s := New()
	ts := httptest.NewServer(s)
	defer ts.Close()
	defer s.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the server's upgrade handler a moment to register the client.
	deadline := time.Now().Add(time.Second)
	for s.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.ClientCount() != 1 {
		t.Fatalf("expected 1 registered client, got %d", s.ClientCount())
	}

	if err := s.Broadcast(Event{SessionID: "sess-1", Phase: "codegen", Detail: "fn main"}); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var got Event
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.SessionID != "sess-1" || got.Phase != "codegen" || got.Detail != "fn main" {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestBroadcastWithNoClientsIsNotAnError(t *testing.T) {
	s := New()
	if err := s.Broadcast(Event{SessionID: "x", Phase: "parse"}); err != nil {
		t.Fatalf("expected no error broadcasting to zero clients, got %v", err)
	}
}
