package feed

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hervehildenbrand/ddos-radar/pkg/view"
)

func TestClient_StreamAndFilter(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"view_update","view":"chat","data":{}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"view_update","view":"blacklist","data":[{"ip_address":"203.0.113.5"}]}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"event","data":{"event_type":"new_attack","severity":"high"}}`))

		var in map[string]interface{}
		if err := conn.ReadJSON(&in); err == nil {
			received <- in
		}
		// Hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	updates := make(chan Update, 10)
	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), updates)
	c.Start()
	defer c.Stop()

	var got []Update
	for len(got) < 2 {
		select {
		case u := <-updates:
			got = append(got, u)
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for updates, got %d", len(got))
		}
	}
	if len(got[0].Blacklist) != 1 || got[0].Blacklist[0].IPAddress != "203.0.113.5" {
		t.Errorf("Expected blacklist update first, got %+v", got[0])
	}
	if got[1].Event == nil || got[1].Event.EventType != "new_attack" {
		t.Errorf("Expected new_attack event, got %+v", got[1])
	}

	if err := c.SetTrafficFilter(view.Filter{Search: "10.0", Status: "safe"}); err != nil {
		t.Fatalf("SetTrafficFilter failed: %v", err)
	}
	select {
	case in := <-received:
		if in["type"] != "set_traffic_filter" {
			t.Errorf("Expected set_traffic_filter, got %v", in["type"])
		}
		filter, _ := in["filter"].(map[string]interface{})
		if filter["search"] != "10.0" || filter["status"] != "safe" {
			t.Errorf("Unexpected filter %v", in["filter"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Server never received the filter frame")
	}

	stats := c.Stats()
	if stats["messages_received"].(uint64) != 3 {
		t.Errorf("Expected 3 messages, got %v", stats["messages_received"])
	}
	if stats["updates_parsed"].(uint64) != 2 {
		t.Errorf("Expected 2 updates, got %v", stats["updates_parsed"])
	}
}

func TestClient_NotConnected(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", make(chan Update, 1))
	if err := c.SetTrafficFilter(view.Filter{}); err != ErrNotConnected {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if c.Connected() {
		t.Error("Expected disconnected client")
	}
	// Stop before Start is a no-op
	c.Stop()
}
