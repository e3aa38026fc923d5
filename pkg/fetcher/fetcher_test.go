package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hervehildenbrand/ddos-radar/pkg/models"
)

func TestClientDo_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/blacklist" {
			t.Errorf("Expected path /api/blacklist, got %s", r.URL.Path)
		}
		w.Write([]byte(`[{"ip_address":"203.0.113.5","reason":"SYN Flood","timestamp":"2024-05-01T10:00:00"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", 0)
	entries, err := JSON[[]models.BlacklistEntry](c, Blacklist)(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].IPAddress != "203.0.113.5" {
		t.Errorf("Expected IP 203.0.113.5, got %s", entries[0].IPAddress)
	}
	if entries[0].Timestamp != "2024-05-01T10:00:00" {
		t.Errorf("Timestamp was altered: %s", entries[0].Timestamp)
	}
}

func TestClientDo_ErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    Kind
		status  int
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			kind:   KindHTTPStatus,
			status: http.StatusInternalServerError,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			kind:   KindHTTPStatus,
			status: http.StatusNotFound,
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`[{"ip_address":`))
			},
			kind: KindDecode,
		},
		{
			name: "wrong shape",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"detail":"not a list"}`))
			},
			kind: KindDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient(srv.URL, 0)
			var out []models.BlacklistEntry
			err := c.Do(context.Background(), Blacklist, &out)

			var fe *Error
			if !errors.As(err, &fe) {
				t.Fatalf("Expected *Error, got %T (%v)", err, err)
			}
			if fe.Kind != tt.kind {
				t.Errorf("Expected kind %s, got %s", tt.kind, fe.Kind)
			}
			if fe.Status != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, fe.Status)
			}
			if fe.Resource != NameBlacklist {
				t.Errorf("Expected resource %s, got %s", NameBlacklist, fe.Resource)
			}
		})
	}
}

func TestClientDo_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, 0)
	err := c.Do(context.Background(), TrafficLog, nil)
	fe := AsError(err)
	if fe == nil || fe.Kind != KindNetwork {
		t.Fatalf("Expected network error, got %v", err)
	}
}

func TestClientDo_RequestBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		var q models.ChatQuery
		if err := json.Unmarshal(body, &q); err != nil {
			t.Errorf("Bad request body %s: %v", body, err)
		}
		if q.Query != "what happened?" {
			t.Errorf("Expected query 'what happened?', got %q", q.Query)
		}
		w.Write([]byte(`{"response":"nothing"}`))
	}))
	defer srv.Close()

	var reply models.ChatReply
	if err := NewClient(srv.URL, 0).Do(context.Background(), Chatbot("what happened?"), &reply); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if reply.Response != "nothing" {
		t.Errorf("Expected response 'nothing', got %q", reply.Response)
	}
}

func TestUnblockEscapesPath(t *testing.T) {
	res := Unblock("2001:db8::1")
	if res.Method != http.MethodDelete {
		t.Errorf("Expected DELETE, got %s", res.Method)
	}
	if res.Path != "/api/blacklist/2001:db8::1" {
		t.Errorf("Unexpected path %s", res.Path)
	}
	if got := Unblock("a/b").Path; got != "/api/blacklist/a%2Fb" {
		t.Errorf("Expected slash to be escaped, got %s", got)
	}
}

func TestAsError(t *testing.T) {
	if AsError(nil) != nil {
		t.Error("AsError(nil) should be nil")
	}
	fe := AsError(errors.New("dial tcp: refused"))
	if fe.Kind != KindNetwork {
		t.Errorf("Expected foreign errors to map to network, got %s", fe.Kind)
	}
	orig := &Error{Kind: KindDecode, Detail: "x"}
	if AsError(orig) != orig {
		t.Error("AsError should return the original *Error")
	}
}

func TestClientDo_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"ip_address":"203.0.113.5"},{"ip_address":"198.51.100.7"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	c.maxBody = 16

	var out []models.BlacklistEntry
	err := c.Do(context.Background(), Blacklist, &out)
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("Expected *Error, got %v", err)
	}
	if fe.Kind != KindDecode || fe.Resource != NameBlacklist {
		t.Errorf("Expected decode error for blacklist, got %+v", fe)
	}
	if out != nil {
		t.Errorf("Expected nothing decoded, got %+v", out)
	}

	// A body within the limit still decodes.
	c.maxBody = maxBodyBytes
	if err := c.Do(context.Background(), Blacklist, &out); err != nil || len(out) != 2 {
		t.Errorf("Expected 2 entries, got %d (err=%v)", len(out), err)
	}
}
