// Package web serves the console's local HTTP API and pushes view updates to
// browsers over a websocket.
package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hervehildenbrand/ddos-radar/pkg/chat"
	"github.com/hervehildenbrand/ddos-radar/pkg/commands"
	"github.com/hervehildenbrand/ddos-radar/pkg/engine"
	"github.com/hervehildenbrand/ddos-radar/pkg/fetcher"
	"github.com/hervehildenbrand/ddos-radar/pkg/models"
	"github.com/hervehildenbrand/ddos-radar/pkg/poller"
	"github.com/hervehildenbrand/ddos-radar/pkg/view"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error    string         `json:"error"`
	Upstream *fetcher.Error `json:"upstream,omitempty"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Resources []poller.Status `json:"resources"`
	Degraded  []string        `json:"degraded"`
}

// SettingsResponse is returned by GET /api/settings.
type SettingsResponse struct {
	Settings     models.Settings `json:"settings"`
	ResolvedIP   string          `json:"resolved_ip,omitempty"`
	ResolveError string          `json:"resolve_error,omitempty"`
	Status       poller.Status   `json:"status"`
}

// ChatResponse is returned by the chat endpoints.
type ChatResponse struct {
	Messages []models.ChatMessage `json:"messages"`
	Sending  bool                 `json:"sending"`
}

// Server routes console requests to the engine.
type Server struct {
	eng    *engine.Engine
	hub    *Hub
	router *mux.Router
}

// NewServer builds the router. metrics may be nil.
func NewServer(eng *engine.Engine, hub *Hub, metrics http.Handler) *Server {
	s := &Server{eng: eng, hub: hub, router: mux.NewRouter()}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/views/{view}", s.handleView).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/chat", s.handleChatHistory).Methods(http.MethodGet)
	api.HandleFunc("/chat", s.handleChatSend).Methods(http.MethodPost)
	api.HandleFunc("/blacklist/{ip}", s.handleUnblock).Methods(http.MethodDelete)
	api.HandleFunc("/settings", s.handleSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings/{section}", s.handleSaveSettings).Methods(http.MethodPut)
	api.HandleFunc("/resolve-ip", s.handleResolveIP).Methods(http.MethodPost)

	if hub != nil {
		s.router.HandleFunc("/ws", hub.ServeWS)
	}
	if metrics != nil {
		s.router.Handle("/metrics", metrics)
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ViewData returns the current state of a view. A nil filter selects the
// stored traffic projection and unfiltered lists.
func ViewData(eng *engine.Engine, name string, f *view.Filter) interface{} {
	var filter view.Filter
	if f != nil {
		filter = *f
	}
	switch name {
	case engine.ViewTraffic:
		if f == nil {
			return eng.TrafficView()
		}
		return eng.ComputeTraffic(filter)
	case engine.ViewBlacklist:
		return eng.BlacklistView(filter)
	case engine.ViewNotifications:
		return eng.NotificationsView(filter)
	case engine.ViewSummary:
		return eng.Summary()
	case engine.ViewChat:
		return ChatResponse{Messages: eng.Chat.Messages(), Sending: eng.Chat.Sending()}
	case engine.ViewSettings:
		return eng.SettingsView()
	}
	return nil
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["view"]
	q := r.URL.Query()
	f := view.Filter{Search: q.Get("search"), Status: q.Get("status")}
	if f.Status == "" {
		f.Status = q.Get("category")
	}

	switch name {
	case engine.ViewTraffic, engine.ViewBlacklist, engine.ViewNotifications, engine.ViewSummary:
		writeJSON(w, http.StatusOK, ViewData(s.eng, name, &f))
	default:
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown view " + name})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	degraded := s.eng.Degraded()
	if degraded == nil {
		degraded = []string{}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Resources: s.eng.Health(), Degraded: degraded})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ViewData(s.eng, engine.ViewChat, nil))
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var req models.ChatQuery
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if err := s.eng.Chat.Send(r.Context(), req.Query); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ViewData(s.eng, engine.ViewChat, nil))
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	ip := mux.Vars(r)["ip"]
	if err := s.eng.Commands.UnblockIP(r.Context(), ip); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "IP " + ip + " unblocked"})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	v := s.eng.SettingsView()
	writeJSON(w, http.StatusOK, SettingsResponse{
		Settings:     v.Settings,
		ResolvedIP:   v.ResolvedIP,
		ResolveError: v.ResolveError,
		Status:       s.eng.Settings.Status(),
	})
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	result, err := s.eng.Commands.SaveSettings(r.Context(), mux.Vars(r)["section"], settings)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleResolveIP(w http.ResponseWriter, r *http.Request) {
	var req models.ResolveIPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "url is required"})
		return
	}
	ip, err := s.eng.Commands.ResolveIP(r.Context(), req.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.ResolveIPReply{IPAddress: ip})
}

// writeError maps command and chat errors to status codes. Failures of the
// detection API are reported as 502 with the upstream error attached.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, commands.ErrInvalidIP),
		errors.Is(err, commands.ErrUnknownSection),
		errors.Is(err, chat.ErrEmptyMessage):
		status = http.StatusBadRequest
	case errors.Is(err, chat.ErrSendInProgress):
		status = http.StatusConflict
	}

	resp := ErrorResponse{Error: err.Error()}
	var fe *fetcher.Error
	if errors.As(err, &fe) {
		resp.Upstream = fe
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[web] Failed to write response: %v", err)
	}
}

// NewHTTPServer wraps handler with the console's timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
