// Package chat keeps the assistant conversation consistent with the server.
//
// A send appends an optimistic user message at once, posts the query and then
// replaces the whole log with the server's history. The log is never appended
// to from server data, so an optimistic message can not end up duplicated.
// Until the server's history carries it, an optimistic message is kept
// across reloads, including after a failed send.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hervehildenbrand/ddos-radar/pkg/fetcher"
	"github.com/hervehildenbrand/ddos-radar/pkg/models"
)

// GreetingText is shown when the server has no history yet.
const GreetingText = "Hello! I'm your DDoS Protection Assistant. How can I help you today?"

// GreetingID is the stable id of the local greeting message.
const GreetingID int64 = 0

var (
	// ErrSendInProgress is returned when a send is attempted while another is pending.
	ErrSendInProgress = errors.New("chat: a message is already being sent")
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("chat: message is empty")
)

// Backend is the server side of the conversation.
type Backend interface {
	History(ctx context.Context) ([]models.ChatMessage, error)
	Ask(ctx context.Context, query string) (string, error)
}

// Session holds the ordered message log.
type Session struct {
	backend Backend
	now     func() time.Time

	mu       sync.Mutex
	messages []models.ChatMessage
	loadSeq  uint64
	pending  []pendingMessage
	lastErr  error
	onChange []func([]models.ChatMessage)

	sending atomic.Bool
}

// pendingMessage is a local user message the server has not confirmed.
// baseline counts the confirmed user messages with the same content that
// were already in the log when it was sent.
type pendingMessage struct {
	msg      models.ChatMessage
	baseline int
	token    uint64
}

// NewSession creates an empty session. Call LoadHistory to populate it.
func NewSession(backend Backend) *Session {
	return &Session{backend: backend, now: time.Now}
}

// OnChange registers fn to receive a copy of the log after every change.
func (s *Session) OnChange(fn func([]models.ChatMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Messages returns a copy of the current log.
func (s *Session) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ChatMessage(nil), s.messages...)
}

// Sending reports whether a send is pending.
func (s *Session) Sending() bool {
	return s.sending.Load()
}

// LastError returns the error of the most recent failed send or load.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// LoadHistory replaces the entire log with the server's history. An empty
// history is replaced by a single local greeting. User messages the server
// has not confirmed yet are appended after the history. A load that was
// overtaken by a newer load or send is discarded.
func (s *Session) LoadHistory(ctx context.Context) ([]models.ChatMessage, error) {
	s.mu.Lock()
	s.loadSeq++
	seq := s.loadSeq
	s.mu.Unlock()

	history, err := s.backend.History(ctx)

	s.mu.Lock()
	if seq != s.loadSeq {
		current := append([]models.ChatMessage(nil), s.messages...)
		s.mu.Unlock()
		return current, nil
	}
	if err != nil {
		s.lastErr = err
		current := append([]models.ChatMessage(nil), s.messages...)
		s.mu.Unlock()
		return current, fmt.Errorf("load chat history: %w", err)
	}

	s.messages = confirmed(history, s.now())
	s.pending = reconcilePending(s.pending, s.messages)
	for _, p := range s.pending {
		m := p.msg
		m.ID = nextID(s.messages)
		s.messages = append(s.messages, m)
	}
	s.lastErr = nil
	msgs, listeners := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(msgs, listeners)
	return msgs, nil
}

// Send posts text to the assistant. The user's message is visible in the log
// immediately. On success the log is reloaded from the server; on failure the
// optimistic message stays and the error is returned. Only one send may be
// pending at a time.
func (s *Session) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if !s.sending.CompareAndSwap(false, true) {
		return ErrSendInProgress
	}
	defer s.sending.Store(false)

	s.mu.Lock()
	// Loads issued before this send would drop the optimistic message.
	s.loadSeq++
	optimistic := models.ChatMessage{
		ID:        nextID(s.messages),
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: models.Timestamp(s.now().UTC().Format(time.RFC3339Nano)),
		Kind:      models.KindOptimistic,
	}
	s.messages = append(s.messages, optimistic)
	token := s.loadSeq
	s.pending = append(s.pending, pendingMessage{msg: optimistic, baseline: countConfirmed(s.messages, text), token: token})
	msgs, listeners := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(msgs, listeners)

	if _, err := s.backend.Ask(ctx, text); err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		log.Printf("[chat] Send failed, keeping local message: %v", err)
		return fmt.Errorf("send chat message: %w", err)
	}

	// Accepted by the server; the reload below shows its copy.
	s.mu.Lock()
	s.pending = dropPending(s.pending, token)
	s.mu.Unlock()

	_, err := s.LoadHistory(ctx)
	return err
}

func (s *Session) snapshotLocked() ([]models.ChatMessage, []func([]models.ChatMessage)) {
	msgs := append([]models.ChatMessage(nil), s.messages...)
	listeners := append([]func([]models.ChatMessage){}, s.onChange...)
	return msgs, listeners
}

func (s *Session) notify(msgs []models.ChatMessage, listeners []func([]models.ChatMessage)) {
	for _, fn := range listeners {
		fn(msgs)
	}
}

// reconcilePending drops every pending message the server history now
// carries. A pending message is carried once the history holds more
// confirmed copies of its text than when it was sent.
func reconcilePending(pending []pendingMessage, log []models.ChatMessage) []pendingMessage {
	if len(pending) == 0 {
		return nil
	}
	claimed := make(map[string]int)
	var out []pendingMessage
	for _, p := range pending {
		text := p.msg.Content
		if countConfirmed(log, text)-claimed[text] > p.baseline {
			claimed[text]++
			continue
		}
		out = append(out, p)
	}
	return out
}

func dropPending(pending []pendingMessage, token uint64) []pendingMessage {
	out := pending[:0]
	for _, p := range pending {
		if p.token != token {
			out = append(out, p)
		}
	}
	return out
}

func countConfirmed(msgs []models.ChatMessage, text string) int {
	n := 0
	for _, m := range msgs {
		if m.Kind == models.KindConfirmed && m.Role == models.RoleUser && m.Content == text {
			n++
		}
	}
	return n
}

// confirmed turns server history into the local log.
func confirmed(history []models.ChatMessage, now time.Time) []models.ChatMessage {
	if len(history) == 0 {
		return []models.ChatMessage{Greeting(now)}
	}
	out := make([]models.ChatMessage, len(history))
	for i, m := range history {
		m.Kind = models.KindConfirmed
		out[i] = m
	}
	SortMessages(out)
	return out
}

// Greeting returns the local seed message.
func Greeting(now time.Time) models.ChatMessage {
	return models.ChatMessage{
		ID:        GreetingID,
		Role:      models.RoleAssistant,
		Content:   GreetingText,
		Timestamp: models.Timestamp(now.UTC().Format(time.RFC3339Nano)),
		Kind:      models.KindGreeting,
	}
}

// SortMessages orders messages by timestamp, then id.
func SortMessages(msgs []models.ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i], msgs[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	})
}

// nextID returns an id greater than any in the log, so an optimistic
// message orders after everything already shown.
func nextID(msgs []models.ChatMessage) int64 {
	var max int64
	for _, m := range msgs {
		if m.ID > max {
			max = m.ID
		}
	}
	return max + 1
}

// APIBackend talks to /api/chat-history and /api/chatbot.
type APIBackend struct {
	client *fetcher.Client
}

// NewAPIBackend creates a backend for the detection API.
func NewAPIBackend(client *fetcher.Client) *APIBackend {
	return &APIBackend{client: client}
}

func (b *APIBackend) History(ctx context.Context) ([]models.ChatMessage, error) {
	var history []models.ChatMessage
	if err := b.client.Do(ctx, fetcher.ChatHistory, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (b *APIBackend) Ask(ctx context.Context, query string) (string, error) {
	var reply models.ChatReply
	if err := b.client.Do(ctx, fetcher.Chatbot(query), &reply); err != nil {
		return "", err
	}
	return reply.Response, nil
}
