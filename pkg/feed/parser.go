package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hervehildenbrand/ddos-radar/pkg/engine"
	"github.com/hervehildenbrand/ddos-radar/pkg/models"
	"github.com/hervehildenbrand/ddos-radar/pkg/view"
)

// Frame types sent by the console.
const (
	frameViewUpdate = "view_update"
	frameEvent      = "event"
)

// Message is the top-level websocket frame from the console.
type Message struct {
	Type string          `json:"type"`
	View string          `json:"view,omitempty"`
	Data json.RawMessage `json:"data"`
}

// Update is one decoded frame. Exactly one payload field is set.
type Update struct {
	ReceivedAt time.Time
	View       string

	Traffic       *engine.TrafficProjection
	Blacklist     []models.BlacklistEntry
	Notifications []engine.AnnotatedAttack
	Summary       *engine.Summary
	Event         *models.Event
}

// ParseMessage decodes a console frame. It returns nil for frames the feed
// does not follow (chat, settings, unknown types).
func ParseMessage(data []byte) (*Update, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}

	update := &Update{ReceivedAt: time.Now(), View: msg.View}

	switch msg.Type {
	case frameEvent:
		var event models.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		update.Event = &event
		return update, nil
	case frameViewUpdate:
	default:
		return nil, nil
	}

	var err error
	switch msg.View {
	case engine.ViewTraffic:
		update.Traffic = &engine.TrafficProjection{}
		err = json.Unmarshal(msg.Data, update.Traffic)
	case engine.ViewBlacklist:
		err = json.Unmarshal(msg.Data, &update.Blacklist)
	case engine.ViewNotifications:
		err = json.Unmarshal(msg.Data, &update.Notifications)
	case engine.ViewSummary:
		update.Summary = &engine.Summary{}
		err = json.Unmarshal(msg.Data, update.Summary)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s view: %w", msg.View, err)
	}
	return update, nil
}

// FilterApplied reports whether a traffic projection was computed for f.
// The console normalizes filters, so f is compared in normalized form.
func FilterApplied(p engine.TrafficProjection, f view.Filter) bool {
	return p.Filter == f.Normalized()
}
