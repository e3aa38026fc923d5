// Package models defines the data structures exchanged with the DDoS detection API
// and the derived records built from them.
package models

import (
	"strings"
	"time"
)

// Timestamp is an ISO-8601 timestamp exactly as the server sent it.
// The stored value is never rewritten; it is only parsed for ordering and display.
type Timestamp string

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Time parses the timestamp. Values without a zone are read as UTC,
// which is how the back end stores them.
func (t Timestamp) Time() (time.Time, bool) {
	s := strings.TrimSpace(string(t))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// Before orders two timestamps. Parseable values compare by instant,
// anything else falls back to lexical order.
func (t Timestamp) Before(other Timestamp) bool {
	a, okA := t.Time()
	b, okB := other.Time()
	if okA && okB {
		return a.Before(b)
	}
	return string(t) < string(other)
}

// FlowDetails carries the optional per-flow features attached by the capture pipeline.
type FlowDetails struct {
	Type                string   `json:"type,omitempty"`
	TotalPackets        *int64   `json:"total_packets,omitempty"`
	TotalBytes          *int64   `json:"total_bytes,omitempty"`
	FlowDurationSeconds *float64 `json:"flow_duration,omitempty"`
}

// TrafficLogEntry is one observed flow from /api/traffic-log.
type TrafficLogEntry struct {
	ID        int64       `json:"id"`
	SourceIP  string      `json:"source_ip"`
	Timestamp Timestamp   `json:"timestamp"`
	Details   FlowDetails `json:"details"`
}

// BlacklistEntry is one currently blocked address from /api/blacklist.
type BlacklistEntry struct {
	IPAddress string    `json:"ip_address"`
	Reason    string    `json:"reason"`
	Timestamp Timestamp `json:"timestamp"`
}

// AttackLogEntry is one confirmed attack event from /api/attack-logs.
// The notifications view is built from the same records.
type AttackLogEntry struct {
	ID          int64       `json:"id"`
	SourceIP    string      `json:"source_ip"`
	Timestamp   Timestamp   `json:"timestamp"`
	Details     FlowDetails `json:"details"`
	EmailStatus string      `json:"email_status,omitempty"`
	CallStatus  string      `json:"call_status,omitempty"`
}

// NotificationEntry is the notifications page name for an attack log record.
type NotificationEntry = AttackLogEntry

// Delivery states reported for email and call notifications.
const (
	DeliverySent    = "sent"
	DeliverySuccess = "success"
	DeliveryFailed  = "failed"
	DeliveryPending = "pending"
)

// Delivered reports whether a delivery status means the notification went out.
func Delivered(status string) bool {
	switch strings.ToLower(status) {
	case DeliverySent, DeliverySuccess, "delivered", "completed":
		return true
	}
	return false
}

// TrafficStatus is the derived classification of a traffic entry.
type TrafficStatus string

// Traffic statuses. StatusFlagged has no derivation rule yet: nothing the
// API exposes signals it, so Classify never produces it.
const (
	StatusDDoSDetected TrafficStatus = "ddos_detected"
	StatusFlagged      TrafficStatus = "flagged"
	StatusSafe         TrafficStatus = "safe"
)

// Label returns the display label used by the dashboard.
func (s TrafficStatus) Label() string {
	switch s {
	case StatusDDoSDetected:
		return "DDoS Detected"
	case StatusFlagged:
		return "Flagged"
	case StatusSafe:
		return "Safe"
	default:
		return string(s)
	}
}

// ClassifiedTrafficEntry is a traffic entry joined with blacklist membership.
// It is derived on every snapshot change and never persisted.
type ClassifiedTrafficEntry struct {
	TrafficLogEntry
	Status TrafficStatus `json:"status"`
	Attack AttackInfo    `json:"attack"`
}

// AttackInfo is the canonical description of an attack-type label.
type AttackInfo struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// DashboardStats are the server-computed aggregate counters.
type DashboardStats struct {
	TotalDetectedAttacks int64 `json:"total_detected_attacks"`
	BlockedIPs           int64 `json:"blocked_ips"`
	ActiveThreats        int64 `json:"active_threats"`
}

// ChartPoint is one sample of the 24h traffic chart or the live activity chart.
type ChartPoint struct {
	Time    string  `json:"time"`
	Traffic float64 `json:"traffic"`
	Attacks float64 `json:"attacks"`
}

// DistributionSlice is one bucket of the attack-type histogram.
type DistributionSlice struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}
