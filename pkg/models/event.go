package models

import "time"

// Event types reported by the change detectors.
const (
	EventTypeIPBlocked         = "ip_blocked"
	EventTypeIPUnblocked       = "ip_unblocked"
	EventTypeNewAttack         = "new_attack"
	EventTypeThresholdExceeded = "threshold_exceeded"
)

// Severity levels.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Event is a change observed between two snapshots of a resource.
type Event struct {
	EventType  string                 `json:"event_type"`
	Severity   string                 `json:"severity"`
	SourceIP   string                 `json:"source_ip,omitempty"`
	DetectedAt time.Time              `json:"detected_at"`
	Details    map[string]interface{} `json:"details,omitempty"`
}
