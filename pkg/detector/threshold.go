package detector

import (
	"sync"
	"time"

	"github.com/hervehildenbrand/ddos-radar/pkg/models"
)

// ThresholdDetector reports when the latest live activity sample carries
// more attacks than the user's DDoS threshold. It fires once per crossing
// and re-arms when the count drops back to the threshold or below.
type ThresholdDetector struct {
	events chan<- models.Event

	mu       sync.Mutex
	exceeded bool
	seq      uint64
}

// NewThresholdDetector creates a new threshold detector.
func NewThresholdDetector(events chan<- models.Event) *ThresholdDetector {
	return &ThresholdDetector{events: events}
}

// Process checks the live activity snapshot with sequence number seq against
// threshold. A threshold of zero or less disables the check. Snapshots older
// than the last one processed are ignored.
func (d *ThresholdDetector) Process(seq uint64, points []models.ChartPoint, threshold int) {
	if threshold <= 0 || len(points) == 0 {
		return
	}
	latest := points[len(points)-1]
	over := latest.Attacks > float64(threshold)

	d.mu.Lock()
	if seq < d.seq {
		d.mu.Unlock()
		return
	}
	d.seq = seq
	fire := over && !d.exceeded
	d.exceeded = over
	d.mu.Unlock()

	if !fire {
		return
	}

	severity := models.SeverityHigh
	if latest.Attacks >= 2*float64(threshold) {
		severity = models.SeverityCritical
	}

	event := models.Event{
		EventType:  models.EventTypeThresholdExceeded,
		Severity:   severity,
		DetectedAt: time.Now(),
		Details: map[string]interface{}{
			"sample_time": latest.Time,
			"attacks":     latest.Attacks,
			"traffic":     latest.Traffic,
			"threshold":   threshold,
		},
	}

	// Non-blocking send
	select {
	case d.events <- event:
	default:
	}
}
