package detector

import (
	"sort"
	"sync"
	"time"

	"github.com/hervehildenbrand/ddos-radar/pkg/models"
)

// BlacklistDetector reports addresses added to or removed from the blacklist
// between two snapshots. The first snapshot only establishes the baseline.
type BlacklistDetector struct {
	events chan<- models.Event

	mu     sync.Mutex
	known  map[string]models.BlacklistEntry
	seq    uint64
	primed bool
}

// NewBlacklistDetector creates a new blacklist detector.
func NewBlacklistDetector(events chan<- models.Event) *BlacklistDetector {
	return &BlacklistDetector{events: events, known: make(map[string]models.BlacklistEntry)}
}

// Process compares the blacklist snapshot with sequence number seq to the
// previous one. Snapshots older than the last one processed are ignored.
func (d *BlacklistDetector) Process(seq uint64, entries []models.BlacklistEntry) {
	current := make(map[string]models.BlacklistEntry, len(entries))
	for _, e := range entries {
		current[e.IPAddress] = e
	}

	d.mu.Lock()
	if d.primed && seq <= d.seq {
		d.mu.Unlock()
		return
	}
	previous := d.known
	primed := d.primed
	d.known = current
	d.seq = seq
	d.primed = true
	d.mu.Unlock()

	if !primed {
		return
	}

	now := time.Now()
	for _, ip := range sortedKeys(current) {
		if _, ok := previous[ip]; ok {
			continue
		}
		e := current[ip]
		d.emit(models.Event{
			EventType:  models.EventTypeIPBlocked,
			Severity:   models.SeverityMedium,
			SourceIP:   ip,
			DetectedAt: now,
			Details: map[string]interface{}{
				"reason":     e.Reason,
				"blocked_at": string(e.Timestamp),
			},
		})
	}
	for _, ip := range sortedKeys(previous) {
		if _, ok := current[ip]; ok {
			continue
		}
		d.emit(models.Event{
			EventType:  models.EventTypeIPUnblocked,
			Severity:   models.SeverityLow,
			SourceIP:   ip,
			DetectedAt: now,
			Details: map[string]interface{}{
				"reason": previous[ip].Reason,
			},
		})
	}
}

func (d *BlacklistDetector) emit(event models.Event) {
	// Non-blocking send
	select {
	case d.events <- event:
	default:
	}
}

func sortedKeys(m map[string]models.BlacklistEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
