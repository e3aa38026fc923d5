package engine

import (
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hervehildenbrand/ddos-radar/pkg/classifier"
	"github.com/hervehildenbrand/ddos-radar/pkg/models"
	"github.com/hervehildenbrand/ddos-radar/pkg/view"
)

// recentAttacks is how many attack log entries the summary shows.
const recentAttacks = 5

// TrafficProjection is the filtered traffic view together with the inputs
// it was computed from.
type TrafficProjection struct {
	Filter       view.Filter                     `json:"filter"`
	TrafficSeq   uint64                          `json:"traffic_seq"`
	BlacklistSeq uint64                          `json:"blacklist_seq"`
	Entries      []models.ClassifiedTrafficEntry `json:"entries"`
	Total        int                             `json:"total"`
	Counts       map[models.TrafficStatus]int    `json:"counts"`
	ComputedAt   time.Time                       `json:"computed_at"`
}

// AnnotatedAttack is an attack log entry with its canonical attack type and
// delivery flags. CallMade is set once a call was attempted, whatever its outcome.
type AnnotatedAttack struct {
	models.AttackLogEntry
	Attack    models.AttackInfo `json:"attack"`
	EmailSent bool              `json:"email_sent"`
	CallMade  bool              `json:"call_made"`
}

// Summary is the dashboard landing view.
type Summary struct {
	Stats        models.DashboardStats      `json:"stats"`
	TrafficChart []models.ChartPoint        `json:"traffic_chart"`
	LiveActivity []models.ChartPoint        `json:"live_activity"`
	Distribution []models.DistributionSlice `json:"attack_distribution"`
	Recent       []AnnotatedAttack          `json:"recent_attacks"`
	Degraded     []string                   `json:"degraded,omitempty"`
}

// SettingsView is the settings document with the origin IP resolved for its
// website URL.
type SettingsView struct {
	Settings     models.Settings `json:"settings"`
	ResolvedIP   string          `json:"resolved_ip,omitempty"`
	ResolveError string          `json:"resolve_error,omitempty"`
}

// ComputeTraffic classifies the current traffic snapshot against the current
// blacklist snapshot and applies f. It does not change the stored projection.
func (e *Engine) ComputeTraffic(f view.Filter) TrafficProjection {
	return e.computeTraffic(f.Normalized())
}

func (e *Engine) computeTraffic(f view.Filter) TrafficProjection {
	traffic := e.Traffic.Snapshot()
	blacklist := e.Blacklist.Snapshot()

	classified := classifier.Classify(traffic.Data, blacklist.Data)
	return TrafficProjection{
		Filter:       f,
		TrafficSeq:   traffic.Seq,
		BlacklistSeq: blacklist.Seq,
		Entries:      view.ApplyView(classified, f),
		Total:        len(classified),
		Counts:       classifier.CountByStatus(classified),
		ComputedAt:   time.Now(),
	}
}

// recomputeTraffic rebuilds the stored projection from the latest snapshots.
// Snapshots are read under e.mu so the last writer always saw the newest data.
func (e *Engine) recomputeTraffic() {
	e.mu.Lock()
	e.projection = e.computeTraffic(e.trafficFilter)
	e.mu.Unlock()
	atomic.AddUint64(&e.recomputes, 1)
}

// SetTrafficFilter replaces the traffic filter and returns the projection
// recomputed for it.
func (e *Engine) SetTrafficFilter(f view.Filter) TrafficProjection {
	e.mu.Lock()
	e.trafficFilter = f.Normalized()
	e.projection = e.computeTraffic(e.trafficFilter)
	proj := e.projection
	e.mu.Unlock()
	atomic.AddUint64(&e.recomputes, 1)

	e.notify(ViewTraffic)
	return proj
}

// TrafficView returns the stored projection.
func (e *Engine) TrafficView() TrafficProjection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.projection
}

// BlacklistView filters the current blacklist by IP address and reason.
func (e *Engine) BlacklistView(f view.Filter) []models.BlacklistEntry {
	return view.FilterBlacklist(e.Blacklist.Snapshot().Data, f)
}

// NotificationsView filters the attack log by IP and attack type, and by
// delivery category, newest first.
func (e *Engine) NotificationsView(f view.Filter) []AnnotatedAttack {
	entries := view.FilterNotifications(e.AttackLogs.Snapshot().Data, f)
	return annotate(newestFirst(entries))
}

// Summary assembles the landing view from the current snapshots.
func (e *Engine) Summary() Summary {
	attacks := newestFirst(e.AttackLogs.Snapshot().Data)
	if len(attacks) > recentAttacks {
		attacks = attacks[:recentAttacks]
	}
	return Summary{
		Stats:        e.Stats.Snapshot().Data,
		TrafficChart: e.TrafficChart.Snapshot().Data,
		LiveActivity: e.LiveActivity.Snapshot().Data,
		Distribution: e.Distribution.Snapshot().Data,
		Recent:       annotate(attacks),
		Degraded:     e.Degraded(),
	}
}

// newestFirst returns a sorted copy; the snapshot itself is never reordered.
func newestFirst(entries []models.AttackLogEntry) []models.AttackLogEntry {
	out := append([]models.AttackLogEntry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Timestamp != b.Timestamp {
			return b.Timestamp.Before(a.Timestamp)
		}
		return a.ID > b.ID
	})
	return out
}

func annotate(entries []models.AttackLogEntry) []AnnotatedAttack {
	out := make([]AnnotatedAttack, len(entries))
	for i, entry := range entries {
		out[i] = AnnotatedAttack{
			AttackLogEntry: entry,
			Attack:         classifier.CanonicalizeAttackType(entry.Details.Type),
			EmailSent:      models.Delivered(entry.EmailStatus),
			CallMade:       entry.CallStatus != "",
		}
	}
	return out
}

// SettingsView returns the current settings. The resolved IP is only
// reported while it belongs to the current website URL.
func (e *Engine) SettingsView() SettingsView {
	settings := e.Settings.Snapshot().Data
	out := SettingsView{Settings: settings}

	e.mu.Lock()
	o := e.origin
	e.mu.Unlock()
	if o.url != "" && o.url == strings.TrimSpace(settings.Website.URL) {
		out.ResolvedIP = o.ip
		out.ResolveError = o.err
	}
	return out
}
