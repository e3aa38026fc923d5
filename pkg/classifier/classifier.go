// Package classifier joins traffic records with the blacklist and derives a
// status for each record.
//
// Classification is a pure function of two snapshots that are polled
// independently. A traffic entry may therefore be classified against a
// blacklist that is one poll cycle behind and flip to ddos_detected on the
// next cycle. That window is accepted eventual consistency, not a bug.
package classifier

import (
	"github.com/hervehildenbrand/ddos-radar/pkg/models"
)

// BlockedSet builds the set of blacklisted addresses.
func BlockedSet(blacklist []models.BlacklistEntry) map[string]struct{} {
	blocked := make(map[string]struct{}, len(blacklist))
	for _, entry := range blacklist {
		blocked[entry.IPAddress] = struct{}{}
	}
	return blocked
}

// Classify tags every traffic entry, in input order, with ddos_detected when
// its source IP is on the blacklist (exact string match) and safe otherwise.
func Classify(traffic []models.TrafficLogEntry, blacklist []models.BlacklistEntry) []models.ClassifiedTrafficEntry {
	blocked := BlockedSet(blacklist)

	out := make([]models.ClassifiedTrafficEntry, 0, len(traffic))
	for _, entry := range traffic {
		out = append(out, ClassifyEntry(entry, blocked))
	}
	return out
}

// ClassifyEntry classifies a single entry against a prebuilt blocked set.
func ClassifyEntry(entry models.TrafficLogEntry, blocked map[string]struct{}) models.ClassifiedTrafficEntry {
	status := models.StatusSafe
	if _, ok := blocked[entry.SourceIP]; ok {
		status = models.StatusDDoSDetected
	}
	return models.ClassifiedTrafficEntry{
		TrafficLogEntry: entry,
		Status:          status,
		Attack:          CanonicalizeAttackType(entry.Details.Type),
	}
}

// CountByStatus tallies classified entries per status.
func CountByStatus(entries []models.ClassifiedTrafficEntry) map[models.TrafficStatus]int {
	counts := map[models.TrafficStatus]int{
		models.StatusDDoSDetected: 0,
		models.StatusFlagged:      0,
		models.StatusSafe:         0,
	}
	for _, e := range entries {
		counts[e.Status]++
	}
	return counts
}
