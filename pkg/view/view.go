// Package view filters joined record sets into the slices the dashboard renders.
// Every function here is pure and synchronous: results are recomputed from the
// current snapshot and filter on every call and never cached.
package view

import (
	"strings"

	"github.com/hervehildenbrand/ddos-radar/pkg/classifier"
	"github.com/hervehildenbrand/ddos-radar/pkg/models"
)

// All is the identity value for status and category filters.
const All = "all"

// Filter is the user's search input for one view.
type Filter struct {
	Search string `json:"search"`
	// Status holds a status for the traffic view or a category for the
	// notifications view. Empty means All.
	Status string `json:"status"`
}

// Normalized trims the search text and lowercases the status.
func (f Filter) Normalized() Filter {
	status := strings.ToLower(strings.TrimSpace(f.Status))
	if status == "" {
		status = All
	}
	return Filter{Search: strings.TrimSpace(f.Search), Status: status}
}

// Apply returns the items, in order, whose search keys contain f.Search
// (case-insensitive) and whose category equals f.Status. category may be nil
// when the view has no categorical filter.
func Apply[T any](items []T, f Filter, keys func(T) []string, category func(T) []string) []T {
	f = f.Normalized()
	needle := strings.ToLower(f.Search)

	out := make([]T, 0, len(items))
	for _, item := range items {
		if needle != "" && !containsAny(keys(item), needle) {
			continue
		}
		if f.Status != All {
			if category == nil || !matchesCategory(category(item), f.Status) {
				continue
			}
		}
		out = append(out, item)
	}
	return out
}

func containsAny(keys []string, needle string) bool {
	for _, k := range keys {
		if k != "" && strings.Contains(strings.ToLower(k), needle) {
			return true
		}
	}
	return false
}

func matchesCategory(categories []string, want string) bool {
	for _, c := range categories {
		if strings.EqualFold(c, want) {
			return true
		}
	}
	return false
}

// ApplyView filters classified traffic by IP or attack-type label and by status.
func ApplyView(entries []models.ClassifiedTrafficEntry, f Filter) []models.ClassifiedTrafficEntry {
	return Apply(entries, f, trafficKeys, func(e models.ClassifiedTrafficEntry) []string {
		return []string{string(e.Status)}
	})
}

func trafficKeys(e models.ClassifiedTrafficEntry) []string {
	keys := []string{e.SourceIP}
	if e.Details.Type != "" {
		keys = append(keys, e.Details.Type, e.Attack.Title)
	}
	return keys
}

// FilterBlacklist searches blocked addresses by IP and block reason.
func FilterBlacklist(entries []models.BlacklistEntry, f Filter) []models.BlacklistEntry {
	f.Status = All
	return Apply(entries, f, func(e models.BlacklistEntry) []string {
		return []string{e.IPAddress, e.Reason}
	}, nil)
}

// Notification categories.
const (
	CategoryEmailSent = "email_sent"
	CategoryCallMade  = "call_made"
)

// FilterNotifications searches attack events by IP and attack type and
// filters them by delivery category.
func FilterNotifications(entries []models.AttackLogEntry, f Filter) []models.AttackLogEntry {
	return Apply(entries, f, func(e models.AttackLogEntry) []string {
		keys := []string{e.SourceIP}
		if e.Details.Type != "" {
			keys = append(keys, e.Details.Type, classifier.CanonicalizeAttackType(e.Details.Type).Title)
		}
		return keys
	}, notificationCategories)
}

func notificationCategories(e models.AttackLogEntry) []string {
	var categories []string
	if models.Delivered(e.EmailStatus) {
		categories = append(categories, CategoryEmailSent)
	}
	if e.CallStatus != "" {
		categories = append(categories, CategoryCallMade)
	}
	return categories
}
