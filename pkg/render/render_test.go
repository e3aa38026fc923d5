package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/hervehildenbrand/ddos-radar/pkg/engine"
	"github.com/hervehildenbrand/ddos-radar/pkg/fetcher"
	"github.com/hervehildenbrand/ddos-radar/pkg/models"
	"github.com/hervehildenbrand/ddos-radar/pkg/poller"
	"github.com/hervehildenbrand/ddos-radar/pkg/view"
)

var now = time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC)

func TestRelativeTime(t *testing.T) {
	tests := []struct {
		ts       models.Timestamp
		expected string
	}{
		{"2024-05-03T11:59:18", "42s ago"},
		{"2024-05-03T11:55:00Z", "5m ago"},
		{"2024-05-03T09:00:00", "3h ago"},
		{"2024-05-01T11:00:00", "2d ago"},
		{"2024-05-03T12:00:00", "just now"},
		{"2024-05-03T12:05:00", "just now"},
		{"yesterday", "yesterday"},
	}

	for _, tt := range tests {
		t.Run(string(tt.ts), func(t *testing.T) {
			if got := RelativeTime(tt.ts, now); got != tt.expected {
				t.Errorf("RelativeTime(%q) = %q, expected %q", tt.ts, got, tt.expected)
			}
		})
	}
}

func TestBytes(t *testing.T) {
	n := func(v int64) *int64 { return &v }
	tests := []struct {
		in       *int64
		expected string
	}{
		{nil, "-"},
		{n(512), "512 B"},
		{n(2048), "2.0 KiB"},
		{n(5 * 1024 * 1024), "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := Bytes(tt.in); got != tt.expected {
			t.Errorf("Bytes = %q, expected %q", got, tt.expected)
		}
	}
}

func TestTraffic(t *testing.T) {
	packets := int64(1200)
	p := engine.TrafficProjection{
		Filter: view.Filter{Status: view.All},
		Total:  2,
		Entries: []models.ClassifiedTrafficEntry{
			{
				TrafficLogEntry: models.TrafficLogEntry{ID: 1, SourceIP: "203.0.113.5", Timestamp: "2024-05-03T11:59:00",
					Details: models.FlowDetails{Type: "syn", TotalPackets: &packets}},
				Status: models.StatusDDoSDetected,
				Attack: models.AttackInfo{Title: "SYN Flood"},
			},
			{
				TrafficLogEntry: models.TrafficLogEntry{ID: 2, SourceIP: "198.51.100.7", Timestamp: "2024-05-03T11:00:00"},
				Status:          models.StatusSafe,
				Attack:          models.AttackInfo{Title: "Network Attack"},
			},
		},
	}

	var buf bytes.Buffer
	Traffic(&buf, p, now)
	out := buf.String()

	for _, want := range []string{"2 of 2 entries", "203.0.113.5", "SYN Flood", "1200", "DDoS Detected", "1m ago", "Safe"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Network Attack") {
		t.Error("Entries without a type should not show the fallback attack")
	}
}

func TestNotifications(t *testing.T) {
	entries := []engine.AnnotatedAttack{{
		AttackLogEntry: models.AttackLogEntry{ID: 4, SourceIP: "10.0.0.4", Timestamp: "2024-05-03T10:00:00", EmailStatus: "sent", CallStatus: "failed"},
		Attack:         models.AttackInfo{Title: "UDP Flood"},
		EmailSent:      true,
		CallMade:       true,
	}}

	var buf bytes.Buffer
	Notifications(&buf, entries, now)
	out := buf.String()
	for _, want := range []string{"UDP Flood", "OK (sent)", "FAILED", "2h ago"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
}

func TestSummaryAndHealth(t *testing.T) {
	var buf bytes.Buffer
	Summary(&buf, engine.Summary{
		Stats:        models.DashboardStats{TotalDetectedAttacks: 12, BlockedIPs: 3, ActiveThreats: 1},
		Distribution: []models.DistributionSlice{{Name: "SYN Flood", Value: 7}},
		Degraded:     []string{"blacklist"},
	}, now)
	out := buf.String()
	for _, want := range []string{"Detected attacks: 12", "Blocked IPs: 3", "Degraded: blacklist", "SYN Flood"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}

	buf.Reset()
	Health(&buf, []poller.Status{
		{Resource: "blacklist", State: poller.StateIdle, Failures: 3, Degraded: true,
			Err: &fetcher.Error{Kind: fetcher.KindNetwork, Detail: "connection refused", Resource: "blacklist"}},
		{Resource: "traffic-log", State: poller.StateIdle, FetchedAt: now.Add(-30 * time.Second)},
	}, now)
	out = buf.String()
	for _, want := range []string{"idle (degraded)", "connection refused", "never", "30s ago"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
}
