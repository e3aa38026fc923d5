package store

import (
	"context"
	"testing"
	"time"

	"github.com/hervehildenbrand/ddos-radar/pkg/models"
)

func TestSnapshotCache_LocalRoundTrip(t *testing.T) {
	c := NewSnapshotCache(nil, 0)
	ctx := context.Background()

	var missing []models.BlacklistEntry
	if _, ok, err := c.Load(ctx, "blacklist", &missing); ok || err != nil {
		t.Fatalf("Expected miss, got ok=%v err=%v", ok, err)
	}

	fetchedAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	in := []models.BlacklistEntry{{IPAddress: "203.0.113.5", Reason: "DDoS attack detected", Timestamp: "2024-05-01T08:00:00"}}
	if err := c.Save(ctx, "blacklist", in, fetchedAt); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var out []models.BlacklistEntry
	at, ok, err := c.Load(ctx, "blacklist", &out)
	if err != nil || !ok {
		t.Fatalf("Expected hit, got ok=%v err=%v", ok, err)
	}
	if !at.Equal(fetchedAt) {
		t.Errorf("Expected fetch time %v, got %v", fetchedAt, at)
	}
	if len(out) != 1 || out[0] != in[0] {
		t.Errorf("Unexpected data %+v", out)
	}

	stats := c.Stats()
	if stats["hits"] != uint64(1) || stats["misses"] != uint64(1) || stats["writes"] != uint64(1) {
		t.Errorf("Unexpected stats %v", stats)
	}
	if stats["redis"] != false {
		t.Error("Expected redis disabled")
	}
}

func TestSnapshotCache_DecodeMismatch(t *testing.T) {
	c := NewSnapshotCache(nil, time.Hour)
	ctx := context.Background()
	c.Save(ctx, "dashboard-stats", []string{"not", "stats"}, time.Now())

	var out models.DashboardStats
	if _, ok, err := c.Load(ctx, "dashboard-stats", &out); ok || err == nil {
		t.Errorf("Expected decode error, got ok=%v err=%v", ok, err)
	}
}

func TestKey(t *testing.T) {
	if got := Key("traffic-log"); got != "ddos:snapshot:traffic-log" {
		t.Errorf("Unexpected key %q", got)
	}
}
