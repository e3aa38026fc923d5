package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hervehildenbrand/ddos-radar/pkg/fetcher"
)

// scriptedFetch hands out one response per call and blocks until released.
type scriptedFetch struct {
	calls   int32
	release chan result
}

type result struct {
	data []string
	err  error
}

func newScriptedFetch() *scriptedFetch {
	return &scriptedFetch{release: make(chan result)}
}

func (s *scriptedFetch) fetch(ctx context.Context) ([]string, error) {
	atomic.AddInt32(&s.calls, 1)
	r := <-s.release
	return r.data, r.err
}

func (s *scriptedFetch) Calls() int {
	return int(atomic.LoadInt32(&s.calls))
}

func waitSnapshot(t *testing.T, ch <-chan Snapshot[[]string]) Snapshot[[]string] {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(time.Second):
		t.Fatal("Expected snapshot, got none")
	}
	return Snapshot[[]string]{}
}

func waitCalls(t *testing.T, s *scriptedFetch, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for s.Calls() < n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d fetch calls, got %d", n, s.Calls())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPoller_SuccessReplacesSnapshot(t *testing.T) {
	s := newScriptedFetch()
	p := New[[]string]("blacklist", s.fetch, Options{})
	defer p.Stop()

	updates := make(chan Snapshot[[]string], 4)
	p.Subscribe(func(snap Snapshot[[]string]) { updates <- snap })

	if !p.Trigger() {
		t.Fatal("Expected first trigger to issue a request")
	}
	s.release <- result{data: []string{"203.0.113.5"}}
	snap := waitSnapshot(t, updates)

	if !snap.Valid || len(snap.Data) != 1 || snap.Data[0] != "203.0.113.5" {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
	if snap.Err != nil {
		t.Errorf("Expected no error, got %v", snap.Err)
	}
	if snap.FetchedAt.IsZero() {
		t.Error("Expected FetchedAt to be set")
	}
	if p.State() != StateIdle {
		t.Errorf("Expected idle state, got %s", p.State())
	}
}

func TestPoller_StaleOnError(t *testing.T) {
	s := newScriptedFetch()
	p := New[[]string]("traffic-log", s.fetch, Options{})
	defer p.Stop()

	updates := make(chan Snapshot[[]string], 4)
	p.Subscribe(func(snap Snapshot[[]string]) { updates <- snap })

	p.Trigger()
	s.release <- result{data: []string{"a", "b"}}
	good := waitSnapshot(t, updates)

	p.Trigger()
	s.release <- result{err: &fetcher.Error{Kind: fetcher.KindHTTPStatus, Status: 502, Detail: "bad gateway"}}
	bad := waitSnapshot(t, updates)

	if len(bad.Data) != 2 || bad.Data[0] != "a" || bad.Data[1] != "b" {
		t.Errorf("Expected data from the successful fetch to be kept, got %v", bad.Data)
	}
	if !bad.FetchedAt.Equal(good.FetchedAt) {
		t.Errorf("FetchedAt changed on failure: %v != %v", bad.FetchedAt, good.FetchedAt)
	}
	if bad.Err == nil || bad.Err.Kind != fetcher.KindHTTPStatus {
		t.Fatalf("Expected http_status error, got %v", bad.Err)
	}
	if bad.Err.Resource != "traffic-log" {
		t.Errorf("Expected error tagged with resource, got %q", bad.Err.Resource)
	}
	if bad.Failures != 1 {
		t.Errorf("Expected 1 failure, got %d", bad.Failures)
	}

	p.Trigger()
	s.release <- result{data: []string{"c"}}
	recovered := waitSnapshot(t, updates)
	if recovered.Err != nil || recovered.Failures != 0 {
		t.Errorf("Expected error cleared after success, got %+v", recovered)
	}
}

func TestPoller_AtMostOneInFlight(t *testing.T) {
	s := newScriptedFetch()
	p := New[[]string]("notifications", s.fetch, Options{})
	defer p.Stop()

	updates := make(chan Snapshot[[]string], 4)
	p.Subscribe(func(snap Snapshot[[]string]) { updates <- snap })

	if !p.Trigger() {
		t.Fatal("Expected first trigger to issue a request")
	}
	if p.Trigger() {
		t.Error("Expected second trigger to be dropped while fetching")
	}
	waitCalls(t, s, 1)
	if p.State() != StateFetching {
		t.Errorf("Expected fetching state, got %s", p.State())
	}
	if got := s.Calls(); got != 1 {
		t.Errorf("Expected exactly 1 outstanding request, got %d", got)
	}

	s.release <- result{data: []string{"x"}}
	waitSnapshot(t, updates)

	stats := p.Stats()
	if stats["dropped"].(uint64) != 1 {
		t.Errorf("Expected 1 dropped trigger, got %v", stats["dropped"])
	}
}

func TestPoller_RefreshDiscardsInFlight(t *testing.T) {
	s := newScriptedFetch()
	p := New[[]string]("blacklist", s.fetch, Options{})
	defer p.Stop()

	var mu sync.Mutex
	var seen [][]string
	updates := make(chan Snapshot[[]string], 4)
	p.Subscribe(func(snap Snapshot[[]string]) {
		mu.Lock()
		seen = append(seen, snap.Data)
		mu.Unlock()
		updates <- snap
	})

	p.Trigger()
	waitCalls(t, s, 1)
	p.Refresh()

	// The pre-mutation response arrives after the refresh and must be dropped.
	s.release <- result{data: []string{"203.0.113.5"}}
	waitCalls(t, s, 2)
	s.release <- result{data: []string{}}
	snap := waitSnapshot(t, updates)

	if len(snap.Data) != 0 {
		t.Errorf("Expected refreshed empty blacklist, got %v", snap.Data)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Errorf("Expected only the refreshed snapshot to be applied, got %v", seen)
	}
	if got := p.Stats()["discarded"].(uint64); got != 1 {
		t.Errorf("Expected 1 discarded response, got %d", got)
	}
}

func TestPoller_StopDiscardsLateResponse(t *testing.T) {
	started := make(chan struct{})
	fetch := func(ctx context.Context) ([]string, error) {
		close(started)
		<-ctx.Done()
		// A response that arrives after teardown.
		return []string{"late"}, nil
	}
	p := New[[]string]("dashboard-stats", fetch, Options{})

	applied := make(chan Snapshot[[]string], 1)
	p.Subscribe(func(snap Snapshot[[]string]) { applied <- snap })

	p.Trigger()
	<-started
	p.Stop()

	select {
	case snap := <-applied:
		t.Fatalf("Late response was applied: %+v", snap)
	default:
	}
	if p.Snapshot().Valid {
		t.Error("Expected snapshot to remain empty after stop")
	}
	if p.State() != StateStopped {
		t.Errorf("Expected stopped state, got %s", p.State())
	}
	if p.Trigger() {
		t.Error("Expected trigger after stop to be ignored")
	}
}

func TestPoller_StartPollsOnInterval(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context) ([]string, error) {
		n := atomic.AddInt32(&calls, 1)
		return []string{string(rune('a' + n))}, nil
	}
	p := New[[]string]("live-activity-chart", fetch, Options{Interval: 20 * time.Millisecond})
	p.Start()
	time.Sleep(110 * time.Millisecond)
	p.Stop()

	if got := atomic.LoadInt32(&calls); got < 3 {
		t.Errorf("Expected at least 3 scheduled fetches, got %d", got)
	}
}

func TestPoller_ManualOnlyDoesNotPoll(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context) ([]string, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}
	p := New[[]string]("settings", fetch, Options{})
	p.Start()
	time.Sleep(30 * time.Millisecond)
	p.Stop()

	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("Expected no fetches without an interval, got %d", got)
	}
}

func TestPoller_Degraded(t *testing.T) {
	fetch := func(ctx context.Context) ([]string, error) {
		return nil, &fetcher.Error{Kind: fetcher.KindHTTPStatus, Status: 500}
	}
	p := New[[]string]("traffic-log", fetch, Options{DegradedAfter: 2})
	defer p.Stop()

	updates := make(chan Snapshot[[]string], 4)
	p.Subscribe(func(snap Snapshot[[]string]) { updates <- snap })

	p.Trigger()
	waitSnapshot(t, updates)
	if p.Degraded() {
		t.Error("Expected not degraded after one failure")
	}
	p.Trigger()
	waitSnapshot(t, updates)
	if !p.Degraded() {
		t.Error("Expected degraded after two failures")
	}
}

func TestPoller_Seed(t *testing.T) {
	s := newScriptedFetch()
	p := New[[]string]("blacklist", s.fetch, Options{})
	defer p.Stop()

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if !p.Seed([]string{"cached"}, at) {
		t.Fatal("Expected seed to apply on a fresh poller")
	}
	snap := p.Snapshot()
	if !snap.Valid || !snap.Seeded || snap.Data[0] != "cached" || !snap.FetchedAt.Equal(at) {
		t.Errorf("Unexpected seeded snapshot %+v", snap)
	}

	updates := make(chan Snapshot[[]string], 1)
	p.Subscribe(func(snap Snapshot[[]string]) { updates <- snap })
	p.Trigger()
	if p.Seed([]string{"other"}, at) {
		t.Error("Expected seed to be ignored once a request was issued")
	}
	s.release <- result{data: []string{"fresh"}}
	snap = waitSnapshot(t, updates)
	if snap.Seeded || snap.Data[0] != "fresh" {
		t.Errorf("Expected fetched data to replace seed, got %+v", snap)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		failures int
		expected time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{50, 10 * time.Second},
	}

	for _, tt := range tests {
		if got := Backoff(tt.failures, time.Second, 10*time.Second); got != tt.expected {
			t.Errorf("Backoff(%d) = %v, want %v", tt.failures, got, tt.expected)
		}
	}
}

func TestPoller_RetryBeforeNextTick(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context) ([]string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, &fetcher.Error{Kind: fetcher.KindNetwork, Detail: "refused"}
		}
		return []string{"ok"}, nil
	}
	p := New[[]string]("attack-logs", fetch, Options{
		Interval:       time.Hour,
		BackoffInitial: 10 * time.Millisecond,
		BackoffMax:     50 * time.Millisecond,
	})

	updates := make(chan Snapshot[[]string], 4)
	p.Subscribe(func(snap Snapshot[[]string]) { updates <- snap })
	p.Start()
	defer p.Stop()

	first := waitSnapshot(t, updates)
	if first.Err == nil {
		t.Fatalf("Expected first attempt to fail, got %+v", first)
	}
	second := waitSnapshot(t, updates)
	if second.Err != nil || len(second.Data) != 1 {
		t.Errorf("Expected backoff retry to succeed, got %+v", second)
	}
}
