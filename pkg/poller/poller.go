// Package poller keeps the latest snapshot of one REST resource fresh on a fixed schedule.
//
// A Poller never has more than one request in flight. Every request carries a
// sequence number and a response is applied only if its number is still the
// latest issued, so responses that arrive after Refresh or Stop are discarded.
// Snapshots are replaced wholesale under a lock; readers always see data,
// fetch time and error from the same state.
package poller

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hervehildenbrand/ddos-radar/pkg/fetcher"
)

const (
	// DefaultInterval is the poll interval used when none is configured.
	DefaultInterval = 30 * time.Second

	defaultBackoffInitial = 1 * time.Second
	defaultBackoffMax     = 10 * time.Second
	backoffFactor         = 2.0
	defaultDegradedAfter  = 3
)

// State is the lifecycle state of a Poller.
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
	StateStopped  State = "stopped"
)

// FetchFunc loads one copy of the resource.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Snapshot is the full result of the last successful fetch plus the outcome
// of the most recent attempt.
type Snapshot[T any] struct {
	Data      T              `json:"data"`
	FetchedAt time.Time      `json:"fetched_at"`
	Err       *fetcher.Error `json:"error,omitempty"`
	// Failures counts consecutive failed attempts since the last success.
	Failures int `json:"failures"`
	// Seq is the request sequence number that produced this state.
	Seq uint64 `json:"seq"`
	// Valid is set once Data holds a fetched or seeded value.
	Valid  bool `json:"valid"`
	Seeded bool `json:"seeded,omitempty"`
}

// Options tunes a Poller. Zero values select defaults; an Interval of zero
// or less disables the schedule, leaving only explicit triggers.
type Options struct {
	Interval       time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	DegradedAfter  int
}

// Poller owns the recurring schedule and latest snapshot of one resource.
type Poller[T any] struct {
	name  string
	fetch FetchFunc[T]
	opts  Options

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	mu        sync.Mutex
	snap      Snapshot[T]
	fetching  bool
	issued    uint64
	rerun     bool
	stopped   bool
	nextTick  time.Time
	retry     *time.Timer
	listeners []func(Snapshot[T])

	running atomic.Bool

	// Stats
	requests  uint64
	successes uint64
	errors    uint64
	discarded uint64
	dropped   uint64
}

// New creates a poller for a resource. It does nothing until Start or Trigger.
func New[T any](name string, fetch FetchFunc[T], opts Options) *Poller[T] {
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = defaultBackoffInitial
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = defaultBackoffMax
	}
	if opts.BackoffMax < opts.BackoffInitial {
		opts.BackoffMax = opts.BackoffInitial
	}
	if opts.DegradedAfter <= 0 {
		opts.DegradedAfter = defaultDegradedAfter
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller[T]{
		name:   name,
		fetch:  fetch,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Name returns the resource name.
func (p *Poller[T]) Name() string {
	return p.name
}

// Interval returns the configured schedule, zero when manual only.
func (p *Poller[T]) Interval() time.Duration {
	if p.opts.Interval < 0 {
		return 0
	}
	return p.opts.Interval
}

// Start fetches immediately and then on every interval tick.
func (p *Poller[T]) Start() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if p.running.Swap(true) {
		log.Printf("[%s] Poller already running", p.name)
		return
	}

	p.wg.Add(1)
	go p.runLoop()
	log.Printf("[%s] Poller started (interval=%v)", p.name, p.Interval())
}

// Stop halts the schedule, aborts the in-flight request and waits for it.
// A response that arrives after Stop is never applied.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	if p.retry != nil {
		p.retry.Stop()
		p.retry = nil
	}
	p.mu.Unlock()

	p.cancel()
	close(p.done)
	p.wg.Wait()
	log.Printf("[%s] Poller stopped", p.name)
}

// Subscribe registers fn to receive every applied snapshot. Listeners run
// outside the poller lock and may overlap; compare Seq or call Snapshot
// when only the latest state matters.
func (p *Poller[T]) Subscribe(fn func(Snapshot[T])) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Snapshot returns the current snapshot.
func (p *Poller[T]) Snapshot() Snapshot[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

// State reports whether a request is in flight.
func (p *Poller[T]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.stopped:
		return StateStopped
	case p.fetching:
		return StateFetching
	default:
		return StateIdle
	}
}

// Degraded reports whether the resource has failed often enough in a row
// that the failure should be shown to the user.
func (p *Poller[T]) Degraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap.Failures >= p.opts.DegradedAfter
}

// Status is the type-independent part of a poller's state.
type Status struct {
	Resource  string         `json:"resource"`
	State     State          `json:"state"`
	FetchedAt time.Time      `json:"fetched_at"`
	Err       *fetcher.Error `json:"error,omitempty"`
	Failures  int            `json:"failures"`
	Degraded  bool           `json:"degraded"`
	Valid     bool           `json:"valid"`
	Seeded    bool           `json:"seeded,omitempty"`
}

// Status returns the health of the resource without its data.
func (p *Poller[T]) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := StateIdle
	if p.stopped {
		state = StateStopped
	} else if p.fetching {
		state = StateFetching
	}
	return Status{
		Resource:  p.name,
		State:     state,
		FetchedAt: p.snap.FetchedAt,
		Err:       p.snap.Err,
		Failures:  p.snap.Failures,
		Degraded:  p.snap.Failures >= p.opts.DegradedAfter,
		Valid:     p.snap.Valid,
		Seeded:    p.snap.Seeded,
	}
}

// Trigger starts a fetch unless one is already in flight, in which case the
// trigger is dropped. It reports whether a request was issued.
func (p *Poller[T]) Trigger() bool {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return false
	}
	if p.fetching {
		p.mu.Unlock()
		atomic.AddUint64(&p.dropped, 1)
		return false
	}
	seq := p.beginLocked()
	p.mu.Unlock()

	go p.run(seq)
	return true
}

// Refresh forces an out-of-schedule fetch after a mutation. If a request is
// already in flight its response is discarded as stale and exactly one
// follow-up request is issued when it resolves.
func (p *Poller[T]) Refresh() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	if p.fetching {
		p.issued++
		p.rerun = true
		p.mu.Unlock()
		return
	}
	seq := p.beginLocked()
	p.mu.Unlock()

	go p.run(seq)
}

// Seed installs data loaded from a cache. It is ignored once any request
// has been issued, so it can never overwrite a real fetch.
func (p *Poller[T]) Seed(data T, fetchedAt time.Time) bool {
	p.mu.Lock()
	if p.stopped || p.issued > 0 || p.snap.Valid {
		p.mu.Unlock()
		return false
	}
	p.snap = Snapshot[T]{Data: data, FetchedAt: fetchedAt, Valid: true, Seeded: true}
	snap := p.snap
	listeners := append([]func(Snapshot[T]){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
	return true
}

// Stats returns current statistics.
func (p *Poller[T]) Stats() map[string]interface{} {
	p.mu.Lock()
	snap := p.snap
	fetching := p.fetching
	stopped := p.stopped
	p.mu.Unlock()

	state := StateIdle
	if stopped {
		state = StateStopped
	} else if fetching {
		state = StateFetching
	}

	return map[string]interface{}{
		"resource":             p.name,
		"state":                string(state),
		"requests":             atomic.LoadUint64(&p.requests),
		"successes":            atomic.LoadUint64(&p.successes),
		"errors":               atomic.LoadUint64(&p.errors),
		"discarded":            atomic.LoadUint64(&p.discarded),
		"dropped":              atomic.LoadUint64(&p.dropped),
		"consecutive_failures": snap.Failures,
		"degraded":             snap.Failures >= p.opts.DegradedAfter,
		"fetched_at":           snap.FetchedAt,
	}
}

func (p *Poller[T]) runLoop() {
	defer p.wg.Done()

	interval := p.Interval()
	if interval == 0 {
		<-p.done
		return
	}

	p.setNextTick(time.Now().Add(interval))
	p.Trigger()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case now := <-ticker.C:
			p.setNextTick(now.Add(interval))
			p.Trigger()
		}
	}
}

func (p *Poller[T]) setNextTick(t time.Time) {
	p.mu.Lock()
	p.nextTick = t
	p.mu.Unlock()
}

// beginLocked marks a request in flight and returns its sequence number.
// Callers hold p.mu and have checked p.stopped.
func (p *Poller[T]) beginLocked() uint64 {
	p.issued++
	p.fetching = true
	p.wg.Add(1)
	atomic.AddUint64(&p.requests, 1)
	return p.issued
}

func (p *Poller[T]) run(seq uint64) {
	defer p.wg.Done()
	data, err := p.fetch(p.ctx)
	p.complete(seq, data, err)
}

func (p *Poller[T]) complete(seq uint64, data T, err error) {
	p.mu.Lock()
	p.fetching = false

	if p.stopped || seq != p.issued {
		atomic.AddUint64(&p.discarded, 1)
		rerun := p.rerun && !p.stopped
		p.rerun = false
		var next uint64
		if rerun {
			next = p.beginLocked()
		}
		p.mu.Unlock()
		if rerun {
			go p.run(next)
		}
		return
	}

	prevFailures := p.snap.Failures
	if err == nil {
		atomic.AddUint64(&p.successes, 1)
		p.snap = Snapshot[T]{Data: data, FetchedAt: time.Now(), Seq: seq, Valid: true}
	} else {
		atomic.AddUint64(&p.errors, 1)
		fe := *fetcher.AsError(err)
		if fe.Resource == "" {
			fe.Resource = p.name
		}
		next := p.snap
		next.Err = &fe
		next.Failures = prevFailures + 1
		next.Seq = seq
		p.snap = next
		p.scheduleRetryLocked(next.Failures)
	}

	snap := p.snap
	listeners := append([]func(Snapshot[T]){}, p.listeners...)
	p.mu.Unlock()

	switch {
	case snap.Failures == p.opts.DegradedAfter:
		log.Printf("[%s] Degraded after %d consecutive failures: %v", p.name, snap.Failures, snap.Err)
	case snap.Failures == 0 && prevFailures >= p.opts.DegradedAfter:
		log.Printf("[%s] Recovered after %d failures", p.name, prevFailures)
	case snap.Err != nil:
		log.Printf("[%s] Fetch failed (attempt %d): %v", p.name, snap.Failures, snap.Err)
	}

	for _, fn := range listeners {
		fn(snap)
	}
}

// scheduleRetryLocked arms a backoff retry that fires before the next
// regular tick. Later retries are left to the schedule.
func (p *Poller[T]) scheduleRetryLocked(failures int) {
	if p.Interval() == 0 || p.nextTick.IsZero() {
		return
	}
	delay := Backoff(failures, p.opts.BackoffInitial, p.opts.BackoffMax)
	if !time.Now().Add(delay).Before(p.nextTick) {
		return
	}
	if p.retry != nil {
		p.retry.Stop()
	}
	p.retry = time.AfterFunc(delay, func() {
		p.Trigger()
	})
}

// Backoff returns the retry delay after the given number of consecutive
// failures: initial, doubled per further failure, capped at max.
func Backoff(failures int, initial, max time.Duration) time.Duration {
	if failures < 1 {
		failures = 1
	}
	delay := initial
	for i := 1; i < failures; i++ {
		delay = time.Duration(float64(delay) * backoffFactor)
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
