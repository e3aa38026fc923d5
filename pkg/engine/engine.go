// Package engine wires one poller per API resource to the derived dashboard
// views, the chat session and the command dispatcher.
//
// Resources poll independently, so a view may combine snapshots taken at
// different instants. A traffic entry can classify against a blacklist that
// is one poll older and change status on the next cycle; that window is
// expected and bounded by the poll intervals.
package engine

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hervehildenbrand/ddos-radar/pkg/chat"
	"github.com/hervehildenbrand/ddos-radar/pkg/commands"
	"github.com/hervehildenbrand/ddos-radar/pkg/fetcher"
	"github.com/hervehildenbrand/ddos-radar/pkg/models"
	"github.com/hervehildenbrand/ddos-radar/pkg/poller"
	"github.com/hervehildenbrand/ddos-radar/pkg/view"
)

// View names used in change notifications and by the console API.
const (
	ViewTraffic       = "traffic"
	ViewBlacklist     = "blacklist"
	ViewNotifications = "notifications"
	ViewSummary       = "summary"
	ViewChat          = "chat"
	ViewSettings      = "settings"
)

// Options configures an Engine. Intervals are keyed by resource name;
// a missing key uses poller.DefaultInterval and zero means manual only.
type Options struct {
	API            *fetcher.Client
	SettingsAPI    *fetcher.Client
	Intervals      map[string]time.Duration
	ChatInterval   time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	DegradedAfter  int
}

// SnapshotStore persists the last good snapshot of each resource.
type SnapshotStore interface {
	Load(ctx context.Context, resource string, out interface{}) (time.Time, bool, error)
	Save(ctx context.Context, resource string, data interface{}, fetchedAt time.Time) error
}

// resource is the type-independent surface of a poller.
type resource interface {
	Name() string
	Interval() time.Duration
	Start()
	Trigger() bool
	Stop()
	Status() poller.Status
	Stats() map[string]interface{}
}

const resolveTimeout = 10 * time.Second

// Engine owns all pollers and the derived views.
type Engine struct {
	Traffic      *poller.Poller[[]models.TrafficLogEntry]
	Blacklist    *poller.Poller[[]models.BlacklistEntry]
	AttackLogs   *poller.Poller[[]models.AttackLogEntry]
	Stats        *poller.Poller[models.DashboardStats]
	TrafficChart *poller.Poller[[]models.ChartPoint]
	LiveActivity *poller.Poller[[]models.ChartPoint]
	Distribution *poller.Poller[[]models.DistributionSlice]
	Settings     *poller.Poller[models.Settings]

	Chat     *chat.Session
	Commands *commands.Dispatcher

	resources    []resource
	chatInterval time.Duration

	mu            sync.Mutex
	trafficFilter view.Filter
	projection    TrafficProjection
	origin        origin
	observers     []func(view string)

	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
	stopped atomic.Bool

	// Stats
	recomputes uint64
}

// New creates the engine. Nothing is fetched until Start.
func New(opts Options) *Engine {
	settingsAPI := opts.SettingsAPI
	if settingsAPI == nil {
		settingsAPI = opts.API
	}

	pollerOpts := func(name string) poller.Options {
		interval, ok := opts.Intervals[name]
		if !ok {
			interval = poller.DefaultInterval
		}
		return poller.Options{
			Interval:       interval,
			BackoffInitial: opts.BackoffInitial,
			BackoffMax:     opts.BackoffMax,
			DegradedAfter:  opts.DegradedAfter,
		}
	}

	e := &Engine{
		Traffic: poller.New(fetcher.NameTrafficLog,
			fetcher.JSON[[]models.TrafficLogEntry](opts.API, fetcher.TrafficLog), pollerOpts(fetcher.NameTrafficLog)),
		Blacklist: poller.New(fetcher.NameBlacklist,
			fetcher.JSON[[]models.BlacklistEntry](opts.API, fetcher.Blacklist), pollerOpts(fetcher.NameBlacklist)),
		AttackLogs: poller.New(fetcher.NameAttackLogs,
			fetcher.JSON[[]models.AttackLogEntry](opts.API, fetcher.AttackLogs), pollerOpts(fetcher.NameAttackLogs)),
		Stats: poller.New(fetcher.NameDashboardStats,
			fetcher.JSON[models.DashboardStats](opts.API, fetcher.DashboardStats), pollerOpts(fetcher.NameDashboardStats)),
		TrafficChart: poller.New(fetcher.NameTrafficChart,
			fetcher.JSON[[]models.ChartPoint](opts.API, fetcher.TrafficChart), pollerOpts(fetcher.NameTrafficChart)),
		LiveActivity: poller.New(fetcher.NameLiveActivity,
			fetcher.JSON[[]models.ChartPoint](opts.API, fetcher.LiveActivity), pollerOpts(fetcher.NameLiveActivity)),
		Distribution: poller.New(fetcher.NameAttackDistribution,
			fetcher.JSON[[]models.DistributionSlice](opts.API, fetcher.AttackDistribution), pollerOpts(fetcher.NameAttackDistribution)),
		Settings: poller.New(fetcher.NameSettings,
			emptyIfNotFound(fetcher.JSON[models.Settings](settingsAPI, fetcher.Settings)), pollerOpts(fetcher.NameSettings)),
		Chat:          chat.NewSession(chat.NewAPIBackend(opts.API)),
		chatInterval:  opts.ChatInterval,
		trafficFilter: view.Filter{}.Normalized(),
		done:          make(chan struct{}),
	}
	e.resources = []resource{
		e.Traffic, e.Blacklist, e.AttackLogs, e.Stats,
		e.TrafficChart, e.LiveActivity, e.Distribution, e.Settings,
	}
	e.Commands = commands.NewDispatcher(opts.API, settingsAPI, commands.Targets{
		Blacklist: e.Blacklist,
		Traffic:   e.Traffic,
		Settings:  e.Settings,
	})
	e.projection = e.computeTraffic(e.trafficFilter)

	e.Traffic.Subscribe(func(poller.Snapshot[[]models.TrafficLogEntry]) {
		e.recomputeTraffic()
		e.notify(ViewTraffic)
	})
	e.Blacklist.Subscribe(func(poller.Snapshot[[]models.BlacklistEntry]) {
		e.recomputeTraffic()
		e.notify(ViewTraffic)
		e.notify(ViewBlacklist)
	})
	e.AttackLogs.Subscribe(func(poller.Snapshot[[]models.AttackLogEntry]) {
		e.notify(ViewNotifications)
		e.notify(ViewSummary)
	})
	e.TrafficChart.Subscribe(func(poller.Snapshot[[]models.ChartPoint]) { e.notify(ViewSummary) })
	e.LiveActivity.Subscribe(func(poller.Snapshot[[]models.ChartPoint]) { e.notify(ViewSummary) })
	e.Stats.Subscribe(func(poller.Snapshot[models.DashboardStats]) { e.notify(ViewSummary) })
	e.Distribution.Subscribe(func(poller.Snapshot[[]models.DistributionSlice]) { e.notify(ViewSummary) })
	e.Settings.Subscribe(func(s poller.Snapshot[models.Settings]) {
		if s.Err == nil && s.Valid && !s.Seeded {
			e.resolveOrigin(s)
		}
		e.notify(ViewSettings)
	})
	e.Chat.OnChange(func([]models.ChatMessage) { e.notify(ViewChat) })

	return e
}

// emptyIfNotFound treats a 404 from the settings service as "no user yet"
// and returns empty settings instead of a failure.
func emptyIfNotFound(fetch poller.FetchFunc[models.Settings]) poller.FetchFunc[models.Settings] {
	return func(ctx context.Context) (models.Settings, error) {
		settings, err := fetch(ctx)
		var fe *fetcher.Error
		if errors.As(err, &fe) && fe.Kind == fetcher.KindHTTPStatus && fe.Status == http.StatusNotFound {
			return models.Settings{}, nil
		}
		return settings, err
	}
}

// origin is the resolved IP for the website URL of one settings snapshot.
type origin struct {
	url string
	ip  string
	err string
	seq uint64
}

// resolveOrigin resolves the website URL of a fresh settings snapshot. An
// answer for an older snapshot never replaces a newer one.
func (e *Engine) resolveOrigin(s poller.Snapshot[models.Settings]) {
	o := origin{url: strings.TrimSpace(s.Data.Website.URL), seq: s.Seq}
	if o.url != "" {
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		ip, err := e.Commands.ResolveIP(ctx, o.url)
		cancel()
		if err != nil {
			log.Printf("[settings] Warning: could not resolve %s: %v", o.url, err)
			o.err = err.Error()
		} else {
			o.ip = ip
		}
	}

	e.mu.Lock()
	if o.seq >= e.origin.seq {
		e.origin = o
	}
	e.mu.Unlock()
}

// OnChange registers fn to be called with the name of every view whose
// inputs changed. fn may be called from several goroutines at once.
func (e *Engine) OnChange(fn func(view string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

func (e *Engine) notify(name string) {
	e.mu.Lock()
	observers := append([]func(string){}, e.observers...)
	e.mu.Unlock()
	for _, fn := range observers {
		fn(name)
	}
}

// OnAttackLogs registers fn to receive every freshly fetched attack log.
// Seeded and stale-on-error snapshots are not reported.
func (e *Engine) OnAttackLogs(fn func([]models.AttackLogEntry)) {
	e.AttackLogs.Subscribe(func(s poller.Snapshot[[]models.AttackLogEntry]) {
		if s.Err == nil && !s.Seeded {
			fn(s.Data)
		}
	})
}

// UseStore seeds every poller from store and saves each fresh snapshot
// back to it. Call before Start.
func (e *Engine) UseStore(ctx context.Context, store SnapshotStore) {
	attachStore(ctx, store, e.Traffic)
	attachStore(ctx, store, e.Blacklist)
	attachStore(ctx, store, e.AttackLogs)
	attachStore(ctx, store, e.Stats)
	attachStore(ctx, store, e.TrafficChart)
	attachStore(ctx, store, e.LiveActivity)
	attachStore(ctx, store, e.Distribution)
	attachStore(ctx, store, e.Settings)
}

func attachStore[T any](ctx context.Context, store SnapshotStore, p *poller.Poller[T]) {
	var data T
	fetchedAt, ok, err := store.Load(ctx, p.Name(), &data)
	switch {
	case err != nil:
		log.Printf("[%s] Warning: cached snapshot unavailable: %v", p.Name(), err)
	case ok:
		if p.Seed(data, fetchedAt) {
			log.Printf("[%s] Seeded from cache (fetched %s)", p.Name(), fetchedAt.Format(time.RFC3339))
		}
	}

	saver := &snapshotSaver{store: store, resource: p.Name()}
	p.Subscribe(func(s poller.Snapshot[T]) {
		if s.Err != nil || s.Seeded {
			return
		}
		saver.save(s.Seq, s.Data, s.FetchedAt)
	})
}

// snapshotSaver writes the snapshots of one resource to a store. Listeners
// may overlap, so saves are serialized and never go back in seq.
type snapshotSaver struct {
	store    SnapshotStore
	resource string

	mu    sync.Mutex
	saved uint64
}

func (w *snapshotSaver) save(seq uint64, data interface{}, fetchedAt time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if seq <= w.saved {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.store.Save(ctx, w.resource, data, fetchedAt); err != nil {
		log.Printf("[%s] Warning: cache save failed: %v", w.resource, err)
		return false
	}
	w.saved = seq
	return true
}

// Start begins polling every resource and loads the chat history.
func (e *Engine) Start() {
	if e.stopped.Load() || e.running.Swap(true) {
		return
	}
	for _, r := range e.resources {
		r.Start()
		// Manual resources still load once so every view has data.
		if r.Interval() == 0 {
			r.Trigger()
		}
	}

	e.wg.Add(1)
	go e.chatLoop()
	log.Printf("[engine] Started %d resources", len(e.resources))
}

// Stop halts every poller. Responses still in flight are discarded.
func (e *Engine) Stop() {
	if e.stopped.Swap(true) {
		return
	}
	close(e.done)
	for _, r := range e.resources {
		r.Stop()
	}
	e.wg.Wait()
	log.Printf("[engine] Stopped")
}

func (e *Engine) chatLoop() {
	defer e.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-e.done
		cancel()
	}()

	e.loadChat(ctx)
	if e.chatInterval <= 0 {
		<-e.done
		return
	}

	ticker := time.NewTicker(e.chatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.loadChat(ctx)
		}
	}
}

func (e *Engine) loadChat(ctx context.Context) {
	if _, err := e.Chat.LoadHistory(ctx); err != nil && ctx.Err() == nil {
		log.Printf("[chat] History load failed: %v", err)
	}
}

// Health returns the status of every resource, ordered by name.
func (e *Engine) Health() []poller.Status {
	out := make([]poller.Status, 0, len(e.resources))
	for _, r := range e.resources {
		out = append(out, r.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Resource < out[j].Resource })
	return out
}

// Degraded lists the resources whose consecutive failures reached the
// configured threshold.
func (e *Engine) Degraded() []string {
	var out []string
	for _, s := range e.Health() {
		if s.Degraded {
			out = append(out, s.Resource)
		}
	}
	return out
}

// ResourceStats returns the poller statistics keyed by resource name.
func (e *Engine) ResourceStats() map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(e.resources))
	for _, r := range e.resources {
		out[r.Name()] = r.Stats()
	}
	return out
}

// Recomputes returns how many times the traffic projection was rebuilt.
func (e *Engine) Recomputes() uint64 {
	return atomic.LoadUint64(&e.recomputes)
}
