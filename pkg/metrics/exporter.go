package metrics

import (
	"time"

	"github.com/hervehildenbrand/ddos-radar/pkg/engine"
	"github.com/hervehildenbrand/ddos-radar/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Exporter collects engine state and exports it as Prometheus metrics
type Exporter struct {
	eng *engine.Engine

	// Per-resource metrics
	resourceUp       *prometheus.GaugeVec
	resourceFailures *prometheus.GaugeVec
	resourceDegraded *prometheus.GaugeVec
	resourceAge      *prometheus.GaugeVec
	resourceRequests *prometheus.GaugeVec

	// View metrics
	trafficEntries *prometheus.GaugeVec
	blacklistSize  prometheus.Gauge
	chatMessages   prometheus.Gauge
	recomputes     prometheus.Gauge
	uptimeSeconds  prometheus.Gauge

	startTime time.Time
}

// NewExporter creates a new Prometheus exporter
func NewExporter(eng *engine.Engine) *Exporter {
	return &Exporter{
		eng:       eng,
		startTime: time.Now(),

		resourceUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ddos_radar_resource_up",
				Help: "Whether the last fetch of the resource succeeded",
			},
			[]string{"resource"},
		),
		resourceFailures: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ddos_radar_resource_consecutive_failures",
				Help: "Consecutive failed fetches since the last success",
			},
			[]string{"resource"},
		),
		resourceDegraded: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ddos_radar_resource_degraded",
				Help: "Whether the resource reached the degraded threshold",
			},
			[]string{"resource"},
		),
		resourceAge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ddos_radar_resource_age_seconds",
				Help: "Seconds since the snapshot in use was fetched",
			},
			[]string{"resource"},
		),
		resourceRequests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ddos_radar_resource_requests_total",
				Help: "Requests per resource by outcome",
			},
			[]string{"resource", "outcome"}, // success, error, discarded, dropped
		),

		trafficEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ddos_radar_traffic_entries",
				Help: "Classified traffic entries by status",
			},
			[]string{"status"},
		),
		blacklistSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ddos_radar_blacklist_size",
			Help: "Number of blocked IP addresses",
		}),
		chatMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ddos_radar_chat_messages",
			Help: "Messages in the chat log",
		}),
		recomputes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ddos_radar_traffic_recomputes_total",
			Help: "Times the traffic projection was rebuilt",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ddos_radar_uptime_seconds",
			Help: "Console uptime in seconds",
		}),
	}
}

// Describe implements prometheus.Collector
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	e.resourceUp.Describe(ch)
	e.resourceFailures.Describe(ch)
	e.resourceDegraded.Describe(ch)
	e.resourceAge.Describe(ch)
	e.resourceRequests.Describe(ch)

	e.trafficEntries.Describe(ch)
	e.blacklistSize.Describe(ch)
	e.chatMessages.Describe(ch)
	e.recomputes.Describe(ch)
	e.uptimeSeconds.Describe(ch)
}

// Collect implements prometheus.Collector
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	now := time.Now()

	for _, h := range e.eng.Health() {
		e.resourceUp.WithLabelValues(h.Resource).Set(boolFloat(h.Valid && h.Err == nil))
		e.resourceFailures.WithLabelValues(h.Resource).Set(float64(h.Failures))
		e.resourceDegraded.WithLabelValues(h.Resource).Set(boolFloat(h.Degraded))
		age := 0.0
		if !h.FetchedAt.IsZero() {
			age = now.Sub(h.FetchedAt).Seconds()
		}
		e.resourceAge.WithLabelValues(h.Resource).Set(age)
	}

	for name, stats := range e.eng.ResourceStats() {
		for _, outcome := range []string{"successes", "errors", "discarded", "dropped"} {
			e.resourceRequests.WithLabelValues(name, outcomeLabel(outcome)).Set(toFloat(stats[outcome]))
		}
	}

	counts := e.eng.TrafficView().Counts
	for _, status := range []models.TrafficStatus{models.StatusDDoSDetected, models.StatusFlagged, models.StatusSafe} {
		e.trafficEntries.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
	e.blacklistSize.Set(float64(len(e.eng.Blacklist.Snapshot().Data)))
	e.chatMessages.Set(float64(len(e.eng.Chat.Messages())))
	e.recomputes.Set(float64(e.eng.Recomputes()))
	e.uptimeSeconds.Set(now.Sub(e.startTime).Seconds())

	e.resourceUp.Collect(ch)
	e.resourceFailures.Collect(ch)
	e.resourceDegraded.Collect(ch)
	e.resourceAge.Collect(ch)
	e.resourceRequests.Collect(ch)

	e.trafficEntries.Collect(ch)
	e.blacklistSize.Collect(ch)
	e.chatMessages.Collect(ch)
	e.recomputes.Collect(ch)
	e.uptimeSeconds.Collect(ch)
}

func outcomeLabel(stat string) string {
	switch stat {
	case "successes":
		return "success"
	case "errors":
		return "error"
	}
	return stat
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case uint64:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
