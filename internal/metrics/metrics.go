// Package metrics exposes Prometheus instruments for ingestion cycles and
// notification delivery. All methods are nil-safe so callers can pass nil
// when metrics are disabled.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service's instruments.
type Metrics struct {
	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	events        *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	enqueued      prometheus.Counter
	notifications *prometheus.CounterVec
	sendDuration  *prometheus.HistogramVec
}

var (
	defaultOnce sync.Once
	defaultM    *Metrics
)

// Default returns the process-wide metrics registered on the default
// registerer.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultM = New(prometheus.DefaultRegisterer)
	})
	return defaultM
}

// ResetForTest clears the process-wide singleton.
func ResetForTest() {
	defaultOnce = sync.Once{}
	defaultM = nil
}

// New creates and registers a metrics set.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealhunter_cycles_total",
			Help: "Ingestion cycles by region and result.",
		}, []string{"region", "result"}), // ok | failed | skipped
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dealhunter_cycle_duration_seconds",
			Help:    "Wall time of one region's ingestion cycle.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"region"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealhunter_deal_events_total",
			Help: "Deal events emitted by reconciliation.",
		}, []string{"region", "kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealhunter_observations_dropped_total",
			Help: "Raw observations dropped during normalisation.",
		}, []string{"region", "field"}),
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dealhunter_notifications_enqueued_total",
			Help: "Notification reasons queued for delivery.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealhunter_notifications_total",
			Help: "Queued notification reasons by delivery outcome.",
		}, []string{"result"}), // delivered | duplicate | retried | failed
		sendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dealhunter_send_duration_seconds",
			Help:    "Latency of outbound delivery calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
	}

	registerer.MustRegister(
		m.cycles,
		m.cycleDuration,
		m.events,
		m.dropped,
		m.enqueued,
		m.notifications,
		m.sendDuration,
	)
	return m
}

func (m *Metrics) ObserveCycle(region, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(region, result).Inc()
	m.cycleDuration.WithLabelValues(region).Observe(d.Seconds())
}

func (m *Metrics) IncEvent(region, kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(region, kind).Inc()
}

func (m *Metrics) IncDropped(region, field string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(region, field).Inc()
}

func (m *Metrics) AddEnqueued(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.enqueued.Add(float64(n))
}

func (m *Metrics) AddNotifications(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.notifications.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) ObserveSend(err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sendDuration.WithLabelValues(result).Observe(d.Seconds())
}
