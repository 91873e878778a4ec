package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deviantnotify/deviant-notify/internal/models"
)

// Metrics bundles Prometheus collectors for the refresh cycle
type Metrics struct {
	registry        *prometheus.Registry
	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	fetchFailures   *prometheus.CounterVec
	unread          *prometheus.GaugeVec
	fresh           *prometheus.GaugeVec
	wsClients       prometheus.Gauge
}

// NewMetrics creates the collectors on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deviant_notify",
			Name:      "refreshes_total",
			Help:      "Refresh cycles by outcome",
		}, []string{"result"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "deviant_notify",
			Name:      "refresh_duration_seconds",
			Help:      "Histogram of refresh cycle durations",
			Buckets:   prometheus.DefBuckets,
		}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deviant_notify",
			Name:      "category_fetch_failures_total",
			Help:      "Category fetches that fell back to zero counts",
		}, []string{"group"}),
		unread: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "deviant_notify",
			Name:      "unread_items",
			Help:      "Unread totals reported upstream per group",
		}, []string{"group"}),
		fresh: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "deviant_notify",
			Name:      "new_items",
			Help:      "Items newer than the read watermark per group",
		}, []string{"group"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "deviant_notify",
			Name:      "ws_clients",
			Help:      "Current connected popup WebSocket clients",
		}),
	}

	registry.MustRegister(
		m.refreshes,
		m.refreshDuration,
		m.fetchFailures,
		m.unread,
		m.fresh,
		m.wsClients,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRefresh records one refresh outcome and how long it took.
func (m *Metrics) ObserveRefresh(result string, dur time.Duration) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
	m.refreshDuration.Observe(dur.Seconds())
}

// IncFetchFailures counts a failed category fetch or a group that settled
// with an error.
func (m *Metrics) IncFetchFailures(group models.Group) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(string(group)).Inc()
}

// SetCounts publishes the latest snapshot as gauges.
func (m *Metrics) SetCounts(counts, fresh models.Counts) {
	if m == nil {
		return
	}
	m.unread.WithLabelValues(string(models.GroupMessages)).Set(float64(counts.Messages))
	m.unread.WithLabelValues(string(models.GroupFeedback)).Set(float64(counts.FeedbackSum()))
	m.unread.WithLabelValues(string(models.GroupWatch)).Set(float64(counts.WatchSum()))
	m.fresh.WithLabelValues(string(models.GroupMessages)).Set(float64(fresh.Messages))
	m.fresh.WithLabelValues(string(models.GroupFeedback)).Set(float64(fresh.FeedbackSum()))
	m.fresh.WithLabelValues(string(models.GroupWatch)).Set(float64(fresh.WatchSum()))
}

// IncWSClients adjusts the WebSocket client gauge by delta.
func (m *Metrics) IncWSClients(delta float64) {
	if m == nil {
		return
	}
	m.wsClients.Add(delta)
}
