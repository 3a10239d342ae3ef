package dashboard

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pinsync/pinsync/internal/remote"
	pinsync "github.com/pinsync/pinsync/internal/sync"
)

// Metrics holds the daemon's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	passes   *prometheus.CounterVec
	records  *prometheus.CounterVec
	duration prometheus.Histogram
	clients  prometheus.Gauge
}

// NewMetrics registers the collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		passes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pinsync",
				Name:      "sync_passes_total",
				Help:      "Reconciliation passes by result.",
			},
			[]string{"result"},
		),
		records: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pinsync",
				Name:      "sync_records_total",
				Help:      "Records handled by reconciliation passes.",
			},
			[]string{"phase", "kind", "outcome"},
		),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pinsync",
			Name:      "sync_pass_duration_seconds",
			Help:      "Wall time of passes that reached the pull phase.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		clients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pinsync",
			Name:      "dashboard_clients",
			Help:      "Connected WebSocket clients.",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePass records one pass.
func (m *Metrics) ObservePass(report *pinsync.Report, err error) {
	m.passes.WithLabelValues(passResult(err)).Inc()
	if report == nil {
		return
	}
	m.duration.Observe(report.Duration().Seconds())
	for _, group := range []struct {
		outcome string
		list    []pinsync.Outcome
	}{
		{"applied", report.Pulled},
		{"applied", report.Pushed},
		{"skipped", report.Skipped},
		{"failed", report.Failed},
	} {
		for _, o := range group.list {
			m.records.WithLabelValues(string(o.Phase), string(o.Kind), group.outcome).Inc()
		}
	}
}

func (m *Metrics) setClients(n int) {
	m.clients.Set(float64(n))
}

func passResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, pinsync.ErrSyncDisabled):
		return "disabled"
	case errors.Is(err, pinsync.ErrOffline):
		return "offline"
	case remote.IsAuth(err):
		return "auth"
	default:
		return "error"
	}
}
