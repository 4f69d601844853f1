package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stop_loss_guardian"

// Recorder holds the guardian's Prometheus collectors.
type Recorder struct {
	gatherer prometheus.Gatherer

	ticksTotal          *prometheus.CounterVec
	tickDuration        prometheus.Histogram
	evaluationsTotal    *prometheus.CounterVec
	dispatchesTotal     *prometheus.CounterVec
	persistenceFailures prometheus.Counter
	unprotectedGauge    prometheus.Gauge
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		gatherer: reg,
		ticksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_ticks_total",
			Help:      "Monitor ticks by outcome.",
		}, []string{"status"}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "monitor_tick_duration_seconds",
			Help:      "Duration of a monitor tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		evaluationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "position_evaluations_total",
			Help:      "Position evaluations by severity.",
		}, []string{"severity"}),
		dispatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_dispatches_total",
			Help:      "Alert dispatches by channel and delivery status.",
		}, []string{"channel", "status"}),
		persistenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Failed state writes.",
		}),
		unprotectedGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unprotected_positions",
			Help:      "Positions evaluated at critical or above in the last tick.",
		}),
	}
}

func (r *Recorder) ObserveTick(status string, d time.Duration) {
	r.ticksTotal.WithLabelValues(status).Inc()
	r.tickDuration.Observe(d.Seconds())
}

func (r *Recorder) RecordEvaluation(severity string) {
	r.evaluationsTotal.WithLabelValues(severity).Inc()
}

func (r *Recorder) RecordDispatch(channel, status string) {
	r.dispatchesTotal.WithLabelValues(channel, status).Inc()
}

func (r *Recorder) RecordPersistenceFailure() {
	r.persistenceFailures.Inc()
}

func (r *Recorder) SetUnprotected(n int) {
	r.unprotectedGauge.Set(float64(n))
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
