package collector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/kasametrics/internal/device"
)

const metricsNamespace = "kasametrics"

// Metrics are the collector's self-observability counters. A nil *Metrics
// records nothing.
type Metrics struct {
	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	outcomes      *prometheus.CounterVec
	batchSize     prometheus.Gauge
	writeFailures prometheus.Counter
	lastCycle     prometheus.Gauge
	overruns      prometheus.Counter
}

// NewMetrics creates the collector metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cycles_total",
			Help:      "Poll cycles run.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time from cycle start to the end of the batch write.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "device_outcomes_total",
			Help:      "Per-device poll results by outcome.",
		}, []string{"outcome"}),
		batchSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "batch_points",
			Help:      "Points in the most recent batch.",
		}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "write_failures_total",
			Help:      "Batches the sink rejected or could not receive.",
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Start time of the most recent cycle.",
		}),
		overruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cycle_overruns_total",
			Help:      "Cycles that took longer than the interval.",
		}),
	}

	// Expose every outcome label from the start.
	for _, o := range []string{device.OutcomeSuccess.String(), device.OutcomeTimeout.String(), device.OutcomeFailure.String(), outcomeSkipped} {
		m.outcomes.WithLabelValues(o)
	}

	reg.MustRegister(m.cycles, m.cycleDuration, m.outcomes, m.batchSize, m.writeFailures, m.lastCycle, m.overruns)
	return m
}

const outcomeSkipped = "skipped"

func (m *Metrics) observeCycle(r CycleReport) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.cycleDuration.Observe(r.Duration.Seconds())
	m.lastCycle.Set(float64(r.Start.UnixNano()) / float64(time.Second))
	m.batchSize.Set(float64(r.Measurements))
	m.outcomes.WithLabelValues(device.OutcomeSuccess.String()).Add(float64(r.OK))
	m.outcomes.WithLabelValues(device.OutcomeTimeout.String()).Add(float64(r.TimedOut))
	m.outcomes.WithLabelValues(device.OutcomeFailure.String()).Add(float64(r.Failed))
	m.outcomes.WithLabelValues(outcomeSkipped).Add(float64(r.Skipped))
	if r.WriteErr != nil {
		m.writeFailures.Inc()
	}
}

func (m *Metrics) observeOverrun() {
	if m == nil {
		return
	}
	m.overruns.Inc()
}
