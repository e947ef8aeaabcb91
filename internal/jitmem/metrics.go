package jitmem

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "wxmem"
	metricsSubsystem = "jit"
)

// metrics are per Tracker so that several trackers, or tests, never share
// counters. They are only exported when a registerer is configured.
type metrics struct {
	regions     prometheus.Gauge
	transitions *prometheus.CounterVec
	nested      *prometheus.CounterVec
	usageErrors *prometheus.CounterVec
}

func newMetrics() *metrics {
	return &metrics{
		regions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "regions",
			Help:      "Number of registered JIT regions.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "protection_changes_total",
			Help:      "Protector calls that completed, by resulting protection.",
		}, []string{"protection"}),
		nested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "nested_toggles_total",
			Help:      "Toggles that only changed the nesting depth, by direction.",
		}, []string{"direction"}),
		usageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "usage_errors_total",
			Help:      "Calls rejected because of caller bugs, by kind.",
		}, []string{"kind"}),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.regions, m.transitions, m.nested, m.usageErrors}
}

// register registers every collector with r, or none of them.
func (m *metrics) register(r prometheus.Registerer) error {
	collectors := m.collectors()
	for i, c := range collectors {
		if err := r.Register(c); err != nil {
			for _, registered := range collectors[:i] {
				r.Unregister(registered)
			}
			return err
		}
	}
	return nil
}

func (m *metrics) protected(p Protection) {
	m.transitions.WithLabelValues(p.String()).Inc()
}

// observe counts err if it is a usage error and returns it unchanged.
func (m *metrics) observe(err error) error {
	if kind := usageErrorKind(err); kind != "" {
		m.usageErrors.WithLabelValues(kind).Inc()
	}
	return err
}
