package aggregator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/taurusgroup/frost-bridge/pkg/protocol"
)

const namespace = "frost"

type metrics struct {
	ceremonies    *prometheus.CounterVec
	roundDuration *prometheus.HistogramVec
	failures      *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		ceremonies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ceremonies_total",
			Help:      "Completed ceremonies by type and result.",
		}, []string{"type", "result"}),
		roundDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_duration_seconds",
			Help:      "Time to collect the responses of one round.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"type", "round"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "participant_failures_total",
			Help:      "Failed participant calls by round and error kind.",
		}, []string{"round", "kind"}),
	}
	for _, c := range []prometheus.Collector{m.ceremonies, m.roundDuration, m.failures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) observeRound(typ, round string, start time.Time) {
	m.roundDuration.WithLabelValues(typ, round).Observe(time.Since(start).Seconds())
}

func (m *metrics) failure(round string, err error) {
	m.failures.WithLabelValues(round, protocol.KindOf(err).String()).Inc()
}

func (m *metrics) ceremony(typ string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.ceremonies.WithLabelValues(typ, result).Inc()
}
