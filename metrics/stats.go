package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	dropEncode    = "encode"
	dropCollision = "collision"
)

// emitterStats counts the emitter's own work. It never sees caller values.
type emitterStats interface {
	emitted(t MetricType)
	dropped(reason string)
}

type nopStats struct{}

func (nopStats) emitted(MetricType) {}
func (nopStats) dropped(string)     {}

type promStats struct {
	emittedTotal *prometheus.CounterVec
	droppedTotal *prometheus.CounterVec
}

// newStats returns prometheus-backed stats, or a no-op when reg is nil.
func newStats(reg prometheus.Registerer) emitterStats {
	if reg == nil {
		return nopStats{}
	}
	return &promStats{
		emittedTotal: registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stdmetric",
			Name:      "records_emitted_total",
			Help:      "Total number of metric lines written",
		}, []string{"metric_type"})),

		droppedTotal: registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stdmetric",
			Name:      "records_dropped_total",
			Help:      "Total number of metric records dropped before writing",
		}, []string{"reason"})),
	}
}

// registerCounterVec registers c, reusing the collector already registered
// under the same name so several emitters can share one registry.
func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func (s *promStats) emitted(t MetricType) {
	s.emittedTotal.WithLabelValues(string(t)).Inc()
}

func (s *promStats) dropped(reason string) {
	s.droppedTotal.WithLabelValues(reason).Inc()
}
