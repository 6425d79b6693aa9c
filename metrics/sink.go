// Package metrics exports wallet lifecycle events as Prometheus metrics.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	auth "github.com/goliatone/go-ledger-auth"
)

const namespace = "ledger_auth"

// Sink implements auth.LifecycleSink.
type Sink struct {
	events   *prometheus.CounterVec
	failures *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inflight prometheus.Gauge

	mu      sync.Mutex
	started map[string]time.Time
}

var _ auth.LifecycleSink = (*Sink)(nil)

// NewSink registers the collectors with reg. A nil reg uses the default
// registerer.
func NewSink(reg prometheus.Registerer) (*Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	s := &Sink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_events_total",
			Help:      "Lifecycle events by operation and event type.",
		}, []string{"operation", "type"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed invocations by operation and error kind.",
		}, []string{"operation", "kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_seconds",
			Help:      "Time from submission to settlement or failure.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation", "outcome"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_invocations",
			Help:      "Invocations submitted and not yet settled.",
		}),
		started: make(map[string]time.Time),
	}

	for _, c := range []prometheus.Collector{s.events, s.failures, s.latency, s.inflight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Record implements auth.LifecycleSink.
func (s *Sink) Record(_ context.Context, event auth.LifecycleEvent) error {
	op := string(event.Operation)
	s.events.WithLabelValues(op, string(event.Type)).Inc()

	switch event.Type {
	case auth.LifecycleSubmitted:
		s.mu.Lock()
		s.started[event.InvocationID] = event.OccurredAt
		s.mu.Unlock()
		s.inflight.Inc()
	case auth.LifecycleSettled:
		s.finish(event, "settled")
	case auth.LifecycleFailed:
		kind := event.ErrorKind
		if kind == "" {
			kind = auth.KindOf(event.Err)
		}
		s.failures.WithLabelValues(op, string(kind)).Inc()
		s.finish(event, "failed")
	}
	return nil
}

func (s *Sink) finish(event auth.LifecycleEvent, outcome string) {
	s.mu.Lock()
	started, ok := s.started[event.InvocationID]
	delete(s.started, event.InvocationID)
	s.mu.Unlock()
	if !ok {
		return
	}
	s.inflight.Dec()
	s.latency.WithLabelValues(string(event.Operation), outcome).
		Observe(event.OccurredAt.Sub(started).Seconds())
}
