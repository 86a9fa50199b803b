// Package autotoolprom exports Prometheus metrics for Bridge tool calls.
package autotoolprom

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skosovsky/autotool"
)

// Metrics holds the collectors. Register them once with a registry and attach
// Middleware to any number of bridges.
type Metrics struct {
	calls    *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

// New creates the collectors under namespace (default "autotool") and
// registers them with reg.
func New(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if namespace == "" {
		namespace = "autotool"
	}
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool id and outcome.",
		}, []string{"tool", "outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_errors_total",
			Help:      "Failed tool calls by tool id and error kind.",
		}, []string{"tool", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tool_calls_in_flight",
			Help:      "Tool calls currently running.",
		}, []string{"tool"}),
	}
	for _, c := range []prometheus.Collector{m.calls, m.errors, m.duration, m.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Middleware records every call of the wrapped tools.
func (m *Metrics) Middleware() autotool.Middleware {
	return func(next autotool.Tool) autotool.Tool {
		return &measuredTool{next: next, m: m}
	}
}

type measuredTool struct {
	next autotool.Tool
	m    *Metrics
}

func (t *measuredTool) Descriptor() autotool.ToolDescriptor { return t.next.Descriptor() }

func (t *measuredTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	id := t.next.Descriptor().ID
	gauge := t.m.inFlight.WithLabelValues(id)
	gauge.Inc()
	defer gauge.Dec()

	start := time.Now()
	res, err := t.next.Call(ctx, args)
	t.m.duration.WithLabelValues(id).Observe(time.Since(start).Seconds())
	if err != nil {
		kind := autotool.KindOf(err)
		if kind == "" {
			kind = autotool.InvocationError
		}
		t.m.calls.WithLabelValues(id, "error").Inc()
		t.m.errors.WithLabelValues(id, string(kind)).Inc()
		return nil, err
	}
	t.m.calls.WithLabelValues(id, "ok").Inc()
	return res, nil
}
