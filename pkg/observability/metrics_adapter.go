package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsAdapter implements ports.Metrics over a Provider's meter,
// lazily creating one Int64Counter or Float64Histogram per metric name the
// first time it's used. GATOS's domain counters are created this way rather
// than declared as struct fields up front, since callers name them as string
// literals at the call site; the only caller is pkg/rpc.Handler, which
// reports gatos_journal_append_total, gatos_mp_prune_deleted_total and
// gatos_policy_deny_total.
type MetricsAdapter struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

// NewMetricsAdapter wraps p's meter as a ports.Metrics implementation.
func NewMetricsAdapter(p *Provider) *MetricsAdapter {
	return &MetricsAdapter{
		meter:      p.Meter(),
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func (m *MetricsAdapter) counter(name string) metric.Int64Counter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[name]; ok {
		return c
	}
	c, err := m.meter.Int64Counter(name)
	if err != nil {
		return nil
	}
	m.counters[name] = c
	return c
}

func (m *MetricsAdapter) histogram(name string) metric.Float64Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.histograms[name]; ok {
		return h
	}
	h, err := m.meter.Float64Histogram(name, metric.WithUnit("s"))
	if err != nil {
		return nil
	}
	m.histograms[name] = h
	return h
}

func toAttributes(labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

// IncrCounter increments the named counter by one, creating it on first use.
func (m *MetricsAdapter) IncrCounter(name string, labels map[string]string) {
	if c := m.counter(name); c != nil {
		c.Add(context.Background(), 1, metric.WithAttributes(toAttributes(labels)...))
	}
}

// ObserveSeconds records value (in seconds) against the named histogram,
// creating it on first use.
func (m *MetricsAdapter) ObserveSeconds(name string, value float64, labels map[string]string) {
	if h := m.histogram(name); h != nil {
		h.Record(context.Background(), value, metric.WithAttributes(toAttributes(labels)...))
	}
}
