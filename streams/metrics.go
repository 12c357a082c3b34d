package streams

import "time"

// MetricKind distinguishes the shapes of Metric.Value.
type MetricKind int

const (
	// CounterMetric increments a named counter by Value.
	CounterMetric MetricKind = iota
	// GaugeMetric sets a named gauge to Value.
	GaugeMetric
	// HistogramMetric observes Value into a named histogram.
	HistogramMetric
)

// Metric is a single observation emitted by the streams runtime. It
// carries no Kafka or business semantics of its own; it is a thin
// sink payload so the core never couples to a specific metrics
// backend.
type Metric struct {
	Name      string
	Kind      MetricKind
	Value     float64
	Partition int32
	At        time.Time
}

// MetricsHandler receives Metric observations. Handle must not block;
// a slow handler should drop metrics rather than slow processing (see
// EventSourceConfig.MetricsHandler).
type MetricsHandler interface {
	Handle(m Metric)
}

// NopMetricsHandler discards every metric. Used when no handler is
// configured.
type NopMetricsHandler struct{}

func (NopMetricsHandler) Handle(Metric) {}
