// Package metrics provides the default streams.MetricsHandler used by
// cmd/behovsakkumulator: a thin Prometheus sink. The streams package
// never imports this package — metrics stay an outward-facing sink the
// core calls through an interface.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/amouat/dp-behovsakkumulator/streams"
)

// PrometheusHandler routes streams.Metric observations into
// Prometheus collectors registered against reg.
type PrometheusHandler struct {
	recordsProcessed prometheus.Counter
	recordsProduced  prometheus.Counter
	finalsEmitted    *prometheus.CounterVec
	malformedDropped *prometheus.CounterVec
	highestOffset    *prometheus.GaugeVec
}

// NewPrometheusHandler registers and returns a PrometheusHandler. reg is
// typically prometheus.DefaultRegisterer.
func NewPrometheusHandler(reg prometheus.Registerer) *PrometheusHandler {
	h := &PrometheusHandler{
		recordsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "behovsakkumulator",
			Name:      "records_processed_total",
			Help:      "Non-final, well-formed records processed by the accumulator.",
		}),
		recordsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "behovsakkumulator",
			Name:      "records_produced_total",
			Help:      "Final records successfully acknowledged by the broker.",
		}),
		finalsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "behovsakkumulator",
			Name:      "finals_emitted_total",
			Help:      "Final records emitted, by partition.",
		}, []string{"partition"}),
		malformedDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "behovsakkumulator",
			Name:      "records_malformed_total",
			Help:      "Inbound records dropped as malformed, by partition.",
		}, []string{"partition"}),
		highestOffset: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "behovsakkumulator",
			Name:      "partition_highest_offset",
			Help:      "Next offset to process (last processed offset + 1), by partition.",
		}, []string{"partition"}),
	}
	reg.MustRegister(h.recordsProcessed, h.recordsProduced, h.finalsEmitted, h.malformedDropped, h.highestOffset)
	return h
}

// Handle implements streams.MetricsHandler.
func (h *PrometheusHandler) Handle(m streams.Metric) {
	partition := strconv.Itoa(int(m.Partition))
	switch m.Name {
	case "records_processed":
		h.recordsProcessed.Add(m.Value)
	case "records_produced":
		h.recordsProduced.Add(m.Value)
	case "finals_emitted":
		h.finalsEmitted.WithLabelValues(partition).Add(m.Value)
	case "records_malformed":
		h.malformedDropped.WithLabelValues(partition).Add(m.Value)
	case "partition_highest_offset":
		h.highestOffset.WithLabelValues(partition).Set(m.Value)
	}
}
