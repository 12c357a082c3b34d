package accumulator

import (
	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/amouat/dp-behovsakkumulator/streams"
)

// Processor implements streams.EventProcessor[*Store]: it is the bridge
// between the Kafka-facing partitionWorker and the pure state machine in
// state_machine.go.
type Processor struct {
	metrics     streams.MetricsHandler
	onMalformed streams.DeserializationErrorHandler
}

// NewProcessor builds a Processor. metrics and onMalformed may be nil.
func NewProcessor(metrics streams.MetricsHandler, onMalformed streams.DeserializationErrorHandler) *Processor {
	if metrics == nil {
		metrics = streams.NopMetricsHandler{}
	}
	if onMalformed == nil {
		onMalformed = streams.DefaultDeserializationErrorHandler
	}
	return &Processor{metrics: metrics, onMalformed: onMalformed}
}

// Process implements streams.EventProcessor[*Store]. It is called once
// per inbound record, in strict per-partition offset order, with the
// partition's Store section already restored and reachable via
// ec.ChangeLogData().
func (p *Processor) Process(ec *streams.EventContext[*Store], record *kgo.Record) streams.ExecutionState {
	rec, err := Parse(record.Value)
	if err != nil {
		p.dropMalformed(record, err)
		return streams.Complete
	}

	// Self-echo filter — a record this system emitted itself must be
	// tested before anything else, or it would feed its own finals back
	// through the state machine.
	if rec.Final() {
		return streams.Complete
	}

	id, ok := rec.ID()
	if !ok {
		p.dropMalformed(record, errors.New("missing or non-string @id"))
		return streams.Complete
	}

	store := ec.ChangeLogData().(*Store)
	prev, err := store.Get(id)
	if err != nil {
		return streams.Fatal
	}

	next, final := Apply(prev, rec, record.Offset)

	if err := store.Put(ec.Ctx(), next); err != nil {
		return streams.Fatal
	}

	if final != nil {
		data, err := final.Marshal()
		if err != nil {
			return streams.Fatal
		}
		ec.Forward(record.Topic, record.Key, data)
		p.metrics.Handle(streams.Metric{Name: "finals_emitted", Kind: streams.CounterMetric, Value: 1, Partition: record.Partition})
	}

	p.metrics.Handle(streams.Metric{Name: "records_processed", Kind: streams.CounterMetric, Value: 1, Partition: record.Partition})
	return streams.Complete
}

func (p *Processor) dropMalformed(record *kgo.Record, cause error) {
	p.metrics.Handle(streams.Metric{Name: "records_malformed", Kind: streams.CounterMetric, Value: 1, Partition: record.Partition})
	p.onMalformed(record, cause)
}
