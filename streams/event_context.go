package streams

import (
	"context"

	"github.com/twmb/franz-go/pkg/kgo"
)

// changeLogData carries whatever per-partition accessor the StateStore
// implementation needs reach its local section from an EventContext.
// It is opaque to the streams runtime itself.
type changeLogData any

// EventContext wraps a single inbound record (or a synthetic
// interjection) as it flows through a partitionWorker: input record,
// state-store accessor, and the producer slot it has been assigned for
// any records it emits.
type EventContext[T StateStore] struct {
	ctx           context.Context
	record        *kgo.Record
	changeLogData changeLogData
	worker        *partitionWorker[T]
	interjection  *interjection[T]

	producerChan chan *recordProducer[T]
	producer     *recordProducer[T]
	completed    bool
}

func newEventContext[T StateStore](ctx context.Context, record *kgo.Record, cld changeLogData, worker *partitionWorker[T]) *EventContext[T] {
	return &EventContext[T]{
		ctx:           ctx,
		record:        record,
		changeLogData: cld,
		worker:        worker,
		producerChan:  make(chan *recordProducer[T], 1),
	}
}

func newInterjectionContext[T StateStore](ctx context.Context, inter *interjection[T], tp TopicPartition, cld changeLogData, worker *partitionWorker[T]) *EventContext[T] {
	return &EventContext[T]{
		ctx:           ctx,
		changeLogData: cld,
		worker:        worker,
		interjection:  inter,
		producerChan:  make(chan *recordProducer[T], 1),
	}
}

// Ctx returns the context bound to this EventContext's partition worker;
// it is cancelled when the partition is revoked.
func (ec *EventContext[T]) Ctx() context.Context {
	return ec.ctx
}

// Input returns the inbound record and whether one is present (false
// for a synthetic interjection context).
func (ec *EventContext[T]) Input() (*kgo.Record, bool) {
	return ec.record, ec.record != nil
}

// Offset returns the inbound record's offset, or -1 for an interjection.
func (ec *EventContext[T]) Offset() int64 {
	if ec.record == nil {
		return -1
	}
	return ec.record.Offset
}

// TopicPartition returns the partition this EventContext belongs to.
func (ec *EventContext[T]) TopicPartition() TopicPartition {
	if ec.record != nil {
		return TopicPartition{Topic: ec.record.Topic, Partition: ec.record.Partition}
	}
	return ec.worker.topicPartition
}

// ChangeLogData exposes the StateStore-specific accessor for this
// context's partition, for use by the EventProcessor.
func (ec *EventContext[T]) ChangeLogData() changeLogData {
	return ec.changeLogData
}

// Forward schedules value for asynchronous, at-least-once publication to
// destTopic, keyed by key, using the producer already assigned to this
// context.
func (ec *EventContext[T]) Forward(destTopic string, key, value []byte) {
	if ec.producer != nil {
		ec.producer.produce(ec, destTopic, key, value)
	}
}

func (ec *EventContext[T]) complete() {
	if !ec.completed {
		ec.completed = true
		if ec.producer != nil {
			ec.producer.release(ec)
		}
	}
}
