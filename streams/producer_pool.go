package streams

import (
	"github.com/twmb/franz-go/pkg/kgo"
)

// recordProducer wraps the shared kgo.Client used by a partition's
// producer pool. There is no transaction coordinator: every produce
// here is a plain async, at-least-once send.
type recordProducer[T StateStore] struct {
	client       *kgo.Client
	errorHandler TxnErrorHandler
	metrics      MetricsHandler
}

func (rp *recordProducer[T]) produce(ec *EventContext[T], topic string, key, value []byte) {
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	rp.client.Produce(ec.Ctx(), record, func(_ *kgo.Record, err error) {
		if err != nil {
			if rp.errorHandler(err) == Fatal {
				ec.worker.runStatus.Halt()
			}
			return
		}
		rp.metrics.Handle(Metric{Name: "records_produced", Kind: CounterMetric, Value: 1})
	})
}

func (rp *recordProducer[T]) release(ec *EventContext[T]) {}

// recordProducerPool hands out the single shared recordProducer for a
// partition's worker via a channel-based assignment protocol, so
// partitionWorker can pick one up without blocking its scheduling loop.
type recordProducerPool[T StateStore] struct {
	producer *recordProducer[T]
	config   ProducerConfig
}

func newRecordProducerPool[T StateStore](client *kgo.Client, config ProducerConfig, errorHandler TxnErrorHandler, metrics MetricsHandler) *recordProducerPool[T] {
	if errorHandler == nil {
		errorHandler = DefaultTxnErrorHandler
	}
	if metrics == nil {
		metrics = NopMetricsHandler{}
	}
	return &recordProducerPool[T]{
		producer: &recordProducer[T]{client: client, errorHandler: errorHandler, metrics: metrics},
		config:   config.orDefault(),
	}
}

func (p *recordProducerPool[T]) maxPendingItems() int {
	return p.config.MaxPendingItems
}

func (p *recordProducerPool[T]) addEventContext(ec *EventContext[T]) {
	ec.producerChan <- p.producer
	ec.worker.revocationWaiter.Done()
}
