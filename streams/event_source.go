package streams

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/amouat/dp-behovsakkumulator/internal/sak"
)

// EventProcessor is the domain hook an EventSource dispatches every
// consumed record to; filtering final or malformed records is left to
// the processor. The accumulator package implements this over its state
// machine.
type EventProcessor[T StateStore] interface {
	Process(ec *EventContext[T], record *kgo.Record) ExecutionState
}

// StateStoreFactory builds the StateStore section for a newly-assigned
// partition. The factory receives only the partition; anything else it
// needs, such as the on-disk state directory, it closes over.
type StateStoreFactory[T StateStore] func(partition int32) T

// consumerWrapper exposes just the subset of *kgo.Client the partition
// worker needs.
type consumerWrapper struct {
	client *kgo.Client
}

func (c consumerWrapper) Client() *kgo.Client {
	return c.client
}

// EventSource is the consumer-group runtime: it owns the kgo.Client
// consumer group, assigns one partitionWorker per owned partition, and
// dispatches every record to an EventProcessor after the partition's
// StateStore section has been restored from its changelog.
type EventSource[T StateStore] struct {
	source        *Source
	consumer      consumerWrapper
	clusterOpts   []kgo.Opt
	stateStoreNew StateStoreFactory[T]
	processor     EventProcessor[T]
	producerPool  *recordProducerPool[T]
	runStatus     sak.RunStatus
	interjections []interjection[T]

	mu      sync.Mutex
	workers map[int32]*partitionWorker[T]
}

// NewEventSource builds an EventSource. processor receives every
// consumed record after its partition's StateStore section is ready;
// stateStoreNew is called once per assigned partition to build that
// section.
func NewEventSource[T StateStore](config EventSourceConfig, processor EventProcessor[T], stateStoreNew StateStoreFactory[T]) (*EventSource[T], error) {
	source := newSource(config)
	es := &EventSource[T]{
		source:        source,
		stateStoreNew: stateStoreNew,
		processor:     processor,
		runStatus:     sak.NewRunStatus(context.Background()),
		workers:       make(map[int32]*partitionWorker[T]),
	}

	if interval := source.CommitInterval(); interval > 0 {
		es.interjections = []interjection[T]{newStatsInterjection[T](interval, source.metricsHandler())}
	}

	clusterOpts := append([]kgo.Opt{}, config.SourceCluster.ClientOpts()...)
	clusterOpts = append(clusterOpts,
		kgo.ConsumerGroup(config.GroupId),
		kgo.ConsumeTopics(config.Topic),
		kgo.DisableAutoCommit(),
		kgo.Balancers(config.BalanceStrategies...),
		kgo.OnPartitionsAssigned(es.onPartitionsAssigned),
		kgo.OnPartitionsRevoked(es.onPartitionsRevoked),
		kgo.OnPartitionsLost(es.onPartitionsRevoked),
	)
	es.clusterOpts = clusterOpts

	client, err := kgo.NewClient(clusterOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "building event source consumer client")
	}
	es.consumer = consumerWrapper{client: client}
	es.producerPool = newRecordProducerPool[T](client, source.producerConfig(), source.eosErrorHandler(), source.metricsHandler())

	if err := es.reconcileTopics(context.Background()); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "reconciling topics")
	}

	return es, nil
}

// Run polls the consumer group until ctx is cancelled or an unrecoverable
// error is encountered. It is the caller's responsibility to call this
// from the process's main goroutine and react to cooperative shutdown.
func (es *EventSource[T]) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		es.runStatus.Halt()
	}()
	runCtx := es.runStatus.Ctx()
	for {
		fetches := es.consumer.client.PollFetches(runCtx)
		if runCtx.Err() != nil {
			es.shutdown()
			return ctx.Err()
		}
		select {
		case err := <-es.source.failure:
			es.runStatus.Halt()
			es.shutdown()
			return err
		default:
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			for _, e := range errs {
				log.Warnf("fetch error on %s[%d]: %v", e.Topic, e.Partition, e.Err)
			}
		}

		byPartition := map[int32][]*kgo.Record{}
		fetches.EachRecord(func(r *kgo.Record) {
			byPartition[r.Partition] = append(byPartition[r.Partition], r)
		})
		es.mu.Lock()
		for partition, recs := range byPartition {
			if w, ok := es.workers[partition]; ok {
				w.add(recs)
			}
		}
		es.mu.Unlock()
	}
}

func (es *EventSource[T]) shutdown() {
	es.mu.Lock()
	defer es.mu.Unlock()
	for p, w := range es.workers {
		w.revoke()
		if err := w.changeLog.close(); err != nil {
			log.Warnf("closing state store section for %s[%d]: %v", es.source.Topic(), p, err)
		}
	}
	es.consumer.client.Close()
}

// handleEvent is the single call site partitionWorker uses to forward a
// record into domain logic.
func (es *EventSource[T]) handleEvent(ec *EventContext[T], record *kgo.Record) ExecutionState {
	return es.processor.Process(ec, record)
}

// buildPartitionWorker opens a fresh StateStore section for p, restores
// it from its changelog partition, and returns the partitionWorker that
// owns it. It is used both for newly assigned partitions and for local
// recovery after a fatal processing error on an already-owned partition.
func (es *EventSource[T]) buildPartitionWorker(p int32) *partitionWorker[T] {
	store := es.stateStoreNew(p)
	changeLog := changeLogPartition[T]{partition: p, topic: es.source.StateStoreTopicName(), store: store}
	waiter := func() {
		restoreCtx, cancel := context.WithTimeout(es.runStatus.Ctx(), 5*time.Minute)
		defer cancel()
		if err := restoreChangeLogPartition[T](restoreCtx, es.source.stateCluster().ClientOpts(), changeLog.topic, p, store); err != nil {
			log.Errorf("failed to restore changelog for %s[%d]: %v", changeLog.topic, p, err)
			es.source.fail(errors.Wrapf(err, "restoring %s[%d]", changeLog.topic, p))
		}
	}
	tp := TopicPartition{Topic: es.source.Topic(), Partition: p}
	return newPartitionWorker[T](es, tp, changeLog, es.producerPool, waiter)
}

func (es *EventSource[T]) onPartitionsAssigned(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
	partitions := assigned[es.source.Topic()]
	es.source.onPartitionsAssigned(partitions)
	for _, p := range partitions {
		worker := es.buildPartitionWorker(p)
		es.mu.Lock()
		es.workers[p] = worker
		es.mu.Unlock()
	}
}

func (es *EventSource[T]) onPartitionsRevoked(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
	partitions := revoked[es.source.Topic()]
	for _, p := range partitions {
		es.source.onPartitionWillRevoke(p)
	}
	es.mu.Lock()
	for _, p := range partitions {
		if w, ok := es.workers[p]; ok {
			w.revoke()
			if err := w.changeLog.close(); err != nil {
				log.Warnf("closing state store section for %s[%d]: %v", es.source.Topic(), p, err)
			}
			delete(es.workers, p)
		}
	}
	es.mu.Unlock()
	es.source.onPartitionsRevoked(partitions)
}

// recoverPartition rebuilds partition's worker and StateStore section
// after a fatal processing error, without disturbing any other owned
// partition or requiring a broker-level rebalance. The old section is
// closed and a new one is restored from the changelog from scratch, so
// recovery is safe even if the fatal error left local state corrupted.
func (es *EventSource[T]) recoverPartition(partition int32) {
	es.mu.Lock()
	old, ok := es.workers[partition]
	if ok {
		delete(es.workers, partition)
	}
	es.mu.Unlock()
	if !ok {
		return
	}

	if err := old.changeLog.close(); err != nil {
		log.Warnf("closing state store section for %s[%d] before recovery: %v", es.source.Topic(), partition, err)
	}
	log.Errorf("recovering partition %s[%d] after fatal processing error", es.source.Topic(), partition)

	worker := es.buildPartitionWorker(partition)
	es.mu.Lock()
	es.workers[partition] = worker
	es.mu.Unlock()
}
