package streams

import (
	"github.com/twmb/franz-go/pkg/kgo"
)

// TopicPartition identifies a single partition of a single topic.
type TopicPartition struct {
	Topic     string
	Partition int32
}

// Cluster abstracts the Kafka cluster an EventSource talks to, so that
// the source and state-store (changelog) clusters can differ.
type Cluster interface {
	// ClientOpts returns the base kgo.Opt set for this cluster (seed
	// brokers, SASL, TLS). EventSource appends group/topic specific
	// options on top.
	ClientOpts() []kgo.Opt
}

// simpleCluster is the concrete Cluster used by cmd/behovsakkumulator.
type simpleCluster struct {
	opts []kgo.Opt
}

// NewCluster builds a Cluster from a fixed set of kgo options.
func NewCluster(opts ...kgo.Opt) Cluster {
	return simpleCluster{opts: opts}
}

func (c simpleCluster) ClientOpts() []kgo.Opt {
	return c.opts
}

// Destination describes a topic to publish to and the cluster it lives on.
type Destination struct {
	DefaultTopic  string
	NumPartitions int
	Cluster       Cluster
}

// BalanceStrategy selects a kgo consumer-group balancer.
type BalanceStrategy = kgo.GroupBalancer

// StateStore is the constraint partitionWorker and EventSource are
// generic over: anything that can be bootstrapped per-partition from a
// changelog and torn down on revocation.
type StateStore interface {
	// Restore rebuilds this section's in-memory view by replaying its
	// changelog partition. Called once, before the partition is marked
	// ready for event processing.
	Restore(partition int32, records <-chan *kgo.Record) error
	// Close releases any resources (file handles, etc.) held for
	// partition. Called on revocation.
	Close(partition int32) error
}

// SourcePartitionEventHandler is invoked on partition lifecycle events.
type SourcePartitionEventHandler func(source *Source, partition int32)

// DeserializationErrorHandler is invoked when an inbound record cannot
// be interpreted as a valid envelope (spec: "malformed input").
type DeserializationErrorHandler func(record *kgo.Record, err error)

// DefaultDeserializationErrorHandler logs and drops.
func DefaultDeserializationErrorHandler(record *kgo.Record, err error) {
	log.Warnf("dropping malformed record at %s[%d]@%d: %v", record.Topic, record.Partition, record.Offset, err)
}

// TxnErrorHandler is invoked when the producer pool cannot deliver a
// record after internal retries are exhausted.
type TxnErrorHandler func(err error) ExecutionState

// DefaultTxnErrorHandler treats producer failures as fatal to the
// owning worker; the partition will be reassigned and the triggering
// input re-processed (at-least-once).
func DefaultTxnErrorHandler(err error) ExecutionState {
	log.Errorf("producer error, abandoning partition: %v", err)
	return Fatal
}

// ProducerConfig configures the bounded, at-least-once record producer
// pool each partition worker uses for final emission. Changelog writes
// do not go through this pool; they use the StateStore's own producer.
// There is no transaction coordinator here, only
// backpressure: exactly-once publishing across failures is out of
// scope.
type ProducerConfig struct {
	// MaxPendingItems bounds how many records may be in flight to the
	// producer before a partition worker blocks accepting new input.
	MaxPendingItems int
	// MaxBatchSize sizes a partition worker's event input buffer, which
	// holds max(MaxBatchSize/10, 100) records.
	MaxBatchSize int
}

// DefaultProducerConfig is used when EventSourceConfig.ProducerConfig is
// the zero value.
var DefaultProducerConfig = ProducerConfig{
	MaxPendingItems: 1000,
	MaxBatchSize:    500,
}

func (c ProducerConfig) orDefault() ProducerConfig {
	if c.MaxPendingItems <= 0 {
		c.MaxPendingItems = DefaultProducerConfig.MaxPendingItems
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = DefaultProducerConfig.MaxBatchSize
	}
	return c
}
