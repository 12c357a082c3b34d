// Copyright 2022 Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package streams

import (
	"fmt"
	"sync/atomic"
	"time"
)

type EventSourceState uint64

const (
	Healthy EventSourceState = iota
	Unhealthy
)

const consumerPollFetchTimeout = 5 * time.Second

// EventSourceConfig configures an EventSource. A single physical topic
// carries both inbound records and the records the EventSource itself
// emits (distinguished by application-level fields, not by topic).
type EventSourceConfig struct {
	// The group id for the underlying Kafka consumer group.
	GroupId string
	// The Kafka topic to consume (and to publish emitted records to).
	Topic string
	// The compacted Kafka topic backing the StateStore. If not provided,
	// a name is derived from Topic and GroupId.
	StateStoreTopic string
	// The desired number of partitions for Topic.
	NumPartitions int
	// The desired replication factor for Topic. Defaults to 1.
	ReplicationFactor int
	// The desired min-insync-replicas for Topic. Defaults to 1.
	MinInSync int
	// The Kafka cluster on which Topic resides, or the source of incoming events.
	SourceCluster Cluster
	// StateCluster is the Kafka cluster on which the changelog resides. If left unset (recommended), defaults to SourceCluster.
	StateCluster Cluster
	// The consumer rebalance strategies to use for the underlying Kafka consumer group.
	BalanceStrategies []BalanceStrategy
	/*
		ProducerConfig configures the bounded record producer pool used for
		final-record emission (changelog writes go through the StateStore's
		own producer, not this pool). If empty,
		[DefaultProducerConfig] is used. Delivery is at-least-once; there is
		no transaction coordinator.
	*/
	ProducerConfig ProducerConfig
	// CommitIntervalMs bounds the delay between a state write becoming
	// durable and its offset being committed, and is also the cadence of
	// the per-partition stats interjection (see interjection.go).
	CommitIntervalMs int
	// If non-nil, the EventSource will emit [Metric] objects of varying types. Handle is called
	// directly on the emitting goroutine, with no buffering; metrics are not dropped by the
	// EventSource, so a slow handler slows processing.
	MetricsHandler MetricsHandler

	// Called when a partition has been assigned to the EventSource consumer client. This does not indicate that the partion is being processed.
	OnPartitionAssigned SourcePartitionEventHandler

	// Called when a perviously assigned partition has been activated, meaning the EventSource will start processing events for this partition. At the time this handler is called, the  StateStore associated with this partition has been bootstrapped and is ready for use.
	OnPartitionActivated SourcePartitionEventHandler

	// Called when a partition is about to be revoked from the EventSource consumer client.
	// This is a blocking call and, as such, should return quickly.
	OnPartitionWillRevoke SourcePartitionEventHandler
	// Called when a partition has been revoked from the EventSource consumer client.
	// This handler is invoked after the partition's worker has been signalled to stop and its StateStore section
	// has been closed. The EventSource does not wait for a record already being processed to finish.
	OnPartitionRevoked          SourcePartitionEventHandler
	DeserializationErrorHandler DeserializationErrorHandler
	TxnErrorHandler             TxnErrorHandler
}

// A readonly wrapper of [EventSourceConfig]. When an [EventSource] is initialized with a non-zero NumPartitions, it creates
// Topic and its changelog topic if missing (see reconcileTopics); the configuration is not read back from the cluster.
type Source struct {
	state   uint64
	config  EventSourceConfig
	failure chan error
}

func newSource(config EventSourceConfig) *Source {
	return &Source{state: uint64(Healthy), config: config, failure: make(chan error)}
}

// A convenience method for creating a [Destination] from your Source, pointing at the Source's topic and cluster.
func (s *Source) AsDestination() Destination {
	return Destination{
		DefaultTopic:  s.config.Topic,
		NumPartitions: s.config.NumPartitions,
		Cluster:       s.config.SourceCluster,
	}
}

func (s *Source) onPartitionsAssigned(partitions []int32) {
	s.executeHandler(s.config.OnPartitionAssigned, partitions)
}

func (s *Source) onPartitionWillRevoke(partition int32) {
	s.executeHandler(s.config.OnPartitionWillRevoke, []int32{partition})
}

func (s *Source) onPartitionActivated(partition int32) {
	s.executeHandler(s.config.OnPartitionActivated, []int32{partition})
}

func (s *Source) onPartitionsRevoked(partitions []int32) {
	s.executeHandler(s.config.OnPartitionRevoked, partitions)
}

func (s *Source) eosErrorHandler() TxnErrorHandler {
	if s.config.TxnErrorHandler == nil {
		return DefaultTxnErrorHandler
	}
	return s.config.TxnErrorHandler
}

func (s *Source) deserializationErrorHandler() DeserializationErrorHandler {
	if s.config.DeserializationErrorHandler == nil {
		return DefaultDeserializationErrorHandler
	}
	return s.config.DeserializationErrorHandler
}

func (s *Source) metricsHandler() MetricsHandler {
	if s.config.MetricsHandler == nil {
		return NopMetricsHandler{}
	}
	return s.config.MetricsHandler
}

func (s *Source) producerConfig() ProducerConfig {
	return s.config.ProducerConfig.orDefault()
}

func (s *Source) executeHandler(handler SourcePartitionEventHandler, partitions []int32) {
	if handler != nil {
		for _, p := range partitions {
			handler(s, p)
		}
	}
}

func (s *Source) State() EventSourceState {
	return EventSourceState(atomic.LoadUint64(&s.state))
}

func (s *Source) fail(err error) {
	atomic.StoreUint64(&s.state, uint64(Unhealthy))
	s.failure <- err
}

func (s *Source) Topic() string {
	return s.config.Topic
}

func (s *Source) GroupId() string {
	return s.config.GroupId
}

func (s *Source) Config() EventSourceConfig {
	return s.config
}

func (s *Source) BalanceStrategies() []BalanceStrategy {
	return s.config.BalanceStrategies
}

func (s *Source) NumPartitions() int {
	return s.config.NumPartitions
}

// CommitInterval is the upper bound on the delay between a state write
// becoming durable and its offset being committed.
func (s *Source) CommitInterval() time.Duration {
	if s.config.CommitIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(s.config.CommitIntervalMs) * time.Millisecond
}

// StateStoreTopicName returns the formatted topic name used for the
// [StateStore] changelog of Source.
func (s *Source) StateStoreTopicName() string {
	if len(s.config.StateStoreTopic) > 0 {
		return s.config.StateStoreTopic
	}
	return fmt.Sprintf("%s-%s-changelog", s.config.Topic, s.config.GroupId)
}

// Returns Source.StateCluster if defined, otherwise Source.Cluster
func (s *Source) stateCluster() Cluster {
	if s.config.StateCluster == nil {
		return s.config.SourceCluster
	}
	return s.config.StateCluster
}

func minInSyncConfig(source *Source) int {
	factor := replicationFactorConfig(source)
	if factor <= 1 {
		return 1
	}
	if source.config.MinInSync >= factor {
		return factor - 1
	}
	if source.config.MinInSync <= 0 {
		return 1
	}
	return source.config.MinInSync
}

func replicationFactorConfig(source *Source) int {
	if source.config.ReplicationFactor <= 0 {
		return 1
	}
	return source.config.ReplicationFactor
}
