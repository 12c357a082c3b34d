package streams

import (
	"context"
	"sync/atomic"
	"time"
)

// interjection is a periodic, per-partition tick that is scheduled
// alongside ordinary record processing so it observes the same strict
// sequencing as the event loop (see partitionWorker.work). This codebase
// schedules exactly one: a stats/commit-flush tick on a
// CommitIntervalMs cadence. See DESIGN.md.
type interjection[T StateStore] struct {
	interval time.Duration
	fn       func(ec *EventContext[T], metrics MetricsHandler)
	metrics  MetricsHandler

	topicPartition TopicPartition
	input          chan<- *interjection[T]
	timer          *time.Timer
	cancelled      int64
	callback       func()
}

// newStatsInterjection builds the one interjection this codebase
// schedules: a stats tick firing every interval.
func newStatsInterjection[T StateStore](interval time.Duration, metrics MetricsHandler) interjection[T] {
	return interjection[T]{
		interval: interval,
		metrics:  metrics,
		fn: func(ec *EventContext[T], metrics MetricsHandler) {
			commitCtx, cancel := context.WithTimeout(ec.Ctx(), 5*time.Second)
			if err := ec.worker.eventSource.consumer.Client().CommitMarkedOffsets(commitCtx); err != nil {
				log.Warnf("commit flush failed for %+v: %v", ec.TopicPartition(), err)
			}
			cancel()
			metrics.Handle(Metric{
				Name:      "partition_highest_offset",
				Kind:      GaugeMetric,
				Value:     float64(ec.worker.highestOffset),
				Partition: ec.TopicPartition().Partition,
				At:        time.Now(),
			})
		},
	}
}

func (ij *interjection[T]) init(tp TopicPartition, input chan<- *interjection[T]) {
	ij.topicPartition = tp
	ij.input = input
}

func (ij *interjection[T]) tick() {
	if atomic.LoadInt64(&ij.cancelled) != 0 || ij.interval <= 0 {
		return
	}
	ij.timer = time.AfterFunc(ij.interval, func() {
		if atomic.LoadInt64(&ij.cancelled) == 0 {
			ij.input <- ij
		}
	})
}

func (ij *interjection[T]) cancel() {
	atomic.StoreInt64(&ij.cancelled, 1)
	if ij.timer != nil {
		ij.timer.Stop()
	}
}

func (ij *interjection[T]) interject(ec *EventContext[T]) ExecutionState {
	ij.fn(ec, ij.metrics)
	return Complete
}
