package streams

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// changeLogPartition binds a single owned partition's StateStore section
// to the changelog topic backing it.
type changeLogPartition[T StateStore] struct {
	partition int32
	topic     string
	store     T
}

// changeLogData exposes the StateStore section to EventContext callers,
// so the accumulator's EventProcessor can type-assert it back to its
// concrete store type without the streams package knowing about it.
func (c changeLogPartition[T]) changeLogData() changeLogData {
	return c.store
}

// close releases the StateStore section's resources. Called whenever
// this partition stops being owned by this worker, whether by
// revocation or by local recovery from a fatal processing error.
func (c changeLogPartition[T]) close() error {
	return c.store.Close(c.partition)
}

// restore replays every record in the changelog partition, in order,
// into the StateStore section before the partition is marked ready for
// event processing. It opens a short-lived, manually-assigned client so
// that replay never competes with (or is throttled by) the group's main
// consumption.
func restoreChangeLogPartition[T StateStore](ctx context.Context, clusterOpts []kgo.Opt, topic string, partition int32, store T) error {
	opts := append(append([]kgo.Opt{}, clusterOpts...),
		kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
			topic: {partition: kgo.NewOffset().AtStart()},
		}),
	)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return errors.Wrapf(err, "restoring changelog for %s[%d]: opening client", topic, partition)
	}
	defer client.Close()

	endOffsets, err := highWaterMark(ctx, client, topic, partition)
	if err != nil {
		return errors.Wrapf(err, "restoring changelog for %s[%d]: fetching end offset", topic, partition)
	}
	if endOffsets <= 0 {
		return nil
	}

	records := make(chan *kgo.Record, 1000)
	done := make(chan error, 1)
	go func() { done <- store.Restore(partition, records) }()

	var seen int64
	for seen < endOffsets {
		fetchCtx, cancel := context.WithTimeout(ctx, consumerPollFetchTimeout)
		fetches := client.PollFetches(fetchCtx)
		cancel()
		if errs := fetches.Errors(); len(errs) > 0 {
			close(records)
			<-done
			return errors.Wrapf(errs[0].Err, "restoring changelog for %s[%d]: poll", topic, partition)
		}
		fetches.EachRecord(func(r *kgo.Record) {
			records <- r
			seen = r.Offset + 1
		})
	}
	close(records)
	return <-done
}

func highWaterMark(ctx context.Context, client *kgo.Client, topic string, partition int32) (int64, error) {
	admin := kadm.NewClient(client)
	listed, err := admin.ListEndOffsets(ctx, topic)
	if err != nil {
		return 0, err
	}
	offset, ok := listed.Lookup(topic, partition)
	if !ok {
		return 0, fmt.Errorf("no end offset reported for %s[%d]", topic, partition)
	}
	return offset.Offset, nil
}
