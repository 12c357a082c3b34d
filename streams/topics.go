package streams

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
)

// reconcileTopics creates the source topic and its changelog topic if
// either is missing, using EventSourceConfig's NumPartitions,
// ReplicationFactor, and MinInSync. It is a no-op when NumPartitions is
// unset: this codebase does not manage topics it wasn't asked to.
func (es *EventSource[T]) reconcileTopics(ctx context.Context) error {
	if es.source.NumPartitions() <= 0 {
		return nil
	}

	admin := kadm.NewClient(es.consumer.client)
	defer admin.Close()

	partitions := int32(es.source.NumPartitions())
	replication := int16(replicationFactorConfig(es.source))
	minInSync := strconv.Itoa(minInSyncConfig(es.source))
	configs := map[string]*string{"min.insync.replicas": &minInSync}

	for _, topic := range []string{es.source.Topic(), es.source.StateStoreTopicName()} {
		resp, err := admin.CreateTopic(ctx, partitions, replication, configs, topic)
		if err != nil {
			return errors.Wrapf(err, "reconciling topic %s", topic)
		}
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return errors.Wrapf(resp.Err, "reconciling topic %s", topic)
		}
	}
	return nil
}
