package accumulator

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kgo"
	bolt "go.etcd.io/bbolt"

	"github.com/amouat/dp-behovsakkumulator/streams"
)

var needStateBucket = []byte("need-state")

// ChangelogProducer durably appends (key, value) to the partition's
// changelog before returning, so callers can commit the triggering
// offset immediately afterward.
type ChangelogProducer func(ctx context.Context, key, value []byte) error

// Store is the streams.StateStore implementation backing a single owned
// partition: a local, persistent go.etcd.io/bbolt section plus the
// changelog producer used to make every Put durable before the
// triggering input's offset is eligible for commit.
type Store struct {
	db               *bolt.DB
	partition        int32
	produceChangelog ChangelogProducer
	metrics          streams.MetricsHandler
}

// NewStore opens (or creates) the on-disk bbolt section for partition
// under stateDir, named after topic and partition so that sections for
// different owned partitions never collide.
func NewStore(stateDir, topic string, partition int32, produce ChangelogProducer, metrics streams.MetricsHandler) (*Store, error) {
	path := filepath.Join(stateDir, fmt.Sprintf("%s-%d.db", topic, partition))
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening state store section %s", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(needStateBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initializing state store bucket")
	}
	if metrics == nil {
		metrics = streams.NopMetricsHandler{}
	}
	return &Store{db: db, partition: partition, produceChangelog: produce, metrics: metrics}, nil
}

// Get returns the current NeedState for id, or nil if none exists.
func (s *Store) Get(id string) (*NeedState, error) {
	var state *NeedState
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(needStateBucket).Get([]byte(id))
		if raw == nil {
			return nil
		}
		state = &NeedState{}
		return json.Unmarshal(raw, state)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "reading state for id %q", id)
	}
	return state, nil
}

// Put upserts state: it writes the local section first, then blocks
// until the changelog entry is durable, so the caller's subsequent
// offset commit is safe — a crash before this returns leaves the
// triggering input uncommitted and it will be reprocessed; a crash
// after leaves a self-consistent, restorable changelog entry.
func (s *Store) Put(ctx context.Context, state *NeedState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrapf(err, "marshaling state for id %q", state.ID)
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(needStateBucket).Put([]byte(state.ID), data)
	}); err != nil {
		return errors.Wrapf(err, "writing local state store section for id %q", state.ID)
	}
	if s.produceChangelog != nil {
		if err := s.produceChangelog(ctx, []byte(state.ID), data); err != nil {
			return errors.Wrapf(err, "writing changelog entry for id %q", state.ID)
		}
	}
	return nil
}

// Restore implements streams.StateStore: it drains records (already in
// per-partition offset order) into the local bbolt section, rebuilding
// state after a restart or reassignment before the partition worker is
// marked ready.
func (s *Store) Restore(partition int32, records <-chan *kgo.Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(needStateBucket)
		for r := range records {
			if err := b.Put(r.Key, r.Value); err != nil {
				return errors.Wrapf(err, "replaying changelog entry at offset %d", r.Offset)
			}
		}
		return nil
	})
}

// Close implements streams.StateStore, releasing the section's file
// handle on revocation.
func (s *Store) Close(partition int32) error {
	return s.db.Close()
}
