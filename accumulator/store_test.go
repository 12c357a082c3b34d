package accumulator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestStore_PutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	var changelog []*kgo.Record
	produce := func(_ context.Context, key, value []byte) error {
		changelog = append(changelog, &kgo.Record{Key: key, Value: value})
		return nil
	}

	store, err := NewStore(dir, "behov", 0, produce, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(0) })

	state := &NeedState{
		ID:        "b1",
		Required:  []string{"A"},
		Template:  map[string]json.RawMessage{"@id": json.RawMessage(`"b1"`)},
		Solutions: map[string]json.RawMessage{"A": json.RawMessage(`{"v":1}`)},
		Version:   1,
	}
	require.NoError(t, store.Put(context.Background(), state))
	require.Len(t, changelog, 1)
	assert.Equal(t, "b1", string(changelog[0].Key))

	got, err := store.Get("b1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, state.Required, got.Required)
	assert.Equal(t, state.Version, got.Version)

	missing, err := store.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_Restore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "behov", 1, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(1) })

	state := &NeedState{ID: "b2", Required: []string{"A"}, Solutions: map[string]json.RawMessage{}}
	data, err := json.Marshal(state)
	require.NoError(t, err)

	records := make(chan *kgo.Record, 1)
	records <- &kgo.Record{Key: []byte("b2"), Value: data}
	close(records)

	require.NoError(t, store.Restore(1, records))

	got, err := store.Get("b2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"A"}, got.Required)
}

func TestStore_PutPropagatesChangelogError(t *testing.T) {
	dir := t.TempDir()
	boom := assert.AnError
	produce := func(_ context.Context, _, _ []byte) error { return boom }

	store, err := NewStore(dir, "behov", 0, produce, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(0) })

	err = store.Put(context.Background(), &NeedState{ID: "b3", Solutions: map[string]json.RawMessage{}})
	require.Error(t, err)
}
