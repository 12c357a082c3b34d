package accumulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestParse_RejectsNonObjectTopLevel(t *testing.T) {
	_, err := Parse([]byte(`[1,2,3]`))
	assert.Error(t, err)
}

func TestRecord_IDMissingOrWrongType(t *testing.T) {
	r := mustRecord(t, `{"aktørId":"a1"}`)
	_, ok := r.ID()
	assert.False(t, ok)

	r = mustRecord(t, `{"@id":42}`)
	_, ok = r.ID()
	assert.False(t, ok)
}

func TestRecord_FinalDefaultsFalse(t *testing.T) {
	r := mustRecord(t, `{"@id":"b1"}`)
	assert.False(t, r.Final())
}

func TestRecord_MarshalRoundTrips(t *testing.T) {
	r := mustRecord(t, `{"@id":"b1","@behov":["A"]}`)
	data, err := r.Marshal()
	require.NoError(t, err)

	r2, err := Parse(data)
	require.NoError(t, err)
	id, ok := r2.ID()
	require.True(t, ok)
	assert.Equal(t, "b1", id)
}
