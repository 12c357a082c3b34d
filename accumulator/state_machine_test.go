package accumulator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRecord(t *testing.T, raw string) *Record {
	t.Helper()
	r, err := Parse([]byte(raw))
	require.NoError(t, err)
	return r
}

func losningField(t *testing.T, final *Record, kind string) map[string]any {
	t.Helper()
	raw, ok := final.Fields["@løsning"]
	require.True(t, ok, "final record missing @løsning")
	var losning map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &losning))
	v, ok := losning[kind]
	require.True(t, ok, "missing kind %q in @løsning", kind)
	return v
}

// E1. Standalone solution: a record carrying both @behov and a matching
// @løsning in one message completes immediately.
func TestApply_StandaloneSolution(t *testing.T) {
	r := mustRecord(t, `{"@id":"b5","aktørId":"a1","@behov":["AndreYtelser"],"@løsning":{"AndreYtelser":{"felt1":null,"felt2":{}}}}`)

	state, final := Apply(nil, r, 0)
	require.NotNil(t, final)
	assert.True(t, final.Final())

	got := losningField(t, final, "AndreYtelser")
	assert.Nil(t, got["felt1"])
	assert.Equal(t, map[string]any{}, got["felt2"])
	assert.Equal(t, int64(1), state.Version)
}

// E2. Three-part join: a need record followed by three solutions, one per
// required kind, yields exactly one final once the last kind lands.
func TestApply_ThreePartJoin(t *testing.T) {
	need := mustRecord(t, `{"@id":"b1","@behov":["Sykepengehistorikk","AndreYtelser","Foreldrepenger"]}`)
	sol1 := mustRecord(t, `{"@id":"b1","@løsning":{"Sykepengehistorikk":{"v":1}}}`)
	sol2 := mustRecord(t, `{"@id":"b1","@løsning":{"AndreYtelser":{"v":2}}}`)
	sol3 := mustRecord(t, `{"@id":"b1","@løsning":{"Foreldrepenger":{"v":3}}}`)

	state, final := Apply(nil, need, 0)
	assert.Nil(t, final)

	state, final = Apply(state, sol1, 1)
	assert.Nil(t, final)

	state, final = Apply(state, sol2, 2)
	assert.Nil(t, final)

	_, final = Apply(state, sol3, 3)
	require.NotNil(t, final)

	raw, ok := final.Fields["@løsning"]
	require.True(t, ok)
	var losning map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &losning))
	assert.ElementsMatch(t, []string{"Sykepengehistorikk", "AndreYtelser", "Foreldrepenger"}, keysOf(losning))
}

func keysOf(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// E3. Independent ids interleaved: two ids requiring the same three kinds
// are processed against independent NeedState values (P4), so one
// completing does not affect the other.
func TestApply_IndependentIdsInterleaved(t *testing.T) {
	required := []string{"Sykepengehistorikk", "AndreYtelser", "Foreldrepenger"}
	needFor := func(id string) *Record {
		data, err := json.Marshal(map[string]any{"@id": id, "@behov": required})
		require.NoError(t, err)
		return mustRecord(t, string(data))
	}
	solutionFor := func(id, kind string) *Record {
		data, err := json.Marshal(map[string]any{"@id": id, "@løsning": map[string]any{kind: map[string]any{"v": kind}}})
		require.NoError(t, err)
		return mustRecord(t, string(data))
	}

	b2, _ := Apply(nil, needFor("b2"), 0)
	b3, _ := Apply(nil, needFor("b3"), 1)

	b2, final := Apply(b2, solutionFor("b2", "Sykepengehistorikk"), 2)
	assert.Nil(t, final)
	b3, final = Apply(b3, solutionFor("b3", "Sykepengehistorikk"), 3)
	assert.Nil(t, final)

	b2, final = Apply(b2, solutionFor("b2", "AndreYtelser"), 4)
	assert.Nil(t, final, "b2 has only two of three kinds and must not complete")
	b3, final = Apply(b3, solutionFor("b3", "AndreYtelser"), 5)
	assert.Nil(t, final)

	_, final = Apply(b3, solutionFor("b3", "Foreldrepenger"), 6)
	require.NotNil(t, final)
	id, _ := final.ID()
	assert.Equal(t, "b3", id)
}

// E4. Re-emit on update: a completed id receiving another solution for an
// already-satisfied kind produces exactly one additional final (P5),
// reflecting the new value (P3).
func TestApply_ReEmitOnNewValue(t *testing.T) {
	need := mustRecord(t, `{"@id":"b4","@behov":["Sykepengehistorikk","AndreYtelser"]}`)
	first := mustRecord(t, `{"@id":"b4","@løsning":{"Sykepengehistorikk":{"felt1":"x"},"AndreYtelser":{"felt1":"første verdi"}}}`)
	second := mustRecord(t, `{"@id":"b4","@løsning":{"AndreYtelser":{"felt1":"andre verdi"}}}`)

	state, final := Apply(nil, need, 0)
	assert.Nil(t, final)

	state, final = Apply(state, first, 1)
	require.NotNil(t, final)
	got := losningField(t, final, "AndreYtelser")
	assert.Equal(t, "første verdi", got["felt1"])

	_, final = Apply(state, second, 2)
	require.NotNil(t, final)
	got = losningField(t, final, "AndreYtelser")
	assert.Equal(t, "andre verdi", got["felt1"])
}

// E5. Last-write-wins on duplicate kind: the last solution for a kind
// before completion is the one that survives into the final record.
func TestApply_LastWriteWinsOnDuplicateKind(t *testing.T) {
	need := mustRecord(t, `{"@id":"b6","@behov":["Sykepengehistorikk","AndreYtelser","Foreldrepenger"]}`)
	sol1 := mustRecord(t, `{"@id":"b6","@løsning":{"Sykepengehistorikk":{"felt2":"første løsning"}}}`)
	sol2 := mustRecord(t, `{"@id":"b6","@løsning":{"AndreYtelser":{"felt2":"uansett"}}}`)
	sol3 := mustRecord(t, `{"@id":"b6","@løsning":{"Sykepengehistorikk":{"felt2":"andre løsning"}}}`)
	sol4 := mustRecord(t, `{"@id":"b6","@løsning":{"Foreldrepenger":{"felt2":"siste"}}}`)

	state, _ := Apply(nil, need, 0)
	state, _ = Apply(state, sol1, 1)
	state, _ = Apply(state, sol2, 2)
	state, _ = Apply(state, sol3, 3)
	_, final := Apply(state, sol4, 4)

	require.NotNil(t, final)
	got := losningField(t, final, "Sykepengehistorikk")
	assert.Equal(t, "andre løsning", got["felt2"])
}

// P1 Completeness + P6 Self-non-consumption framing: a final record, once
// emitted, is itself marked final so a caller filtering on Final() never
// feeds it back through Apply.
func TestApply_FinalRecordMarkedFinal(t *testing.T) {
	need := mustRecord(t, `{"@id":"b7","@behov":[]}`)
	_, final := Apply(nil, need, 0)
	require.NotNil(t, final)
	assert.True(t, final.Final())
}

// P2 Envelope preservation: non-reserved fields from the most recent
// input envelope ride through onto the final record unchanged.
func TestApply_EnvelopePreservation(t *testing.T) {
	need := mustRecord(t, `{"@id":"b8","aktørId":"a42","@behov":["Sykepengehistorikk"]}`)
	sol := mustRecord(t, `{"@id":"b8","aktørId":"a42","@løsning":{"Sykepengehistorikk":{"v":1}}}`)

	state, final := Apply(nil, need, 0)
	assert.Nil(t, final)
	_, final = Apply(state, sol, 1)
	require.NotNil(t, final)

	var aktorId string
	require.NoError(t, json.Unmarshal(final.Fields["aktørId"], &aktorId))
	assert.Equal(t, "a42", aktorId)
}

// Empty @behov edge case: completeness holds trivially on first contact.
func TestApply_EmptyBehovCompletesImmediately(t *testing.T) {
	need := mustRecord(t, `{"@id":"b9","@behov":[]}`)
	_, final := Apply(nil, need, 0)
	require.NotNil(t, final)

	raw, ok := final.Fields["@løsning"]
	require.True(t, ok)
	var losning map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &losning))
	assert.Empty(t, losning)
}

// The required set only updates when a record actually carries @behov:
// a solution without @behov leaves it unchanged.
func TestApply_RequiredOnlyUpdatesWhenBehovPresent(t *testing.T) {
	need := mustRecord(t, `{"@id":"b10","@behov":["A","B"]}`)
	solWithoutBehov := mustRecord(t, `{"@id":"b10","@løsning":{"A":{"v":1}}}`)

	state, _ := Apply(nil, need, 0)
	state, _ = Apply(state, solWithoutBehov, 1)
	assert.Equal(t, []string{"A", "B"}, state.Required)
}
