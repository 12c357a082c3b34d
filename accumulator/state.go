package accumulator

import "encoding/json"

// NeedState is the per correlation-id accumulated view: the required
// answer kinds, the most recent envelope template, and the solutions
// merged in so far.
type NeedState struct {
	ID       string                     `json:"id"`
	Required []string                   `json:"required"`
	Template map[string]json.RawMessage `json:"template"`
	// Solutions maps answer-kind to the most recently observed payload
	// for that kind (last-write-wins merge).
	Solutions map[string]json.RawMessage `json:"solutions"`
	// LastCompletedAt is the offset of the record that last caused a
	// final emission, nil if this id has never completed.
	LastCompletedAt *int64 `json:"lastCompletedAt,omitempty"`
	// Version is bumped on every Apply; used only as a changelog replay
	// sanity check, never consulted by the completeness predicate.
	Version int64 `json:"version"`
}

func (s *NeedState) clone() *NeedState {
	cp := &NeedState{
		ID:              s.ID,
		Required:        append([]string(nil), s.Required...),
		Template:        cloneFields(s.Template),
		Solutions:       cloneFields(s.Solutions),
		LastCompletedAt: s.LastCompletedAt,
		Version:         s.Version,
	}
	return cp
}
