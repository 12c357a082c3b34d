package accumulator

import "encoding/json"

// Record is the dynamic JSON envelope the accumulator observes on the
// shared topic. Only the reserved fields (@id, @behov, @løsning, final)
// are ever inspected by name; the rest is opaque payload that must be
// carried through verbatim onto any final record derived from it.
type Record struct {
	Fields map[string]json.RawMessage
}

// Parse decodes data as a Record. It fails only on malformed JSON or a
// top level value that is neither an object nor null (null yields a
// Record with no fields); missing reserved fields are reported by
// the accessor methods below, not here — only a missing @id is treated
// as a malformed record, and that check happens in the caller.
func Parse(data []byte) (*Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return &Record{Fields: fields}, nil
}

// ID returns the @id field, and whether it was present and a string.
func (r *Record) ID() (string, bool) {
	raw, ok := r.Fields["@id"]
	if !ok {
		return "", false
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", false
	}
	return id, true
}

// Behov returns the @behov field (the required answer kinds), and
// whether it was present.
func (r *Record) Behov() ([]string, bool) {
	raw, ok := r.Fields["@behov"]
	if !ok {
		return nil, false
	}
	var behov []string
	if err := json.Unmarshal(raw, &behov); err != nil {
		return nil, false
	}
	return behov, true
}

// Losning returns the @løsning field (answer kind -> payload), and
// whether it was present. Duplicate keys within the source JSON object
// resolve per encoding/json's own last-wins unmarshal behavior.
func (r *Record) Losning() (map[string]json.RawMessage, bool) {
	raw, ok := r.Fields["@løsning"]
	if !ok {
		return nil, false
	}
	var losning map[string]json.RawMessage
	if err := json.Unmarshal(raw, &losning); err != nil {
		return nil, false
	}
	return losning, true
}

// Final reports the value of the final field, defaulting to false.
func (r *Record) Final() bool {
	raw, ok := r.Fields["final"]
	if !ok {
		return false
	}
	var final bool
	_ = json.Unmarshal(raw, &final)
	return final
}

// Marshal re-serializes the envelope.
func (r *Record) Marshal() ([]byte, error) {
	return json.Marshal(r.Fields)
}

func cloneFields(m map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}
