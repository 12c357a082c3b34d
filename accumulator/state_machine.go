package accumulator

import "encoding/json"

// Apply runs the accumulation transition for a single inbound,
// non-final, well-formed record r observed at offset. prev is the prior
// NeedState for r's correlation id, or nil if none exists yet. It
// returns the next NeedState (always non-nil) and, when the transition
// yields a completion, the final record to emit (otherwise nil).
//
// Apply is a pure function of its inputs: no I/O, no clock, no partition
// or store state. Everything about Kafka, bbolt, or the producer pool
// lives in Processor and Store; this function exists so the
// accumulation invariants can be tested without any of that machinery.
func Apply(prev *NeedState, r *Record, offset int64) (*NeedState, *Record) {
	id, _ := r.ID()

	var next *NeedState
	if prev == nil {
		next = &NeedState{ID: id, Solutions: map[string]json.RawMessage{}}
	} else {
		next = prev.clone()
	}

	// Reconcile required — latest @behov wins when present.
	if behov, ok := r.Behov(); ok && !equalBehov(behov, next.Required) {
		next.Required = behov
	}

	// Update template unconditionally.
	next.Template = cloneFields(r.Fields)

	// Merge solutions, last-write-wins per kind.
	if losning, ok := r.Losning(); ok {
		for kind, value := range losning {
			next.Solutions[kind] = value
		}
	}

	next.Version++

	// Evaluate completeness. An empty required set is complete on first
	// contact.
	var final *Record
	if isComplete(next.Required, next.Solutions) {
		final = buildFinal(next.Template, next.Solutions)
		off := offset
		next.LastCompletedAt = &off
	}

	return next, final
}

func isComplete(required []string, solutions map[string]json.RawMessage) bool {
	for _, kind := range required {
		if _, ok := solutions[kind]; !ok {
			return false
		}
	}
	return true
}

func buildFinal(template, solutions map[string]json.RawMessage) *Record {
	fields := cloneFields(template)
	losning := make(map[string]json.RawMessage, len(solutions))
	for k, v := range solutions {
		losning[k] = v
	}
	losningBytes, _ := json.Marshal(losning)
	fields["@løsning"] = losningBytes
	fields["final"] = json.RawMessage("true")
	return &Record{Fields: fields}
}

func equalBehov(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
