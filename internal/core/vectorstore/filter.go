package vectorstore

import "github.com/embedhq/vectorproxy/internal/core"

const (
	defaultScrollPage = 100
	defaultTopK       = 5

	// bulkBatchSize is the server-side batch hint for bulk upserts.
	bulkBatchSize = 100
)

// matchesFilter evaluates the neutral FilterConditions against a payload:
// every must matches, no must_not matches, and at least one should matches
// when any should is present. Predicates are equality on top-level fields.
func matchesFilter(payload map[string]any, f *core.FilterConditions) bool {
	if f == nil {
		return true
	}
	for _, c := range f.Must {
		if !fieldEquals(payload, c) {
			return false
		}
	}
	for _, c := range f.MustNot {
		if fieldEquals(payload, c) {
			return false
		}
	}
	if len(f.Should) > 0 {
		any := false
		for _, c := range f.Should {
			if fieldEquals(payload, c) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	return true
}

func fieldEquals(payload map[string]any, c core.FieldCondition) bool {
	v, ok := payload[c.Field]
	if !ok {
		return false
	}
	return v == c.Value
}
