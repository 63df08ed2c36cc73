package flatten

import (
	"fmt"
	"reflect"

	"github.com/feral-file/crm-reports/internal/domain"
)

// Separator joins parent and child keys in flattened output
const Separator = "."

// maxPasses bounds the number of merge passes, one per nesting level
const maxPasses = 256

// Flatten lifts every nested mapping of record into a single level keyed by the
// dotted path of its ancestors, e.g. {"a": {"b": 1}} becomes {"a.b": 1}.
//
// Each pass merges one level of nesting into its parent. Passes repeat until no
// value is a mapping. Empty nested mappings contribute no keys. Lists are not
// supported and yield domain.ErrUnsupportedShape. The input is never modified.
func Flatten(record domain.Record) (domain.FlatRecord, error) {
	current := make(map[string]any, len(record))
	for k, v := range record {
		current[k] = v
	}

	for pass := 0; pass < maxPasses; pass++ {
		next, nested, err := mergeOnce(current)
		if err != nil {
			return nil, err
		}
		if !nested {
			return domain.FlatRecord(current), nil
		}
		current = next
	}

	return nil, fmt.Errorf("%w: nesting deeper than %d levels", domain.ErrUnsupportedShape, maxPasses)
}

// mergeOnce lifts the direct children of every nested mapping one level up.
// nested reports whether any mapping was found.
func mergeOnce(in map[string]any) (out map[string]any, nested bool, err error) {
	out = make(map[string]any, len(in))

	// Plain values go first so a collision with a lifted key is always detected on the lifted side
	for k, v := range in {
		if _, ok := asMapping(v); ok {
			continue
		}
		if isList(v) {
			return nil, false, fmt.Errorf("%w: key %q holds a list", domain.ErrUnsupportedShape, k)
		}
		out[k] = v
	}

	for k, v := range in {
		child, ok := asMapping(v)
		if !ok {
			continue
		}
		nested = true
		for ck, cv := range child {
			key := k + Separator + ck
			if _, exists := out[key]; exists {
				return nil, false, fmt.Errorf("%w: key %q collides with a flattened key", domain.ErrUnsupportedShape, key)
			}
			out[key] = cv
		}
	}

	return out, nested, nil
}

func asMapping(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case domain.Record:
		return m, true
	case domain.FlatRecord:
		return m, true
	default:
		return nil, false
	}
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	kind := reflect.TypeOf(v).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}
