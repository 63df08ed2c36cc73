package domain

// Record is one row returned by the query API before flattening.
// Values are scalars, nil or nested records.
type Record map[string]any

// FlatRecord is a single-level record keyed by the dotted path of the original nesting,
// e.g. "Lead.Owner.Name".
type FlatRecord map[string]any

// Clone returns a shallow copy of the record
func (r FlatRecord) Clone() FlatRecord {
	out := make(FlatRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the value at key as a string.
// Missing keys and nil values yield an empty string.
func (r FlatRecord) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
