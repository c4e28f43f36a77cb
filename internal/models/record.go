package models

// Raw is a record exactly as extracted from the remote API, before any
// canonical mapping. Field names follow the remote contract.
type Raw map[string]any

// String returns the named field as a string, or "" when absent or not a string.
func (r Raw) String(field string) string {
	if v, ok := r[field].(string); ok {
		return v
	}
	return ""
}

// Float returns the named field as a float64, or 0 when absent or not numeric.
func (r Raw) Float(field string) float64 {
	if v, ok := r[field].(float64); ok {
		return v
	}
	return 0
}

// Canonical is a typed record produced by a pipeline's transform stage and
// accepted (or rejected) by its validators.
type Canonical interface {
	// Key returns the record's natural identifier used for upserts.
	Key() string

	// Kind identifies the record type (e.g. "user", "completion").
	Kind() string
}

// ValidationFailure captures a record rejected by a validator.
type ValidationFailure struct {
	RecordKey string `json:"record_key"`
	Reason    string `json:"reason"`
}
