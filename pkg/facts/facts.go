// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package facts holds the observed-state result shape shared by all read-only
// queries. A query returns the current provider-reported attributes of the
// matching resources, keyed by name, and never mutates anything.
package facts

// Record is the observed state of a single resource.
type Record map[string]any

// Result maps resource names to their observed state. Changed reports whether
// the query mutated anything; reads are pure, so it stays false.
type Result struct {
	Changed   bool              `json:"changed"`
	Resources map[string]Record `json:"resources"`
}

// NewResult returns an empty result. Changed is false and queries must leave
// it that way.
func NewResult() *Result {
	return &Result{Resources: make(map[string]Record)}
}

// Add stores the record under the given name. Empty names are ignored.
func (r *Result) Add(name string, rec Record) {
	if name == "" {
		return
	}
	r.Resources[name] = rec
}

// Get returns the record for the given name.
func (r *Result) Get(name string) (Record, bool) {
	rec, ok := r.Resources[name]
	return rec, ok
}

// Has reports whether a record exists for the given name.
func (r *Result) Has(name string) bool {
	_, ok := r.Resources[name]
	return ok
}

// Len returns the number of records.
func (r *Result) Len() int {
	return len(r.Resources)
}

// MissingFields returns the names of the wanted fields that are absent or nil
// in the record. Empty return means all descriptive fields are populated.
func MissingFields(rec Record, fields []string) []string {
	var missing []string
	for _, f := range fields {
		v, ok := rec[f]
		if !ok || v == nil {
			missing = append(missing, f)
		}
	}
	return missing
}
