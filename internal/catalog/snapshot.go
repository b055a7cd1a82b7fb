package catalog

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateRegistration is returned when two records share a registration number
	ErrDuplicateRegistration = errors.New("duplicate registration number")
	// ErrMissingRegistration is returned for records without a registration number
	ErrMissingRegistration = errors.New("missing registration number")
)

// Snapshot is an immutable set of product records loaded at startup.
// It is safe for concurrent use.
type Snapshot struct {
	records []ProductRecord
}

// NewSnapshot copies records into a new Snapshot, enforcing unique registration numbers
func NewSnapshot(records []ProductRecord) (*Snapshot, error) {
	seen := make(map[string]int, len(records))
	out := make([]ProductRecord, 0, len(records))
	for i, r := range records {
		key := strings.ToUpper(strings.TrimSpace(r.RegistrationNumber))
		if key == "" {
			return nil, fmt.Errorf("record %d (%q): %w", i, r.ProductName, ErrMissingRegistration)
		}
		if prev, ok := seen[key]; ok {
			return nil, fmt.Errorf("records %d and %d (%s): %w", prev, i, r.RegistrationNumber, ErrDuplicateRegistration)
		}
		seen[key] = i
		out = append(out, r)
	}
	return &Snapshot{records: out}, nil
}

// Len returns the number of records
func (s *Snapshot) Len() int {
	return len(s.records)
}

// Records returns a copy of the records in load order
func (s *Snapshot) Records() []ProductRecord {
	out := make([]ProductRecord, len(s.records))
	copy(out, s.records)
	return out
}
