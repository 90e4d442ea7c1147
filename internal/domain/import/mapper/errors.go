package mapper

import (
	"fmt"
	"strings"
)

// MappingError reports a row that could not be turned into a transaction.
// Missing lists the required fields with no value, Invalid those whose value
// could not be parsed. Reason describes the failure in a form suitable for
// the review queue.
type MappingError struct {
	Row     int
	Missing []Field
	Invalid []Field
	Reason  string
}

// Fields returns every field that failed, missing ones first.
func (e *MappingError) Fields() []Field {
	return append(append([]Field(nil), e.Missing...), e.Invalid...)
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

func newMappingError(row int, missing, invalid []Field, problems []string) *MappingError {
	var parts []string
	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, f := range missing {
			names[i] = string(f)
		}
		parts = append(parts, "missing "+strings.Join(names, ", "))
	}
	parts = append(parts, problems...)
	return &MappingError{Row: row, Missing: missing, Invalid: invalid, Reason: strings.Join(parts, "; ")}
}
