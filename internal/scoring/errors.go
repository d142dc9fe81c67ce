package scoring

import (
	"errors"
	"fmt"
)

// ValidationError marks an out-of-range or unresolvable input value. It is
// fatal for the run and surfaced to the caller; values are never silently
// clamped into range.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation %s: %s", e.Field, e.Reason)
}

// DataMissingError marks a referenced layer, factor, or segment with no data
// for the run. Consumers see an explicit unavailable flag, never a defaulted
// zero.
type DataMissingError struct {
	Kind string
	ID   string
}

func (e *DataMissingError) Error() string {
	return fmt.Sprintf("no data for %s %q", e.Kind, e.ID)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsDataMissing(err error) bool {
	var de *DataMissingError
	return errors.As(err, &de)
}
