package media

import (
	"fmt"
	"time"
)

// InspectionError is a fatal probe failure: duration or dimensions could
// not be extracted from the source.
type InspectionError struct {
	Path string
	Err  error
}

func (e *InspectionError) Error() string {
	return fmt.Sprintf("inspect %s: %v", e.Path, e.Err)
}

func (e *InspectionError) Unwrap() error { return e.Err }

// EncodingError is a non-timeout encoder failure. Output carries the tail
// of the tool's diagnostic output.
type EncodingError struct {
	Label  string
	Output string
	Err    error
}

func (e *EncodingError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("encode %s: %v: %s", e.Label, e.Err, e.Output)
	}
	return fmt.Sprintf("encode %s: %v", e.Label, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// TimeoutError means the encoding process exceeded its wall-clock budget
// and was killed.
type TimeoutError struct {
	Label  string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("encode %s: timed out after %s", e.Label, e.Budget)
}
