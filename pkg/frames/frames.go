// Package frames parses job frame ranges and decides whether a job spans
// enough frames to benefit from persistent data between them.
package frames

import (
	"fmt"
	"strconv"
	"strings"
)

// RangeSeparator splits the start and end frame of a range
const RangeSeparator = ".."

// MinCacheSpan is the smallest end-start difference that enables caching.
// A two frame job (span 1) does not recover the memory it costs.
const MinCacheSpan = 2

// ParseError reports frame range text that cannot be parsed
type ParseError struct {
	Text   string
	Reason string
	Err    error
}

// Error implements error interface
func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid frame range %q: %s: %v", e.Text, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid frame range %q: %s", e.Text, e.Reason)
}

// Unwrap implements error unwrapping
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Range is an inclusive frame range with End >= Start
type Range struct {
	Start int
	End   int
}

// Span returns End - Start
func (r Range) Span() int {
	return r.End - r.Start
}

// IsRange reports whether text names a start..end range rather than a
// single frame.
func IsRange(text string) bool {
	return strings.Contains(text, RangeSeparator)
}

// ParseRange parses "start..end", splitting on the first separator.
// Whitespace around each bound is ignored.
func ParseRange(text string) (Range, error) {
	parts := strings.SplitN(text, RangeSeparator, 2)
	if len(parts) != 2 {
		return Range{}, &ParseError{Text: text, Reason: "missing " + RangeSeparator}
	}

	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Range{}, &ParseError{Text: text, Reason: "start frame is not an integer", Err: err}
	}
	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Range{}, &ParseError{Text: text, Reason: "end frame is not an integer", Err: err}
	}
	if end < start {
		return Range{}, &ParseError{Text: text, Reason: fmt.Sprintf("end frame %d before start frame %d", end, start)}
	}

	return Range{Start: start, End: end}, nil
}

// ShouldEnablePersistentData decides whether cross-frame data caching is
// worth enabling. present is false when the job carried no frame argument.
func ShouldEnablePersistentData(engineSupported bool, text string, present, disabled bool) (bool, error) {
	if !engineSupported || disabled || !present || !IsRange(text) {
		return false, nil
	}

	r, err := ParseRange(text)
	if err != nil {
		return false, err
	}
	return r.Span() >= MinCacheSpan, nil
}
