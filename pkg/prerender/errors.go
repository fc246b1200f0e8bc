package prerender

import (
	"fmt"
	"strings"
)

// StepError is the failure of one pass step
type StepError struct {
	Step string
	// Fatal errors stopped the pass; the remaining steps did not run
	Fatal bool
	Err   error
}

// Error implements error interface
func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

// Unwrap implements error unwrapping
func (e *StepError) Unwrap() error {
	return e.Err
}

// PassError aggregates every step failure of a pass. Host state changed by
// earlier steps is left in place.
type PassError struct {
	PassID string
	Steps  []*StepError
}

// Error implements error interface
func (e *PassError) Error() string {
	msgs := make([]string, 0, len(e.Steps))
	for _, s := range e.Steps {
		msgs = append(msgs, s.Error())
	}
	return fmt.Sprintf("pass %s failed: %s", e.PassID, strings.Join(msgs, "; "))
}

// Unwrap exposes the step errors to errors.Is and errors.As
func (e *PassError) Unwrap() []error {
	errs := make([]error, 0, len(e.Steps))
	for _, s := range e.Steps {
		errs = append(errs, s)
	}
	return errs
}

// Fatal reports whether any step stopped the pass
func (e *PassError) Fatal() bool {
	for _, s := range e.Steps {
		if s.Fatal {
			return true
		}
	}
	return false
}
