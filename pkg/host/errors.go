package host

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrNodeNotFound   = errors.New("node not found")
	ErrRejected       = errors.New("host rejected the change")
)

// RejectionError records a single mutation the host refused
type RejectionError struct {
	Target string // "device", "node" or "scene"
	ID     string
	Op     string
	Err    error
}

// Error implements error interface
func (e *RejectionError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s rejected: %v", e.Target, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s %q rejected: %v", e.Target, e.Op, e.ID, e.Err)
}

// Unwrap implements error unwrapping
func (e *RejectionError) Unwrap() error {
	return e.Err
}

// NewRejection wraps err as a RejectionError
func NewRejection(target, id, op string, err error) *RejectionError {
	return &RejectionError{Target: target, ID: id, Op: op, Err: err}
}
