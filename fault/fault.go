// Package fault classifies failures by the phase of the renderer lifecycle
// in which they occur. Load-time failures happen while the scene, the
// acceleration structures or the dispatch pipeline are being set up; frame
// failures happen while a frame is being updated, recorded or submitted.
//
// Neither phase is retried. The classification lets the host decide whether
// to abort gracefully or report the problem to the user.
package fault

import (
	"errors"
	"fmt"
)

type Phase uint8

const (
	Unknown Phase = iota
	Load
	Frame
)

// Implements Stringer.
func (p Phase) String() string {
	switch p {
	case Load:
		return "load"
	case Frame:
		return "frame"
	}
	return "unknown"
}

// Error wraps a failure together with the lifecycle phase and the operation
// that produced it.
type Error struct {
	Phase Phase
	Op    string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %s: %v", e.Phase, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap err as a load-time failure. Returns nil if err is nil. Errors that
// are already classified keep their existing phase.
func LoadErr(op string, err error) error {
	return wrap(Load, op, err)
}

// Wrap err as a per-frame failure. Returns nil if err is nil. Errors that
// are already classified keep their existing phase.
func FrameErr(op string, err error) error {
	return wrap(Frame, op, err)
}

func wrap(phase Phase, op string, err error) error {
	if err == nil {
		return nil
	}

	var fe *Error
	if errors.As(err, &fe) {
		return err
	}

	return &Error{Phase: phase, Op: op, Err: err}
}

// Get the phase of a classified error.
func PhaseOf(err error) Phase {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Phase
	}
	return Unknown
}

// Returns true if err is a load-time failure.
func IsLoad(err error) bool {
	return PhaseOf(err) == Load
}

// Returns true if err is a per-frame failure.
func IsFrame(err error) bool {
	return PhaseOf(err) == Frame
}
