package errors

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates which component raised the error
type Phase string

const (
	PhaseLifecycle Phase = "lifecycle" // init/destroy and state checks
	PhaseRegistry  Phase = "registry"  // shape registration protocol
	PhaseAllocate  Phase = "allocate"  // tracked allocation
	PhaseScan      Phase = "scan"      // conservative root scan
	PhaseMark      Phase = "mark"      // reachability closure
	PhaseSweep     Phase = "sweep"     // reclamation
	PhaseMemory    Phase = "memory"    // raw memory boundary
	PhaseHost      Phase = "host"      // wasm host binding
	PhaseConfig    Phase = "config"    // configuration parsing
)

// Kind categorizes the error
type Kind string

const (
	KindProtocolViolation   Kind = "protocol_violation"
	KindUnknownShape        Kind = "unknown_shape"
	KindInternalConsistency Kind = "internal_consistency"
	KindAllocation          Kind = "allocation"
	KindOutOfBounds         Kind = "out_of_bounds"
	KindInvalidInput        Kind = "invalid_input"
)

// Error is the structured error type used throughout the collector
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Addr   uint32
	Shape  uint32
	// HasAddr and HasShape record whether Addr/Shape were set; zero is a
	// meaningful shape id.
	HasAddr  bool
	HasShape bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.HasShape {
		b.WriteString(" shape=")
		b.WriteString(strconv.FormatUint(uint64(e.Shape), 10))
	}
	if e.HasAddr {
		b.WriteString(" addr=0x")
		b.WriteString(strconv.FormatUint(uint64(e.Addr), 16))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Addr sets the heap or stack address involved
func (b *Builder) Addr(addr uint32) *Builder {
	b.err.Addr = addr
	b.err.HasAddr = true
	return b
}

// Shape sets the shape id involved
func (b *Builder) Shape(id uint32) *Builder {
	b.err.Shape = id
	b.err.HasShape = true
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Protocol creates a protocol violation error
func Protocol(phase Phase, format string, args ...any) *Error {
	return New(phase, KindProtocolViolation).Detail(format, args...).Build()
}

// UnknownShape creates an unknown shape error for allocate
func UnknownShape(id uint32) *Error {
	return New(PhaseAllocate, KindUnknownShape).
		Shape(id).
		Detail("no finalized shape for id %d", id).
		Build()
}

// Untracked creates an internal consistency error for an address the
// tracker does not know about
func Untracked(phase Phase, addr uint32) *Error {
	return New(phase, KindInternalConsistency).
		Addr(addr).
		Detail("address is not tracked").
		Build()
}

// Consistency creates an internal consistency error
func Consistency(phase Phase, cause error, format string, args ...any) *Error {
	return New(phase, KindInternalConsistency).
		Cause(cause).
		Detail(format, args...).
		Build()
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
		Cause:  cause,
	}
}

// OutOfBounds creates an out of bounds memory access error
func OutOfBounds(phase Phase, addr, length uint32) *Error {
	return New(phase, KindOutOfBounds).
		Addr(addr).
		Detail("access of %d bytes out of bounds", length).
		Build()
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsProtocolViolation reports whether err is a protocol violation in any phase.
func IsProtocolViolation(err error) bool {
	return KindOf(err) == KindProtocolViolation
}

// IsUnknownShape reports whether err is an unknown shape error.
func IsUnknownShape(err error) bool {
	return KindOf(err) == KindUnknownShape
}

// IsInternalConsistency reports whether err is an internal consistency violation.
func IsInternalConsistency(err error) bool {
	return KindOf(err) == KindInternalConsistency
}
