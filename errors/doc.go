// Package errors provides structured error types for the collector.
//
// Errors are categorized by Phase (which component raised it) and Kind
// (what went wrong). Every Kind the collector produces is fatal: a protocol
// violation means the host broke the calling contract, an internal
// consistency violation means the collector's own bookkeeping is wrong.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseRegistry, errors.KindProtocolViolation).
//		Shape(7).
//		Detail("shape has no size").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.UnknownShape(id)
//	err := errors.Untracked(errors.PhaseMark, addr)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
