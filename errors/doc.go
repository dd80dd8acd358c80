// Package errors provides structured error types for the wbg runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the offending handle or pointer, the host value
// involved, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseHandle, errors.KindInvalidHandle).
//		Handle(140).
//		Detail("slot is not occupied").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidUTF8(errors.PhaseMarshal, ptr, data)
//	err := errors.OutOfBounds(errors.PhaseMarshal, ptr, 16, memSize)
//
// Errors split into two families. Fatal errors (marshaling and protocol
// violations) abort the current module call. Host failures are captured and
// stored in the module's exception register instead. IsFatal tells them apart.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
