// Package errors provides the error taxonomy for the synapse device server.
//
// # Overview
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid
// (bad input or forbidden lifecycle transition, never retried) and Fatal
// (unrecoverable for the component that raised it). Node loops use the class
// to decide between "log and continue" and "give up"; the control plane uses
// CodeOf to turn any error into a status code.
//
// # Domain Errors
//
// Every error that crosses the control plane or a node loop wraps one of:
//
//   - ErrValidation: a configuration field is malformed or out of range
//   - ErrInvalidState: the operation is forbidden in the current device or node state
//   - ErrTransport: a socket bind, join, send or receive failed
//   - ErrMalformedRecord: a sample record could not be decoded
//   - ErrHardwareDriver: the acquisition driver reported a failure
//   - ErrPortExhausted: no free port was found in the candidate range
//   - ErrUnsupportedDataType: a node received a payload it cannot handle
//   - ErrQueueFull: a bounded queue stayed full for the whole put timeout
//   - ErrTimeout: a bounded wait expired without data
//
// Validation messages are written for the caller, naming the field and the
// valid set or range:
//
//	return errors.Invalidf("invalid sample rate %d: must be one of %v", rate, rates)
//
// # Error Wrapping Pattern
//
// Wrapping follows the format:
//
//	"component.method: action failed: %w"
//
// WrapTransient, WrapInvalid and WrapFatal apply the same format and attach a
// class. Classification and sentinel identity survive the wrapping:
//
//	err := errors.WrapInvalid(errors.ErrValidation, "node", "Configure", "spec check")
//	errors.Is(err, errors.ErrValidation) // true
//	errors.CodeOf(err)                   // CodeValidationError
//
// # Status Codes
//
// CodeOf maps nil to CodeOK, ErrValidation to CodeValidationError,
// ErrInvalidState to CodeInvalidState and everything else to
// CodeUndefinedError. Codes marshal to their snake_case names.
package errors
