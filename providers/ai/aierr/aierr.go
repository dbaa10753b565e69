// Package aierr defines the closed set of errors the streaming core can
// surface to a caller. Every failure path returns one of these; panics are
// reserved for true invariant violations, never for provider or transport
// failures.
package aierr

import (
	"errors"
	"fmt"
)

// Code identifies one of the closed taxonomy's variants.
type Code string

const (
	CodeTransportConnection   Code = "transport.connection"
	CodeTransportTimeout      Code = "transport.timeout"
	CodeAPIResponse           Code = "api.response"
	CodeDecodeSSE             Code = "decode.sse"
	CodeDecodeEventStream     Code = "decode.event_stream"
	CodeDecodePayload         Code = "decode.payload"
	CodeParseToolArguments    Code = "parse.tool_arguments"
	CodeProviderUnsupported   Code = "provider.unsupported"
	CodeAuthMissingCreds      Code = "auth.missing_credentials"
	CodeAuthAssumeRoleFailed  Code = "auth.assume_role_failed"
	CodeConfigValidation      Code = "config.validation"
	CodeCancelled             Code = "cancelled"
	CodeInternalTaskCrash     Code = "internal.task_crash"
	CodeDecodeBufferOverflow  Code = "decode.buffer_overflow"
)

// EventStreamReason distinguishes the sub-kinds of CodeDecodeEventStream.
type EventStreamReason string

const (
	EventStreamCRC          EventStreamReason = "crc"
	EventStreamLength       EventStreamReason = "length"
	EventStreamResyncFailed EventStreamReason = "resync_failed"
)

// Error is the single concrete error type for every taxonomy variant. Code
// selects the variant; the remaining fields are populated according to
// which variant Code names. Callers distinguish variants with errors.Is
// against the Sentinel* values, or by switching on (*Error).Code after an
// errors.As.
type Error struct {
	Code Code

	// api.response
	Status int
	Body   string
	Reason string

	// decode.event_stream
	EventStreamReason EventStreamReason

	// provider.unsupported
	Model string

	// config.validation
	Field string

	Cause error
}

func (e *Error) Error() string {
	switch e.Code {
	case CodeAPIResponse:
		if e.Reason != "" {
			return fmt.Sprintf("aigo: %s: status %d: %s", e.Code, e.Status, e.Reason)
		}
		return fmt.Sprintf("aigo: %s: status %d", e.Code, e.Status)
	case CodeDecodeEventStream:
		return fmt.Sprintf("aigo: %s: %s", e.Code, e.EventStreamReason)
	case CodeProviderUnsupported:
		return fmt.Sprintf("aigo: %s: model %q", e.Code, e.Model)
	case CodeConfigValidation:
		return fmt.Sprintf("aigo: %s: field %q: %s", e.Code, e.Field, e.Reason)
	default:
		if e.Cause != nil {
			return fmt.Sprintf("aigo: %s: %v", e.Code, e.Cause)
		}
		return fmt.Sprintf("aigo: %s", e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, &aierr.Error{...}) match on Code alone, so
// callers can test with a bare sentinel built from the zero-value fields of
// a given code, e.g. errors.Is(err, &aierr.Error{Code: aierr.CodeCancelled}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for the codes that never carry variant-specific fields, for
// convenient errors.Is comparisons.
var (
	ErrCancelled    = &Error{Code: CodeCancelled}
	ErrTaskCrash    = &Error{Code: CodeInternalTaskCrash}
	ErrBufferOverflow = &Error{Code: CodeDecodeBufferOverflow}
)

// TransportConnection wraps a socket/TLS failure.
func TransportConnection(cause error) *Error {
	return &Error{Code: CodeTransportConnection, Cause: cause}
}

// TransportTimeout wraps an idle or total request timeout.
func TransportTimeout(cause error) *Error {
	return &Error{Code: CodeTransportTimeout, Cause: cause}
}

// APIResponse builds an api.response error. Reason, when non-empty, is the
// provider's lifted error.message; Body is the verbatim response body.
func APIResponse(status int, body, reason string) *Error {
	return &Error{Code: CodeAPIResponse, Status: status, Body: body, Reason: reason}
}

// DecodeSSE wraps a malformed-past-recovery SSE structure.
func DecodeSSE(cause error) *Error {
	return &Error{Code: CodeDecodeSSE, Cause: cause}
}

// DecodeEventStream builds a decode.event_stream error for the given
// sub-reason.
func DecodeEventStream(reason EventStreamReason, cause error) *Error {
	return &Error{Code: CodeDecodeEventStream, EventStreamReason: reason, Cause: cause}
}

// DecodePayload wraps a malformed-inner-JSON error for an otherwise
// well-formed frame.
func DecodePayload(cause error) *Error {
	return &Error{Code: CodeDecodePayload, Cause: cause}
}

// ParseToolArguments wraps a tool-argument JSON parse failure. This variant
// is attached to the emitted tool-call chunk; it never aborts the stream.
func ParseToolArguments(cause error) *Error {
	return &Error{Code: CodeParseToolArguments, Cause: cause}
}

// ProviderUnsupported reports that no adapter matches the requested model.
func ProviderUnsupported(model string) *Error {
	return &Error{Code: CodeProviderUnsupported, Model: model}
}

// AuthMissingCredentials reports that credential resolution found nothing
// usable.
func AuthMissingCredentials(cause error) *Error {
	return &Error{Code: CodeAuthMissingCreds, Cause: cause}
}

// AuthAssumeRoleFailed reports that an STS AssumeRole (or equivalent) call
// failed.
func AuthAssumeRoleFailed(cause error) *Error {
	return &Error{Code: CodeAuthAssumeRoleFailed, Cause: cause}
}

// ConfigValidation reports an invalid request option.
func ConfigValidation(field, reason string) *Error {
	return &Error{Code: CodeConfigValidation, Field: field, Reason: reason}
}

// As is a thin wrapper over errors.As for the common case of recovering the
// *Error from an arbitrary wrapped error chain.
func As(err error) (*Error, bool) {
	var target *Error
	ok := errors.As(err, &target)
	return target, ok
}
