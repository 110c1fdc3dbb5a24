package apperr

import (
	"errors"
	"fmt"
)

// Code is the machine-matchable error code persisted on failed tasks and
// surfaced to API callers.
type Code string

const (
	CodeValidation              Code = "validation"
	CodeNotFound                Code = "not_found"
	CodeEmptyAccountSet         Code = "empty_account_set"
	CodeProjectCapacityExceeded Code = "project_capacity_exceeded"
	CodeAccountUnavailable      Code = "account_unavailable"
	CodeTransientUpload         Code = "transient_upload"
	CodePermanentUpload         Code = "permanent_upload"
	CodeDecryption              Code = "decryption"
	CodeMaxAttemptsExceeded     Code = "max_attempts_exceeded"
	CodeInternal                Code = "internal"
)

// Reason classifies an upload or probe failure for the health monitor.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonCredentialInvalid Reason = "credential_invalid"
	ReasonBanned            Reason = "banned"
	ReasonChannelAbsent     Reason = "channel_absent"
	ReasonChannelSuspended  Reason = "channel_suspended"
	ReasonPlatformBlocked   Reason = "platform_blocked"
	ReasonRateLimited       Reason = "rate_limited"
	ReasonSourceMissing     Reason = "source_missing"
	ReasonUnknown           Reason = "unknown"
)

// Error is the typed error carried across component boundaries.
type Error struct {
	Code    Code
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error with the given code and message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error with the given code wrapping err.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validation(format string, args ...any) *Error {
	return New(CodeValidation, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, format, args...)
}

// Transient builds a retryable upload error.
func Transient(reason Reason, err error, format string, args ...any) *Error {
	e := Wrap(CodeTransientUpload, err, format, args...)
	e.Reason = reason
	return e
}

// Permanent builds a non-retryable upload error.
func Permanent(reason Reason, err error, format string, args ...any) *Error {
	e := Wrap(CodePermanentUpload, err, format, args...)
	e.Reason = reason
	return e
}

// CodeOf returns the Code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// ReasonOf returns the Reason of the first *Error in err's chain.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonNone
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return Is(err, CodeTransientUpload)
}
