package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies pipeline failures.
type ErrorCode string

const (
	ErrConfig            ErrorCode = "CONFIG"             // missing or invalid credentials/settings
	ErrUpstream          ErrorCode = "UPSTREAM"           // generative, image or CMS call failed
	ErrContractViolation ErrorCode = "CONTRACT_VIOLATION" // malformed service output
	ErrPersistence       ErrorCode = "PERSISTENCE"        // history or draft file write failed
	ErrPartialPublish    ErrorCode = "PARTIAL_PUBLISH"    // CMS accepted the post, archival move failed
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"
)

// PipelineError is a structured error with a code, message and optional cause.
type PipelineError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewConfig creates an error for missing or invalid configuration.
func NewConfig(msg string) *PipelineError {
	return &PipelineError{Code: ErrConfig, Message: msg}
}

// NewUpstream wraps a failed call to an external service.
func NewUpstream(service string, err error) *PipelineError {
	return &PipelineError{
		Code:    ErrUpstream,
		Message: fmt.Sprintf("%s call failed", service),
		Details: map[string]any{"service": service},
		Err:     err,
	}
}

// NewContractViolation reports service output that failed validation.
func NewContractViolation(contract, reason string) *PipelineError {
	return &PipelineError{
		Code:    ErrContractViolation,
		Message: fmt.Sprintf("%s: %s", contract, reason),
		Details: map[string]any{"contract": contract},
	}
}

// NewPersistence wraps a failed durable write.
func NewPersistence(what string, err error) *PipelineError {
	return &PipelineError{
		Code:    ErrPersistence,
		Message: fmt.Sprintf("failed to persist %s", what),
		Err:     err,
	}
}

// NewPartialPublish reports a post that went live but whose draft record was not archived.
func NewPartialPublish(filename, url string, err error) *PipelineError {
	return &PipelineError{
		Code:    ErrPartialPublish,
		Message: fmt.Sprintf("published %s to %s but could not archive the draft record; rerun publish to reconcile", filename, url),
		Details: map[string]any{"filename": filename, "url": url},
		Err:     err,
	}
}

// NewNotFound creates an error for a missing draft or record.
func NewNotFound(identifier string) *PipelineError {
	return &PipelineError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewInvalidRequest creates an error for invalid caller input.
func NewInvalidRequest(msg string) *PipelineError {
	return &PipelineError{Code: ErrInvalidRequest, Message: msg}
}

// Is reports whether any error in err's chain is a PipelineError with the given code.
func Is(err error, code ErrorCode) bool {
	var pErr *PipelineError
	if stderrors.As(err, &pErr) {
		return pErr.Code == code
	}
	return false
}

// CodeOf returns the code of the first PipelineError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var pErr *PipelineError
	if stderrors.As(err, &pErr) {
		return pErr.Code
	}
	return ""
}
