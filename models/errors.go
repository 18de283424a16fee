package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeFetch             = "FETCH_FAILED"
	ErrCodeRender            = "RENDER_FAILED"
	ErrCodePolicyBlocked     = "POLICY_BLOCKED"
	ErrCodeResourceExhausted = "RESOURCE_EXHAUSTED"
	ErrCodeTimeout           = "SCAN_TIMEOUT"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// Sentinels for errors.Is checks against a *ScanError.
var (
	ErrInvalidRequest    = errors.New("invalid scan request")
	ErrResourceExhausted = errors.New("resource exhausted")
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScanError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScanError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScanError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the code-level sentinels without the caller
// having to wrap them explicitly.
func (e *ScanError) Is(target error) bool {
	switch target {
	case ErrInvalidRequest:
		return e.Code == ErrCodeInvalidRequest
	case ErrResourceExhausted:
		return e.Code == ErrCodeResourceExhausted
	}
	return false
}

// NewScanError creates a new ScanError.
func NewScanError(code, message string, err error) *ScanError {
	return &ScanError{Code: code, Message: message, Err: err}
}

// InvalidRequest is shorthand for an INVALID_REQUEST ScanError.
func InvalidRequest(format string, args ...any) *ScanError {
	return &ScanError{Code: ErrCodeInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScanError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// DetailFor maps any error to an ErrorDetail, defaulting to INTERNAL_ERROR.
func DetailFor(err error) *ErrorDetail {
	var se *ScanError
	if errors.As(err, &se) {
		return se.ToDetail()
	}
	return &ErrorDetail{Code: ErrCodeInternal, Message: err.Error()}
}
