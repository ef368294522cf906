package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Lookup Errors
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"
	ErrorCodeNoData   ErrorCode = "NO_DATA"

	// Validation Errors
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Concurrency Errors (CONFLICT family)
	ErrorCodeConflict    ErrorCode = "CONFLICT"
	ErrorCodeAlreadyPaid ErrorCode = "ALREADY_PAID"

	// Source Errors
	ErrorCodePartialSourceFailure ErrorCode = "PARTIAL_SOURCE_FAILURE"
	ErrorCodeStorageFailure       ErrorCode = "STORAGE_FAILURE"

	// Internal Errors
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsNotFoundError reports a missing driver, record or transaction.
func IsNotFoundError(err error) bool {
	return GetErrorCode(err) == ErrorCodeNotFound
}

// IsNoDataError reports a week without any ingestion rows.
func IsNoDataError(err error) bool {
	return GetErrorCode(err) == ErrorCodeNoData
}

// IsConflictError checks for both a lost commit race and an already paid week.
func IsConflictError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeConflict || code == ErrorCodeAlreadyPaid
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorCode(err) == ErrorCodeInvalidInput
}

// IsStorageError checks if an error came from the evidence store or persistence layer
func IsStorageError(err error) bool {
	return GetErrorCode(err) == ErrorCodeStorageFailure
}

// Structured error instances. Use WrapError or WithDetail on a fresh
// NewDomainError when per-call context is needed; these are shared.
var (
	ErrDriverNotFound     = NewDomainError(ErrorCodeNotFound, "driver not found")
	ErrSettlementNotFound = NewDomainError(ErrorCodeNotFound, "settlement record not found")
	ErrPaymentNotFound    = NewDomainError(ErrorCodeNotFound, "payment transaction not found")

	ErrNoIngestionData = NewDomainError(ErrorCodeNoData, "no ingestion data for week")

	ErrInvalidWeek        = NewDomainError(ErrorCodeInvalidInput, "invalid week identifier")
	ErrMissingPaymentDate = NewDomainError(ErrorCodeInvalidInput, "payment date is required")
	ErrNonPositiveTotal   = NewDomainError(ErrorCodeInvalidInput, "payment total must be greater than zero")

	ErrSettlementAlreadyPaid = NewDomainError(ErrorCodeAlreadyPaid, "payment already recorded for this week")
	ErrCommitRaceLost        = NewDomainError(ErrorCodeConflict, "concurrent payment commit in progress")
	ErrReferralBonusChanged  = NewDomainError(ErrorCodeConflict, "referral bonus changed since the settlement was computed; recompute and retry")

	ErrSourcesUnavailable = NewDomainError(ErrorCodeStorageFailure, "all ingestion sources failed")
)
