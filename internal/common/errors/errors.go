// Package errors provides the standardized error taxonomy shared by the HTTP
// API, the outbox relay and the Zeebe job workers.
package errors

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidRequest          ErrorCode = "INVALID_REQUEST"
	ErrCodeDuplicateLead           ErrorCode = "DUPLICATE_LEAD"
	ErrCodeDuplicateAffiliate      ErrorCode = "DUPLICATE_AFFILIATE"
	ErrCodeCodeGenerationExhausted ErrorCode = "CODE_GENERATION_EXHAUSTED"
	ErrCodeRateLimited             ErrorCode = "RATE_LIMITED"
	ErrCodeIllegalTransition       ErrorCode = "ILLEGAL_TRANSITION"
	ErrCodeConcurrentUpdate        ErrorCode = "CONCURRENT_UPDATE"
	ErrCodeInsufficientPending     ErrorCode = "INSUFFICIENT_PENDING_COMMISSION"
	ErrCodeResourceNotFound        ErrorCode = "RESOURCE_NOT_FOUND"

	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeStoreTimeout     ErrorCode = "STORE_TIMEOUT"

	ErrCodeAuthentication  ErrorCode = "AUTHENTICATION_ERROR"
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeExternalTimeout ErrorCode = "EXTERNAL_TIMEOUT"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches any StandardError carrying the same code, so package-level
// sentinels built with New work with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata returns e after setting key.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// New builds a StandardError whose retryability follows the code.
func New(code ErrorCode, message string) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableErrorCode(code),
		Timestamp: time.Now().UTC(),
	}
}

// Wrap builds a StandardError that keeps err reachable through errors.Unwrap.
func Wrap(code ErrorCode, message string, err error) *StandardError {
	se := New(code, message)
	if err != nil {
		se.Details = err.Error()
		se.cause = err
	}
	return se
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewValidationFailedError carries the complete, ordered violation list.
func NewValidationFailedError(violations interface{}, count int) *StandardError {
	se := New(ErrCodeValidationFailed, "Submission failed validation")
	se.Details = fmt.Sprintf("%d field violation(s)", count)
	return se.WithMetadata("violations", violations)
}

func NewInvalidRequestError(details string) *StandardError {
	se := New(ErrCodeInvalidRequest, "Request could not be processed")
	se.Details = details
	return se
}

func NewDuplicateLeadError(email string) *StandardError {
	se := New(ErrCodeDuplicateLead, "A submission with this email already exists")
	se.Details = fmt.Sprintf("email %s is already registered", email)
	return se
}

func NewDuplicateAffiliateError(email string) *StandardError {
	se := New(ErrCodeDuplicateAffiliate, "An affiliate with this email already exists")
	se.Details = fmt.Sprintf("email %s is already registered", email)
	return se
}

func NewCodeGenerationExhaustedError(prefix string, attempts int) *StandardError {
	se := New(ErrCodeCodeGenerationExhausted, "Could not allocate a unique referral code")
	se.Details = fmt.Sprintf("prefix %s collided on all %d attempts", prefix, attempts)
	return se.WithMetadata("attempts", attempts)
}

func NewRateLimitedError(retryAfter time.Duration) *StandardError {
	se := New(ErrCodeRateLimited, "Too many requests, retry later")
	return se.WithMetadata("retryAfterSeconds", int(retryAfter.Round(time.Second)/time.Second))
}

func NewIllegalTransitionError(from, to string) *StandardError {
	se := New(ErrCodeIllegalTransition, "Status transition is not allowed")
	se.Details = fmt.Sprintf("%s -> %s", from, to)
	se.WithMetadata("from", from)
	return se.WithMetadata("to", to)
}

func NewInsufficientPendingError(requested, pending string) *StandardError {
	se := New(ErrCodeInsufficientPending, "Payout exceeds pending commission")
	se.Details = fmt.Sprintf("requested %s, pending %s", requested, pending)
	return se
}

func NewConcurrentUpdateError(resource, id string) *StandardError {
	se := New(ErrCodeConcurrentUpdate, "Record was modified concurrently")
	se.Details = fmt.Sprintf("%s %s changed since it was read", resource, id)
	return se
}

func NewResourceNotFoundError(resource, id string) *StandardError {
	se := New(ErrCodeResourceNotFound, fmt.Sprintf("%s not found", resource))
	se.Details = fmt.Sprintf("%s %s does not exist", resource, id)
	return se
}

func NewStoreUnavailableError(operation string, err error) *StandardError {
	return Wrap(ErrCodeStoreUnavailable, fmt.Sprintf("Store unavailable during %s", operation), err)
}

func NewStoreTimeoutError(operation string, err error) *StandardError {
	return Wrap(ErrCodeStoreTimeout, fmt.Sprintf("Store timed out during %s", operation), err)
}

func NewAuthenticationError(details string) *StandardError {
	se := New(ErrCodeAuthentication, "Authentication failed")
	se.Details = details
	return se
}

func NewExternalServiceError(service string, err error) *StandardError {
	return Wrap(ErrCodeExternalService, fmt.Sprintf("%s request failed", service), err)
}

func NewTimeoutError(service string, err error) *StandardError {
	return Wrap(ErrCodeExternalTimeout, fmt.Sprintf("%s request timed out", service), err)
}

func NewInternalError(err error) *StandardError {
	return Wrap(ErrCodeInternal, "Unexpected error", err)
}

// FromStore classifies a database error. Deadline and cancellation map to a
// retryable timeout, connection faults to unavailable.
func FromStore(operation string, err error) *StandardError {
	if err == nil {
		return nil
	}
	var se *StandardError
	if stderrors.As(err, &se) {
		return se
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, context.Canceled):
		return NewStoreTimeoutError(operation, err)
	case stderrors.Is(err, driver.ErrBadConn), stderrors.Is(err, sql.ErrConnDone):
		return NewStoreUnavailableError(operation, err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return NewStoreTimeoutError(operation, err)
	}
	return NewStoreUnavailableError(operation, err)
}

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var se *StandardError
	if stderrors.As(err, &se) {
		return se
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewStoreTimeoutError("request", err)
	}
	return NewInternalError(err)
}

// ==========================
// 4. Error Conversion
// ==========================

// HTTPStatus maps an error code to the response status.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidationFailed, ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeResourceNotFound:
		return http.StatusNotFound
	case ErrCodeDuplicateLead, ErrCodeDuplicateAffiliate, ErrCodeIllegalTransition,
		ErrCodeConcurrentUpdate, ErrCodeInsufficientPending:
		return http.StatusConflict
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeStoreUnavailable, ErrCodeStoreTimeout, ErrCodeCodeGenerationExhausted,
		ErrCodeExternalService, ErrCodeExternalTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GetRetryCount returns the recommended retry count for a job failing with code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStoreUnavailable, ErrCodeExternalService:
		return 3
	case ErrCodeStoreTimeout, ErrCodeExternalTimeout, ErrCodeConcurrentUpdate:
		return 2
	case ErrCodeCodeGenerationExhausted:
		return 1
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeValidationFailed, ErrCodeInvalidRequest:
		return "VALIDATION"
	case ErrCodeDuplicateLead, ErrCodeDuplicateAffiliate, ErrCodeCodeGenerationExhausted, ErrCodeConcurrentUpdate:
		return "CONFLICT"
	case ErrCodeRateLimited:
		return "RATE_LIMITED"
	case ErrCodeIllegalTransition, ErrCodeInsufficientPending:
		return "BUSINESS_RULE"
	case ErrCodeStoreUnavailable, ErrCodeStoreTimeout:
		return "STORE"
	case ErrCodeAuthentication:
		return "AUTH"
	case ErrCodeExternalService, ErrCodeExternalTimeout:
		return "EXTERNAL"
	case ErrCodeResourceNotFound:
		return "NOT_FOUND"
	default:
		return "OTHER"
	}
}
