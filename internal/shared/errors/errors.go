package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/kislikjeka/pocketledger/internal/analytics"
	"github.com/kislikjeka/pocketledger/internal/backup"
	"github.com/kislikjeka/pocketledger/internal/ledger"
	"github.com/kislikjeka/pocketledger/internal/profile"
)

// AppError represents an application error with additional context
type AppError struct {
	Code    string // Error code for client
	Message string // Human-readable message
	Err     error  // Underlying error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeDuplicateName = "DUPLICATE_NAME"
	ErrCodeDuplicateID   = "DUPLICATE_ID"
	ErrCodeInvalidFormat = "INVALID_FORMAT"
	ErrCodeStoreFailure  = "STORE_FAILURE"
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeMethod        = "METHOD_NOT_ALLOWED"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Validation creates a validation error
func Validation(message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
	}
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
	}
}

// Internal creates an internal error
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// FromError classifies any error returned by the engine. Validation problems
// are checked before NotFound because a missing field wraps ErrNotFound.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ledger.ErrMissingField),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidType),
		errors.Is(err, ledger.ErrInvalidDate),
		errors.Is(err, analytics.ErrInvalidPeriod),
		errors.Is(err, profile.ErrUsernameTooLong):
		return Wrap(err, ErrCodeValidation, "invalid input")
	case errors.Is(err, ledger.ErrNotFound):
		return Wrap(err, ErrCodeNotFound, "resource not found")
	case errors.Is(err, ledger.ErrDuplicateName):
		return Wrap(err, ErrCodeDuplicateName, "an account with this name already exists")
	case errors.Is(err, ledger.ErrDuplicateID):
		return Wrap(err, ErrCodeDuplicateID, "an item with this id already exists")
	case errors.Is(err, backup.ErrInvalidFormat):
		return Wrap(err, ErrCodeInvalidFormat, "invalid backup format")
	case errors.Is(err, ledger.ErrStoreFailure):
		return Wrap(err, ErrCodeStoreFailure, "storage is unavailable")
	default:
		return Internal("internal server error", err)
	}
}

// HTTPStatus returns the response status for the error code
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeValidation, ErrCodeBadRequest, ErrCodeInvalidFormat:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeMethod:
		return http.StatusMethodNotAllowed
	case ErrCodeDuplicateName, ErrCodeDuplicateID:
		return http.StatusConflict
	case ErrCodeStoreFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the message safe to show to clients. Validation and
// format errors include the cause, which only names the offending field.
func (e *AppError) PublicMessage() string {
	switch e.Code {
	case ErrCodeValidation, ErrCodeInvalidFormat, ErrCodeBadRequest:
		if e.Err != nil {
			return e.Err.Error()
		}
	}
	return e.Message
}
