package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Retryable  bool   `json:"retryable,omitempty"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Error codes. Callers compare with HasCode rather than on messages.
const (
	CodeNotFound              = "TRX_001"
	CodeInvalidState          = "TRX_002"
	CodeMethodAlreadySet      = "TRX_003"
	CodeAmountMismatch        = "TRX_004"
	CodeFulfillmentInProgress = "TRX_005"
	CodeAuthFailure           = "SEC_002"
	CodeInvalidToken          = "SEC_003"
	CodeAdapter               = "EXT_001"
	CodeValidation            = "REQ_001"
	CodeRateLimit             = "RATE_001"
	CodeInternal              = "SYS_001"
)

// HasCode reports whether err is (or wraps) an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// ---- Transaction lifecycle (TRX) ----

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrInvalidState(current, operation string) *AppError {
	return New(CodeInvalidState, fmt.Sprintf("cannot %s a transaction in status %s", operation, current), http.StatusConflict)
}

func ErrMethodAlreadySet(existing string) *AppError {
	return New(CodeMethodAlreadySet, fmt.Sprintf("payment method already set to %s", existing), http.StatusConflict)
}

// ErrAmountMismatch rejects a payment verdict whose amount differs from the
// transaction price.
func ErrAmountMismatch(expected, received int64) *AppError {
	return New(CodeAmountMismatch, fmt.Sprintf("paid amount %d does not match price %d", received, expected), http.StatusUnprocessableEntity)
}

func ErrFulfillmentInProgress() *AppError {
	return New(CodeFulfillmentInProgress, "Fulfillment already in progress", http.StatusConflict)
}

// ---- Security & Authentication (SEC) ----

func ErrAuthenticationFailure() *AppError {
	return New(CodeAuthFailure, "Invalid signature", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

// ---- External providers (EXT) ----

// ErrAdapter reports a transient failure talking to an external provider.
// It never implies a change of transaction status.
func ErrAdapter(provider string, err error) *AppError {
	e := Wrap(CodeAdapter, fmt.Sprintf("%s temporarily unavailable", provider), http.StatusBadGateway, err)
	e.Retryable = true
	return e
}

// ---- Request validation (REQ) ----

func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimit, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap(CodeInternal, "Internal database error", http.StatusInternalServerError, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_003", "Encryption service failure", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}
