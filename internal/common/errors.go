package common

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmptyCart is returned when checkout is attempted on a cart without items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInsufficientStock matches every *InsufficientStockError via errors.Is.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConcurrentModification signals a lost race on a guarded update. Callers may retry.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput is returned when the provided payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// InsufficientStockError carries the stock context for a rejected cart edit.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// Is reports whether target is ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// ToAppError maps domain errors onto their HTTP representation. Unknown errors become 500 INTERNAL.
func ToAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var stockErr *InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		return &AppError{
			Code:       "INSUFFICIENT_STOCK",
			Message:    fmt.Sprintf("only %d left in stock", stockErr.Available),
			HTTPStatus: http.StatusConflict,
			Err:        err,
			Details: map[string]any{
				"productId": stockErr.ProductID,
				"requested": stockErr.Requested,
				"available": stockErr.Available,
			},
		}
	case errors.Is(err, ErrEmptyCart):
		return NewAppError("EMPTY_CART", "cart is empty", http.StatusUnprocessableEntity, err)
	case errors.Is(err, ErrNotFound):
		return NewAppError("NOT_FOUND", err.Error(), http.StatusNotFound, err)
	case errors.Is(err, ErrConcurrentModification):
		return NewAppError("CONFLICT", "the resource was modified concurrently, please retry", http.StatusConflict, err)
	case errors.Is(err, ErrConflict):
		return NewAppError("CONFLICT", err.Error(), http.StatusConflict, err)
	case errors.Is(err, ErrInvalidInput):
		return NewAppError("VALIDATION_ERROR", err.Error(), http.StatusBadRequest, err)
	default:
		return NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, err)
	}
}

// WriteError renders err using the canonical error shape.
func WriteError(w http.ResponseWriter, err error) {
	if err == nil {
		JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	appErr := ToAppError(err)
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusBadRequest
	}
	code := appErr.Code
	if code == "" {
		code = "BAD_REQUEST"
	}
	JSONError(w, status, code, appErr.Message, appErr.Details)
}
