// Package errors defines the error kinds shared by the services and the
// HTTP layer, each with a stable code and status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels identify an error's kind through errors.Is, however deeply it
// is wrapped.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternal       = errors.New("internal error")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
)

type kind struct {
	sentinel error
	code     string
	status   int
}

// kinds is ordered by precedence for HTTPStatus.
var kinds = []kind{
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound},
	{ErrConflict, "CONFLICT", http.StatusConflict},
	{ErrInvalidInput, "INVALID_INPUT", http.StatusBadRequest},
	{ErrUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized},
	{ErrForbidden, "FORBIDDEN", http.StatusForbidden},
	{ErrServiceUnavail, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable},
	{ErrInternal, "INTERNAL_ERROR", http.StatusInternalServerError},
}

// AppError is an error with a machine code, a message safe to show the
// user, and the HTTP status it maps to.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// newError builds an AppError of the kind named by sentinel. cause, when
// set, is wrapped next to the sentinel.
func newError(sentinel error, message string, cause error) *AppError {
	k := kinds[len(kinds)-1]
	for _, candidate := range kinds {
		if candidate.sentinel == sentinel {
			k = candidate
			break
		}
	}
	err := sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %w", sentinel, cause)
	}
	return &AppError{Code: k.code, Message: message, Status: k.status, Err: err}
}

// NotFound reports a missing resource, e.g. NotFound("business", id).
func NotFound(resource, id string) *AppError {
	return newError(ErrNotFound, fmt.Sprintf("%s with id %s not found", resource, id), nil)
}

// Conflict reports a request that clashes with stored state.
func Conflict(message string) *AppError {
	return newError(ErrConflict, message, nil)
}

// InvalidInput reports a request that failed validation.
func InvalidInput(message string) *AppError {
	return newError(ErrInvalidInput, message, nil)
}

// Unauthorized reports missing or rejected credentials.
func Unauthorized(message string) *AppError {
	return newError(ErrUnauthorized, message, nil)
}

// ServiceUnavailable reports an unreachable or failing dependency. The
// cause is kept for logging and errors.Is.
func ServiceUnavailable(message string, cause error) *AppError {
	return newError(ErrServiceUnavail, message, cause)
}

// As returns the outermost AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HTTPStatus returns the status for err: the AppError status when there is
// one, else the status of the first matching sentinel, else 500.
func HTTPStatus(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.Status
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// IsNotFound reports whether err is, or wraps, a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
