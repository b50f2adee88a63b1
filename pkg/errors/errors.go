// Package errors defines the sentinel errors shared by the corpus, the query
// engine and the HTTP layer. Callers wrap a sentinel with fmt.Errorf("...: %w")
// or, when a client must see a specific message, with an AppError.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrCorpusMissing   = errors.New("corpus index missing")
	ErrInvalidCorpus   = errors.New("invalid corpus index")
	ErrSnapshotCorrupt = errors.New("corpus snapshot corrupt")
	ErrWorkerFailed    = errors.New("scoring worker failed")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInternal        = errors.New("internal error")
	ErrTimeout         = errors.New("operation timed out")
)

// AppError attaches a client-facing message to a sentinel.
type AppError struct {
	Err     error
	Message string
	// StatusCode overrides the status derived from Err when non-zero.
	StatusCode int
}

func (e *AppError) Error() string {
	return e.Err.Error() + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func New(sentinel error, message string) *AppError {
	return &AppError{Err: sentinel, Message: message}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return New(sentinel, fmt.Sprintf(format, args...))
}

// BadRequest is Newf with ErrInvalidInput.
func BadRequest(format string, args ...any) *AppError {
	return Newf(ErrInvalidInput, format, args...)
}

// HTTPStatusCode maps err to the status the search API answers with.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrCorpusMissing):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text a client may see for err. Wrapped causes
// are never exposed; fallback is used for errors without a public form.
func PublicMessage(err error, fallback string) string {
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		return appErr.Message
	case errors.Is(err, ErrTimeout):
		return "search timed out"
	case errors.Is(err, ErrCorpusMissing):
		return "corpus not loaded"
	default:
		return fallback
	}
}
