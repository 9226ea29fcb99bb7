// Package sdkerr defines the common error taxonomy shared by every SDK
// subsystem. Provider and service failures are caught at their boundary and
// re-raised as one of these kinds, preserving the original error for
// errors.Is/errors.As chains.
package sdkerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the failing subsystem.
type Kind string

const (
	KindSdk        Kind = "sdk"
	KindAdapter    Kind = "adapter"
	KindLLM        Kind = "llm"
	KindRateLimit  Kind = "rate_limit"
	KindEmbedding  Kind = "embedding"
	KindVectorDB   Kind = "vector_db"
	KindIndexing   Kind = "indexing"
	KindX2Text     Kind = "x2text"
	KindExtractor  Kind = "extractor"
	KindOCR        Kind = "ocr"
	KindStorage    Kind = "file_storage"
	KindFileOp     Kind = "file_operation"
)

// Error is the single error type of the taxonomy.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind) + " error"
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, StatusCode: defaultStatus(kind)}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap wraps a cause into a taxonomy error. A nil cause yields a plain error.
func Wrap(kind Kind, message string, err error) *Error {
	e := New(kind, message)
	e.Err = err
	// Inherit the status code of a wrapped taxonomy error unless already typed.
	var inner *Error
	if errors.As(err, &inner) && inner.StatusCode != 0 {
		e.StatusCode = ResolveStatus(inner.StatusCode)
	}
	return e
}

// WithStatus sets the HTTP-ish status code, applying the 500-to-502
// translation so client-side 500s never leak upstream failures verbatim.
func (e *Error) WithStatus(code int) *Error {
	e.StatusCode = ResolveStatus(code)
	return e
}

// ResolveStatus maps an upstream status onto the one the SDK surfaces.
// An upstream 500 becomes 502; everything else passes through.
func ResolveStatus(code int) int {
	if code == http.StatusInternalServerError {
		return http.StatusBadGateway
	}
	return code
}

func defaultStatus(kind Kind) int {
	if kind == KindRateLimit {
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// IsKind reports whether err (or anything it wraps) is a taxonomy error of
// the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Kind == kind {
			return true
		}
		if e.Err == nil {
			break
		}
		err = e.Err
	}
	return false
}

// AsError extracts the outermost taxonomy error, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
