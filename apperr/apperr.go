// Package apperr defines the error kinds shared by the store, the remote clients,
// the document renderer and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindRemoteService
	KindTimeout
	KindTemplate
	KindConflict
	KindUnauthorized
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindRemoteService:
		return "remote_service"
	case KindTimeout:
		return "timeout"
	case KindTemplate:
		return "template"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error carries a Kind alongside the operation that failed and a message that
// is safe to show to API callers.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(op, format string, args ...any) error {
	return newf(KindNotFound, op, format, args...)
}

func Validation(op, format string, args ...any) error {
	return newf(KindValidation, op, format, args...)
}

func Conflict(op, format string, args ...any) error {
	return newf(KindConflict, op, format, args...)
}

func Unauthorized(op, format string, args ...any) error {
	return newf(KindUnauthorized, op, format, args...)
}

func Unavailable(op, format string, args ...any) error {
	return newf(KindUnavailable, op, format, args...)
}

func Timeout(op, format string, args ...any) error {
	return newf(KindTimeout, op, format, args...)
}

// Remote wraps a failure reported by (or while talking to) a third-party service.
func Remote(op string, err error, format string, args ...any) error {
	e := newf(KindRemoteService, op, format, args...)
	e.Err = err
	return e
}

// Template wraps a renderer input failure.
func Template(op string, err error, format string, args ...any) error {
	e := newf(KindTemplate, op, format, args...)
	e.Err = err
	return e
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the caller-facing message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal server error"
}

// HTTPStatus maps an error to the response code the API uses for it.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindRemoteService:
		return http.StatusBadGateway
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
