// Package apperr defines the error kinds every service operation reports.
package apperr

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"gorm.io/gorm"
)

// Kind classifies a failure independent of where it happened.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindInvalidArgument Kind = "invalid_argument"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindUploadFailed    Kind = "upload_failed"
	KindUnavailable     Kind = "unavailable"
)

// Sentinels usable with errors.Is.
var (
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated, Message: "Authentication required"}
	ErrForbidden       = &Error{Kind: KindForbidden, Message: "Forbidden"}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument, Message: "Invalid argument"}
	ErrNotFound        = &Error{Kind: KindNotFound, Message: "Resource not found"}
	ErrConflict        = &Error{Kind: KindConflict, Message: "Conflict"}
	ErrUploadFailed    = &Error{Kind: KindUploadFailed, Message: "Upload failed"}
	ErrUnavailable     = &Error{Kind: KindUnavailable, Message: "Service unavailable"}
)

// Error is a typed failure with a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *Error {
	return newf(KindForbidden, format, args...)
}

func InvalidArgument(format string, args ...any) *Error {
	return newf(KindInvalidArgument, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newf(KindConflict, format, args...)
}

func Unauthenticated(format string, args ...any) *Error {
	return newf(KindUnauthenticated, format, args...)
}

// UploadFailed wraps a media store failure.
func UploadFailed(err error, format string, args ...any) *Error {
	e := newf(KindUploadFailed, format, args...)
	e.Err = err
	return e
}

// Unavailable wraps a storage failure.
func Unavailable(err error, format string, args ...any) *Error {
	e := newf(KindUnavailable, format, args...)
	e.Err = err
	return e
}

// KindOf returns the Kind carried by err, or KindUnavailable for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnavailable
}

// Message returns the human-readable message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Something went wrong"
}

// FromDB classifies a storage error. Errors that are already typed pass through.
func FromDB(err error, msg string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &Error{Kind: KindNotFound, Message: msg, Err: err}
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return &Error{Kind: KindConflict, Message: msg, Err: err}
	}
	return Unavailable(err, "%s", msg)
}

// IsTransient reports whether err is worth retrying: connection loss,
// timeouts and sqlite busy/locked errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == KindUnavailable && e.Err == nil {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") ||
		strings.Contains(s, "SQLITE_BUSY") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "conn closed")
}

func isUniqueViolation(err error) bool {
	s := err.Error()
	return strings.Contains(s, "UNIQUE constraint failed") ||
		strings.Contains(s, "duplicate key value") ||
		strings.Contains(s, "SQLSTATE 23505")
}

// HTTPStatus maps a Kind to the response status the API uses.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUploadFailed:
		return http.StatusBadGateway
	default:
		return http.StatusServiceUnavailable
	}
}
