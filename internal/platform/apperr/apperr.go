// Package apperr defines the error kinds shared by services and repositories
// and their mapping onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies an error for callers that need to branch on it.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindAuth            Kind = "auth"
	KindForbidden       Kind = "forbidden"
	KindConflict        Kind = "conflict"
	KindAlreadyAnswered Kind = "already_answered"
	KindPersistence     Kind = "persistence"
)

// Sentinels for errors.Is. Any *Error matches the sentinel of its kind.
var (
	ErrValidation      = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound        = &Error{Kind: KindNotFound, Message: "not found"}
	ErrAuth            = &Error{Kind: KindAuth, Message: "unauthorized"}
	ErrForbidden       = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrConflict        = &Error{Kind: KindConflict, Message: "conflict"}
	ErrAlreadyAnswered = &Error{Kind: KindAlreadyAnswered, Message: "message already answered"}
	ErrPersistence     = &Error{Kind: KindPersistence, Message: "internal server error"}
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so errors.Is(err, ErrNotFound) holds for every not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Auth always carries the same message; callers must not learn why a
// credential was refused.
func Auth(err error) error {
	return &Error{Kind: KindAuth, Message: "unauthorized", Err: err}
}

func Forbidden(msg string) error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func Conflict(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

func AlreadyAnswered(msg string) error {
	return &Error{Kind: KindAlreadyAnswered, Message: msg}
}

func Persistence(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindPersistence, Message: "internal server error", Err: err}
}

// KindOf returns the kind of err, or KindPersistence for foreign errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindPersistence
}

var statusByKind = map[Kind]int{
	KindValidation:      http.StatusBadRequest,
	KindConflict:        http.StatusBadRequest,
	KindNotFound:        http.StatusNotFound,
	KindAuth:            http.StatusUnauthorized,
	KindForbidden:       http.StatusForbidden,
	KindAlreadyAnswered: http.StatusConflict,
	KindPersistence:     http.StatusInternalServerError,
}

// Status returns the HTTP status code for err.
func Status(err error) int {
	if s, ok := statusByKind[KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// HTTP converts err into an *echo.HTTPError. Persistence failures never
// expose the underlying driver error.
func HTTP(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	status := Status(err)
	msg := "internal server error"
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != KindPersistence {
		msg = ae.Message
	}
	return echo.NewHTTPError(status, msg).SetInternal(err)
}
