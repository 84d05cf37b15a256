// Package errx is the HTTP-facing error taxonomy shared by every component
// that can reject a request.
package errx

import (
	"errors"
	"net/http"
)

// StatusCoder is implemented by errors that know which HTTP status they map to.
type StatusCoder interface {
	StatusCode() int
}

// Error is a client-visible failure. Message is safe to return to callers,
// Err is kept for logs only.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error   { return e.Err }
func (e *Error) StatusCode() int { return e.Status }

func newError(status int, msg, fallback string) *Error {
	if msg == "" {
		msg = fallback
	}
	return &Error{Status: status, Message: msg}
}

func BadRequest(msg string) *Error {
	return newError(http.StatusBadRequest, msg, "Bad Request")
}

func Unauthorized(msg string) *Error {
	return newError(http.StatusUnauthorized, msg, "Unauthorized")
}

func Forbidden(msg string) *Error {
	return newError(http.StatusForbidden, msg, "Forbidden")
}

func NotFound(msg string) *Error {
	return newError(http.StatusNotFound, msg, "Not Found")
}

func TooManyRequests(msg string) *Error {
	return newError(http.StatusTooManyRequests, msg, "Too Many Requests")
}

// Wrap attaches an underlying cause without changing what the client sees.
func (e *Error) Wrap(err error) *Error {
	return &Error{Status: e.Status, Message: e.Message, Err: err}
}

// Status resolves the HTTP status for err. Anything outside the taxonomy is a 500.
func Status(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}

// Message returns the client-visible message for err. Unmapped errors never
// leak their text.
func Message(err error) string {
	var sc StatusCoder
	if !errors.As(err, &sc) {
		return http.StatusText(http.StatusInternalServerError)
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if s, ok := sc.(interface{ PublicMessage() string }); ok {
		return s.PublicMessage()
	}
	return http.StatusText(sc.StatusCode())
}
