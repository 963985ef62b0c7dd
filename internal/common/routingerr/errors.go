// Package routingerr is the error taxonomy shared by the routing features.
//
// Structural kinds (Configuration, InvalidTransition, Validation, NotFound,
// Conflict, Authorization) abort an operation before anything is written.
// NoEligibleMembers is raised after a transfer commits and is a flag, not a failure.
package routingerr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

type Kind string

const (
	KindConfiguration     Kind = "configuration"
	KindInvalidTransition Kind = "invalid_transition"
	KindAuthorization     Kind = "authorization"
	KindNoEligibleMembers Kind = "no_eligible_members"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindValidation        Kind = "validation"
)

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrConfiguration     = &Error{Kind: KindConfiguration}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrAuthorization     = &Error{Kind: KindAuthorization}
	ErrNoEligibleMembers = &Error{Kind: KindNoEligibleMembers}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrValidation        = &Error{Kind: KindValidation}
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so callers can test against the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func Configuration(op, format string, args ...any) *Error {
	return newf(KindConfiguration, op, format, args...)
}

func InvalidTransition(op, format string, args ...any) *Error {
	return newf(KindInvalidTransition, op, format, args...)
}

func Authorization(op, format string, args ...any) *Error {
	return newf(KindAuthorization, op, format, args...)
}

func NoEligibleMembers(op, format string, args ...any) *Error {
	return newf(KindNoEligibleMembers, op, format, args...)
}

func NotFound(op, format string, args ...any) *Error {
	return newf(KindNotFound, op, format, args...)
}

func Conflict(op, format string, args ...any) *Error {
	return newf(KindConflict, op, format, args...)
}

func Validation(op, format string, args ...any) *Error {
	return newf(KindValidation, op, format, args...)
}

// Wrap attaches kind and op to a lower-level error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps an error to the status code controllers respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindConfiguration:
		return fiber.StatusInternalServerError
	case KindInvalidTransition:
		return fiber.StatusUnprocessableEntity
	case KindAuthorization:
		return fiber.StatusForbidden
	case KindNoEligibleMembers:
		return fiber.StatusOK
	case KindNotFound:
		return fiber.StatusNotFound
	case KindConflict:
		return fiber.StatusConflict
	case KindValidation:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// Respond writes err the way every controller in the service does.
func Respond(c *fiber.Ctx, err error) error {
	return c.Status(HTTPStatus(err)).JSON(fiber.Map{
		"error": err.Error(),
		"kind":  KindOf(err),
	})
}
