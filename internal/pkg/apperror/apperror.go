package apperror

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Kind classifies failures of the access-control subsystem.
type Kind string

const (
	KindInvalidSignature           Kind = "invalid_signature"
	KindMalformedEvent             Kind = "malformed_event"
	KindUnknownSubscription        Kind = "unknown_subscription"
	KindInvalidTransition          Kind = "invalid_transition"
	KindNotFound                   Kind = "not_found"
	KindTransientDependencyFailure Kind = "transient_dependency_failure"
)

var (
	ErrInvalidSignature           = errors.New("invalid signature")
	ErrMalformedEvent             = errors.New("malformed event")
	ErrUnknownSubscription        = errors.New("unknown subscription")
	ErrInvalidTransition          = errors.New("invalid transition")
	ErrNotFound                   = errors.New("not found")
	ErrTransientDependencyFailure = errors.New("transient dependency failure")
)

var sentinels = map[Kind]error{
	KindInvalidSignature:           ErrInvalidSignature,
	KindMalformedEvent:             ErrMalformedEvent,
	KindUnknownSubscription:        ErrUnknownSubscription,
	KindInvalidTransition:          ErrInvalidTransition,
	KindNotFound:                   ErrNotFound,
	KindTransientDependencyFailure: ErrTransientDependencyFailure,
}

// Error carries a Kind plus the operation that produced it. errors.Is matches
// both the wrapped cause and the sentinel of its Kind.
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
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps an error to the status code returned by the HTTP layer.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidSignature, KindMalformedEvent:
		return fiber.StatusBadRequest
	case KindNotFound:
		return fiber.StatusNotFound
	case KindInvalidTransition:
		return fiber.StatusConflict
	case KindUnknownSubscription:
		return fiber.StatusOK
	case KindTransientDependencyFailure:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// PublicMessage is the message safe to expose to API callers.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		return string(e.Kind)
	}
	return "internal error"
}
