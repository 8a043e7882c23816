// Package errs defines the tagged error type shared by the gateway and its
// collaborators. The websocket boundary switches on Kind to pick a wire code.
package errs

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindGroupNotFound
	KindMessageNotFound
	KindNotGroupMember
	KindNoAuthToken
	KindInvalidToken
)

// Code returns the code sent to clients for this kind.
func (k Kind) Code() string {
	switch k {
	case KindInvalidInput:
		return "INVALID_INPUT"
	case KindGroupNotFound:
		return "GROUP_NOT_FOUND"
	case KindMessageNotFound:
		return "MESSAGE_NOT_FOUND"
	case KindNotGroupMember:
		return "NOT_GROUP_MEMBER"
	case KindNoAuthToken:
		return "NO_AUTH_TOKEN"
	case KindInvalidToken:
		return "INVALID_TOKEN"
	default:
		return "INTERNAL_ERROR"
	}
}

func (k Kind) String() string { return k.Code() }

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the kind of err. Untagged errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As returns err as a tagged error, wrapping untagged errors as internal.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(KindInternal, "unexpected error", err)
}
