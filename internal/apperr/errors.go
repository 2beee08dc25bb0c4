// Package apperr defines the error kinds shared by the cins services.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the transport layer can pick a response.
type Kind string

const (
	// KindValidation marks malformed caller input.
	KindValidation Kind = "validation"
	// KindAuth marks missing, malformed or expired credentials.
	KindAuth Kind = "auth"
	// KindConflict marks a uniqueness violation such as a duplicate macro name.
	KindConflict Kind = "conflict"
	// KindInternal marks storage or other unexpected faults.
	KindInternal Kind = "internal"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
)

var kindSentinels = map[Kind]error{
	KindValidation: ErrValidation,
	KindAuth:       ErrUnauthorized,
	KindConflict:   ErrConflict,
	KindInternal:   ErrInternal,
}

// Error carries a kind, a stable code of the form "<package>.<operation>.<reason>"
// and the underlying cause.
type Error struct {
	kind Kind
	code string
	err  error
}

// New builds an Error for the given operation and reason.
func New(kind Kind, operation, reason string, cause error) error {
	return &Error{
		kind: kind,
		code: fmt.Sprintf("%s.%s", operation, reason),
		err:  cause,
	}
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is matches the sentinel for the error's kind, so errors.Is(err, ErrConflict)
// holds for every conflict regardless of cause.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.kind]
	return ok && sentinel == target
}

// Kind returns the failure classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Code returns the stable error code.
func (e *Error) Code() string {
	return e.code
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in the chain, or an empty string.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.code
	}
	return ""
}
