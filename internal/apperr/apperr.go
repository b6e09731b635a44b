// Package apperr holds the closed set of failure kinds the gateway reports to callers.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindPromptTooLarge     Kind = "prompt_too_large"
	KindModelUnavailable   Kind = "model_unavailable"
	KindModelError         Kind = "model_error"
	KindStorageError       Kind = "storage_error"
	KindNotFound           Kind = "not_found"
	KindInvalidFeedback    Kind = "invalid_feedback"
	KindFeedbackAlreadySet Kind = "feedback_already_set"
	KindUnauthorized       Kind = "unauthorized"
	KindInternal           Kind = "internal"
)

// Error is a classified failure. Op names the operation that failed and Err keeps the cause
// for logs; only Kind and the message of the outermost Error are shown to callers.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
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

// E builds a classified error.
func E(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the caller-safe message of the first *Error in err's chain.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return "internal error"
}
