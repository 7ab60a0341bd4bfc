// Package apperr defines the error kinds a chat turn or startup can fail with.
//
// Startup kinds (initialization, schema) are fatal to the process. Turn kinds
// (generation, composition) abort one turn only. Execution errors never leave
// the executor as a returned error; they are recorded on the query result.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	KindInitialization Kind = "initialization"
	KindSchema         Kind = "schema"
	KindGeneration     Kind = "generation"
	KindExecution      Kind = "execution"
	KindComposition    Kind = "composition"
	// KindInput marks a turn rejected before any stage ran.
	KindInput Kind = "input"
)

// Error wraps an underlying error with its kind and a short user-facing message.
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

func Wrap(kind Kind, msg string, err error) *Error { return &Error{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *Error             { return &Error{Kind: kind, Message: msg} }

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return ""
}

// IsFatal reports whether err must stop the process instead of a single turn.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindInitialization, KindSchema:
		return true
	default:
		return false
	}
}

// UserMessage renders err for display on a user-facing surface.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var target *Error
	if !errors.As(err, &target) {
		return "unexpected error: " + err.Error()
	}
	switch target.Kind {
	case KindInitialization:
		return "Error in initializing the app: " + target.detail()
	case KindSchema:
		return "Error extracting schema: " + target.detail()
	case KindGeneration:
		return "Error in generating SQL command: " + target.detail()
	case KindExecution:
		return "Error executing SQL: " + target.detail()
	case KindComposition:
		return "Error in composing the answer: " + target.detail()
	default:
		return target.detail()
	}
}

func (e *Error) detail() string {
	if e.Err != nil {
		return e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Message
}
