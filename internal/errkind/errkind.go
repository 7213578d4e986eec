// Package errkind classifies failures so callers can branch on the kind of error
// instead of matching message strings.
package errkind

import (
	"errors"
	"fmt"
)

// Kind identifies the class of a failure.
type Kind uint8

const (
	// Unknown is returned by KindOf for errors that carry no kind.
	Unknown Kind = iota
	// Validation marks malformed user input. The caller re-prompts.
	Validation
	// Permission marks a missing capability.
	Permission
	// Transport marks a messenger delivery or lookup failure.
	Transport
	// Persistence marks a store failure.
	Persistence
	// Conflict marks a uniqueness collision or a lost state race.
	Conflict
	// NotFound marks a missing entity.
	NotFound
	// Forbidden marks an operation that is never allowed, whoever asks.
	Forbidden
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Permission:
		return "permission"
	case Transport:
		return "transport"
	case Persistence:
		return "persistence"
	case Conflict:
		return "conflict"
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Error is a classified error.
type Error struct {
	Kind Kind
	Op   string // Operation that failed, e.g. "store.create_content".
	Msg  string // Message safe to show to the user; may be empty.
	Err  error  // Underlying cause.
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New returns a classified error without a cause.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrapf classifies err with a user-facing message.
func Wrapf(kind Kind, op string, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) && classified != nil {
		return classified.Kind
	}
	return Unknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the user-facing message of a classified error, or fallback.
func Message(err error, fallback string) string {
	var classified *Error
	if errors.As(err, &classified) && classified != nil && classified.Msg != "" {
		return classified.Msg
	}
	return fallback
}
