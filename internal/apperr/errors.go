// Package apperr defines the stable error kinds surfaced by the training
// workflows. Callers match kinds with Is or KindOf rather than by message.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure.
type Kind string

const (
	KindNotFound              Kind = "not_found"
	KindDuplicateRegistration Kind = "duplicate_registration"
	KindInvalidCode           Kind = "invalid_code"
	KindBadgeDecode           Kind = "badge_decode"
	KindEntryNotFound         Kind = "entry_not_found"
	KindCodeNotSent           Kind = "code_not_sent"
	KindCodeConflict          Kind = "code_conflict"
	KindConfiguration         Kind = "configuration"
	KindInfrastructure        Kind = "infrastructure"
)

// Error is a classified application error.
type Error struct {
	Kind     Kind
	Resource string // what was missing, for KindNotFound
	Title    string // training title, for KindDuplicateRegistration
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound reports a missing training, member, registration or similar.
func NotFound(resource string) error {
	return &Error{Kind: KindNotFound, Resource: resource, Msg: resource + " not found"}
}

// DuplicateRegistration reports that the member is already registered in the training.
func DuplicateRegistration(title string) error {
	return &Error{Kind: KindDuplicateRegistration, Title: title, Msg: fmt.Sprintf("already registered in %s", title)}
}

// InvalidCode reports a wrong completion code. The message never carries the expected value.
func InvalidCode() error {
	return &Error{Kind: KindInvalidCode, Msg: "invalid completion code"}
}

// BadgeDecode reports a badge ledger that could not be decoded.
func BadgeDecode(err error) error {
	return &Error{Kind: KindBadgeDecode, Msg: "decode badge ledger", Err: err}
}

// EntryNotFound reports a missing badge ledger entry.
func EntryNotFound(msg string) error {
	return &Error{Kind: KindEntryNotFound, Msg: msg}
}

// CodeNotSent reports a code that has not been delivered to the member yet.
func CodeNotSent() error {
	return &Error{Kind: KindCodeNotSent, Msg: "code has not been sent yet"}
}

// CodeConflict reports a lost race on the registration code uniqueness constraint.
func CodeConflict(err error) error {
	return &Error{Kind: KindCodeConflict, Msg: "registration code collision", Err: err}
}

// Configuration reports invalid input data that generation cannot recover from.
func Configuration(msg string) error {
	return &Error{Kind: KindConfiguration, Msg: msg}
}

// Infrastructure wraps a datastore or transport failure.
func Infrastructure(op string, err error) error {
	return &Error{Kind: KindInfrastructure, Msg: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInfrastructure
// for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// Message returns the user-facing message of a classified error.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInfrastructure {
		if e.Msg != "" {
			return e.Msg
		}
		return string(e.Kind)
	}
	return "internal server error"
}
