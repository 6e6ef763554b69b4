package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a recoverable workflow failure.
type Kind string

const (
	KindNotAuthorized          Kind = "not_authorized"
	KindWrongOrganization      Kind = "wrong_organization"
	KindNotOwner               Kind = "not_owner"
	KindInvalidStateTransition Kind = "invalid_state_transition"
	KindValidationFailed       Kind = "validation_failed"
	KindOrganizationInactive   Kind = "organization_inactive"
	KindNotFound               Kind = "not_found"
	KindConflict               Kind = "conflict"
)

// ReasonEntityClosed qualifies invalid_state_transition on a terminal record.
const ReasonEntityClosed = "entity_closed"

// Error is returned for every caller-recoverable workflow failure.
type Error struct {
	Kind   Kind
	Op     string
	Entity string
	ID     string
	Reason string
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Entity != "" {
		msg += fmt.Sprintf(" (%s %s)", e.Entity, e.ID)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is matches another *Error by Kind so callers can use errors.Is with a
// bare &Error{Kind: ...} target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Op == "" && t.Entity == ""
}

func NewError(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// KindOf returns the Kind carried by err, or "" for store and other fatal errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Denied reports whether err is one of the authorization kinds.
func Denied(err error) bool {
	switch KindOf(err) {
	case KindNotAuthorized, KindWrongOrganization, KindNotOwner:
		return true
	}
	return false
}
