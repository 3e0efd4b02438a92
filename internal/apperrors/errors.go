// Package apperrors defines the error kinds returned by the affiliate ledger
// services. Callers match them with errors.As.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError is returned when a referenced sale, profile, ledger entry or
// adjustment request does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// InvalidStateError is returned when an entity's current state forbids the
// attempted operation.
type InvalidStateError struct {
	Entity string
	ID     string
	Status string
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in status %s", e.Op, e.Entity, e.ID, e.Status)
}

// AuthorizationError is returned when the actor lacks the privilege required
// for an operation.
type AuthorizationError struct {
	ActorID string
	Action  string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("actor %s is not allowed to %s", e.ActorID, e.Action)
}

// InvalidEntryError is returned when a ledger append is rejected outright.
type InvalidEntryError struct {
	Reason string
}

func (e *InvalidEntryError) Error() string {
	return "invalid ledger entry: " + e.Reason
}

// AlreadySettledError is returned when any entry of a settlement set has
// already been settled. No entry of the set was modified.
type AlreadySettledError struct {
	EntryIDs []uint64
}

func (e *AlreadySettledError) Error() string {
	ids := make([]string, len(e.EntryIDs))
	for i, id := range e.EntryIDs {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("ledger entries already settled: [%s]", strings.Join(ids, ","))
}

// AlreadyDecidedError is returned when a decision is attempted on an
// adjustment request that is already APPROVED or REJECTED.
type AlreadyDecidedError struct {
	RequestID string
	Status    string
}

func (e *AlreadyDecidedError) Error() string {
	return fmt.Sprintf("adjustment request %s already %s", e.RequestID, e.Status)
}

// NotFound builds a NotFoundError for the given entity.
func NotFound(entity string, id interface{}) error {
	return &NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
}

// InvalidEntry builds an InvalidEntryError.
func InvalidEntry(format string, args ...interface{}) error {
	return &InvalidEntryError{Reason: fmt.Sprintf(format, args...)}
}

// IsDomain reports whether err is one of the ledger's own error kinds. Domain
// errors are final and must never be retried.
func IsDomain(err error) bool {
	var (
		nf *NotFoundError
		is *InvalidStateError
		az *AuthorizationError
		ie *InvalidEntryError
		as *AlreadySettledError
		ad *AlreadyDecidedError
	)
	return errors.As(err, &nf) || errors.As(err, &is) || errors.As(err, &az) ||
		errors.As(err, &ie) || errors.As(err, &as) || errors.As(err, &ad)
}
