package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/abhisek/retain/internal/spacedrep"
)

// ErrIncompatibleProtocol is returned when the authority speaks a different
// major protocol version.
var ErrIncompatibleProtocol = errors.New("remote: incompatible protocol version")

// UnavailableError indicates the authority could not be reached or did not
// answer in time. It is transient.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote authority unavailable: %v", e.Err)
	}
	return "remote authority unavailable"
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// ConflictError indicates the authority holds a newer copy of the entity
// than the one the local change was based on. Exactly one of Schedule and
// Session is set, carrying the authority's copy.
type ConflictError struct {
	EntityKey string
	Schedule  *spacedrep.ScheduleState
	Session   *SessionSnapshot
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("remote conflict on %s", e.EntityKey)
}

// RejectedError indicates the authority refused the record outright.
// Retrying the same record cannot succeed.
type RejectedError struct {
	Reason string
	Err    error
}

func (e *RejectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote rejected record: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("remote rejected record: %s", e.Reason)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// IsTransient reports whether err may succeed on retry. Conflicts and
// rejections are not transient; anything unclassified is.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return false
	}
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return false
	}
	if errors.Is(err, ErrIncompatibleProtocol) {
		return false
	}
	return true
}
