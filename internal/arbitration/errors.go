package arbitration

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for the arbitration package.
//
//	if errors.Is(err, arbitration.ErrLockConflict) {
//	    // at least one requested command is already locked
//	}
var (
	// ErrLockConflict is returned when a requested command is covered by a live lock.
	ErrLockConflict = errors.New("arbitration: lock conflict")

	// ErrLockNotFound is returned when a lock ID does not exist or has been reclaimed.
	ErrLockNotFound = errors.New("arbitration: lock not found")

	// ErrInvalidRequest is returned when a select or block request is malformed.
	ErrInvalidRequest = errors.New("arbitration: invalid request")

	// ErrUnknownCommand is returned when a command ID is not in the catalog.
	ErrUnknownCommand = errors.New("arbitration: unknown command")
)

// ConflictError describes which commands were already locked, and by which
// locks. It matches ErrLockConflict with errors.Is.
type ConflictError struct {
	CommandIDs []string
	LockIDs    []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: commands [%s] held by [%s]",
		ErrLockConflict, strings.Join(e.CommandIDs, ", "), strings.Join(e.LockIDs, ", "))
}

// Unwrap lets errors.Is match ErrLockConflict.
func (e *ConflictError) Unwrap() error {
	return ErrLockConflict
}
