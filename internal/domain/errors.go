package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateRotation = errors.New("a rotation already starts on that day")
	ErrRotationOrder     = errors.New("rotation must start after the latest rotation")
	ErrUnauthorized      = errors.New("submitter is not allowed to perform this action")
	ErrUnknownSubmitter  = errors.New("unknown submitter")
	ErrRotationNotFound  = errors.New("rotation not found")
	ErrParkNotFound      = errors.New("park not found")
	ErrSpeciesNotFound   = errors.New("species not found")
	ErrParkCycle         = errors.New("duplicate-park chain loops back on itself")
	ErrNoRotations       = errors.New("no rotations exist")
)

// UndoConfirmationError is returned by a rotation undo that would destroy
// manually entered ledger rows and was not confirmed.
type UndoConfirmationError struct {
	Rotation      uint
	ManualEntries int
}

func (e *UndoConfirmationError) Error() string {
	return fmt.Sprintf("undo of rotation %d would delete %d manually entered nests; confirm to proceed",
		e.Rotation, e.ManualEntries)
}
