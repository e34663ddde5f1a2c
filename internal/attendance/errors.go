package attendance

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidName    = errors.New("missing student name")
	ErrAlreadyPresent = errors.New("student already marked present")
	ErrNotPresent     = errors.New("student not found in attendance")
	ErrNotEnrolled    = errors.New("student is not on the roster")
	ErrCorrupt        = errors.New("persisted attendance state is unreadable")
)

// PersistError reports a failed durable write. The mutation that caused it
// has not been applied; callers may retry the whole operation.
type PersistError struct {
	Key string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Key, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// IsPersist reports whether err came from the persistence layer.
func IsPersist(err error) bool {
	var pe *PersistError
	return errors.As(err, &pe)
}
