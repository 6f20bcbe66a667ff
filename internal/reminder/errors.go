package reminder

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a reminder id does not exist.
	ErrNotFound = errors.New("reminder not found")

	// ErrInvalidTransition is returned when a status change is not allowed
	// from the reminder's current state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStorageUnavailable marks transient backend failures.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError describes bad input to create or update. It never mutates state.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// TransitionError carries the details of a rejected status change.
type TransitionError struct {
	ID   int64
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("reminder %d: cannot move to %s", e.ID, e.To)
	}
	return fmt.Sprintf("reminder %d: cannot move from %s to %s", e.ID, e.From, e.To)
}

// Is makes TransitionError match ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
