package booking

import (
	"errors"
	"fmt"

	"github.com/reboucasericka/Sistema-sub001/internal/model"
)

var (
	// ErrValidation covers malformed input, unknown or inactive references and past dates.
	ErrValidation = errors.New("validation failed")
	// ErrSlotNotAvailable means the requested time is not on the professional's availability grid.
	ErrSlotNotAvailable = errors.New("slot not available")
	// ErrSlotConflict means the interval overlaps a pending or confirmed appointment.
	ErrSlotConflict = errors.New("slot already booked")
	// ErrInvalidStateTransition means the lifecycle forbids the requested status change.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrNotFound means the appointment, professional or service id does not exist.
	ErrNotFound = model.ErrNotFound
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	From model.Status
	To   model.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidStateTransition, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
