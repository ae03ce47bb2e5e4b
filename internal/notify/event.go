// Package notify mirrors appointment changes to external systems without
// ever delaying or failing the booking that caused them.
package notify

import (
	"errors"
	"fmt"
	"time"

	"github.com/reboucasericka/Sistema-sub001/internal/model"
)

// Kind is the type of appointment change being announced.
type Kind string

const (
	KindCreated  Kind = "created"
	KindUpdated  Kind = "updated"
	KindCanceled Kind = "canceled"
	KindDeleted  Kind = "deleted"
)

// Event is one queued notification.
type Event struct {
	Kind        Kind              `json:"kind"`
	Appointment model.Appointment `json:"appointment"`
	At          time.Time         `json:"at"`
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a delivery error that retrying cannot fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// RetryAfterError asks the dispatcher to wait at least Delay before the next attempt.
type RetryAfterError struct {
	Delay time.Duration
	Err   error
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %s: %v", e.Delay, e.Err)
}

func (e *RetryAfterError) Unwrap() error { return e.Err }
