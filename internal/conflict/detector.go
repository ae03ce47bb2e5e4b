// Package conflict decides which intervals of a professional's day are already taken.
package conflict

import (
	"context"
	"fmt"
	"time"

	"github.com/reboucasericka/Sistema-sub001/internal/model"
)

// Reader loads blocking (pending or confirmed) appointments of a professional
// that intersect [start, end).
type Reader interface {
	FindOverlapping(ctx context.Context, professionalID int64, start, end time.Time) ([]model.Appointment, error)
}

// Detector filters candidate slots and checks single intervals.
type Detector struct {
	reader Reader
}

// NewDetector creates a detector backed by reader.
func NewDetector(reader Reader) *Detector {
	return &Detector{reader: reader}
}

// FilterAvailable removes every candidate whose [slot, slot+span) overlaps a
// blocking appointment on date. date must be local midnight of the day.
func (d *Detector) FilterAvailable(ctx context.Context, professionalID int64, date time.Time, candidates []model.Clock, span time.Duration) ([]model.Clock, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	busy, err := d.reader.FindOverlapping(ctx, professionalID, date, date.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	return Free(candidates, date, span, busy), nil
}

// HasConflict reports whether any blocking appointment intersects [start, end).
func (d *Detector) HasConflict(ctx context.Context, professionalID int64, start, end time.Time) (bool, error) {
	busy, err := d.reader.FindOverlapping(ctx, professionalID, start, end)
	if err != nil {
		return false, fmt.Errorf("load appointments: %w", err)
	}
	return overlapsAny(start, end, busy), nil
}

// Free is the pure form of FilterAvailable over an already loaded busy list.
func Free(candidates []model.Clock, date time.Time, span time.Duration, busy []model.Appointment) []model.Clock {
	out := make([]model.Clock, 0, len(candidates))
	for _, c := range candidates {
		start := c.On(date)
		if !overlapsAny(start, start.Add(span), busy) {
			out = append(out, c)
		}
	}
	return out
}

func overlapsAny(start, end time.Time, busy []model.Appointment) bool {
	for _, b := range busy {
		if !b.Status.Blocking() {
			continue
		}
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}
