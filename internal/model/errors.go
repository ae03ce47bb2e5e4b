package model

import "errors"

// Storage-level outcomes shared by every store implementation.
var (
	ErrNotFound    = errors.New("not found")
	ErrOverlap     = errors.New("interval overlaps an active appointment")
	ErrStaleStatus = errors.New("appointment status changed concurrently")
)
