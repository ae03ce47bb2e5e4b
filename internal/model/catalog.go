package model

import "time"

// Professional is the read model of a staff member who can be booked.
type Professional struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Service is the read model of a bookable service.
type Service struct {
	ID       int64         `json:"id"`
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Active   bool          `json:"active"`
}

// Catalog is the configured set of professionals, services and weekly rules
// applied to a store on startup and reload.
type Catalog struct {
	Professionals []Professional
	Services      []Service
	Rules         map[int64][]AvailabilityRule
}
