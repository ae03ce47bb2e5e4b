package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/reboucasericka/Sistema-sub001/internal/model"
)

// WindowConfig is a weekly working window shared by one or more days.
type WindowConfig struct {
	Days      []int  `yaml:"days"`       // 1=Mon, 7=Sun
	StartTime string `yaml:"start_time"` // "09:00"
	EndTime   string `yaml:"end_time"`   // "12:00"
}

// ProfessionalConfig represents a bookable professional.
type ProfessionalConfig struct {
	ID       int64          `yaml:"id"`
	Name     string         `yaml:"name"`
	IsActive bool           `yaml:"is_active"`
	Schedule []WindowConfig `yaml:"schedule,omitempty"`
}

// ServiceConfig represents a bookable service.
type ServiceConfig struct {
	ID              int64  `yaml:"id"`
	Name            string `yaml:"name"`
	DurationMinutes int    `yaml:"duration_minutes"`
	IsActive        bool   `yaml:"is_active"`
}

// CatalogDefaults applies to professionals without an explicit schedule.
type CatalogDefaults struct {
	Schedule []WindowConfig `yaml:"schedule"`
}

// CatalogConfig is the root of catalog.yaml.
type CatalogConfig struct {
	Professionals []ProfessionalConfig `yaml:"professionals"`
	Services      []ServiceConfig      `yaml:"services"`
	Defaults      CatalogDefaults      `yaml:"defaults"`
}

// LoadCatalog loads and validates the catalog from a YAML file.
func LoadCatalog(path string) (*CatalogConfig, error) {
	if path == "" {
		path = "configs/catalog.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var cfg CatalogConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Validate checks the catalog for errors.
func (c *CatalogConfig) Validate() error {
	if len(c.Professionals) == 0 {
		return fmt.Errorf("no professionals defined")
	}

	ids := make(map[int64]bool)
	for i, p := range c.Professionals {
		if p.ID <= 0 {
			return fmt.Errorf("professional[%d]: id must be positive, got %d", i, p.ID)
		}
		if ids[p.ID] {
			return fmt.Errorf("professional[%d]: duplicate id %d", i, p.ID)
		}
		ids[p.ID] = true

		if p.Name == "" {
			return fmt.Errorf("professional[%d]: name is required", i)
		}
		for j, w := range p.Schedule {
			if err := validateWindow(w, fmt.Sprintf("professional[%d].schedule[%d]", i, j)); err != nil {
				return err
			}
		}
	}

	serviceIDs := make(map[int64]bool)
	for i, s := range c.Services {
		if s.ID <= 0 {
			return fmt.Errorf("service[%d]: id must be positive, got %d", i, s.ID)
		}
		if serviceIDs[s.ID] {
			return fmt.Errorf("service[%d]: duplicate id %d", i, s.ID)
		}
		serviceIDs[s.ID] = true

		if s.Name == "" {
			return fmt.Errorf("service[%d]: name is required", i)
		}
		if s.DurationMinutes <= 0 {
			return fmt.Errorf("service[%d]: duration_minutes must be positive", i)
		}
	}

	for j, w := range c.Defaults.Schedule {
		if err := validateWindow(w, fmt.Sprintf("defaults.schedule[%d]", j)); err != nil {
			return err
		}
	}
	return nil
}

func validateWindow(w WindowConfig, prefix string) error {
	if len(w.Days) == 0 {
		return fmt.Errorf("%s.days is required", prefix)
	}
	for i, d := range w.Days {
		if d < 1 || d > 7 {
			return fmt.Errorf("%s.days[%d]: invalid day %d, must be 1-7 (1=Mon, 7=Sun)", prefix, i, d)
		}
	}

	start, err := model.ParseClock(w.StartTime)
	if err != nil {
		return fmt.Errorf("%s.start_time: invalid format '%s', expected HH:MM", prefix, w.StartTime)
	}
	end, err := model.ParseClock(w.EndTime)
	if err != nil {
		return fmt.Errorf("%s.end_time: invalid format '%s', expected HH:MM", prefix, w.EndTime)
	}
	if end <= start {
		return fmt.Errorf("%s: end_time must be after start_time", prefix)
	}
	return nil
}

func (c *CatalogConfig) applyDefaults() {
	for i := range c.Professionals {
		if len(c.Professionals[i].Schedule) == 0 {
			c.Professionals[i].Schedule = c.Defaults.Schedule
		}
	}
}

// ToModel converts a validated catalog into store input.
func (c *CatalogConfig) ToModel() model.Catalog {
	out := model.Catalog{Rules: make(map[int64][]model.AvailabilityRule, len(c.Professionals))}

	for _, p := range c.Professionals {
		out.Professionals = append(out.Professionals, model.Professional{ID: p.ID, Name: p.Name, Active: p.IsActive})

		var rules []model.AvailabilityRule
		for _, w := range p.Schedule {
			start := model.MustParseClock(w.StartTime)
			end := model.MustParseClock(w.EndTime)
			for _, d := range w.Days {
				wd, _ := model.WeekdayFromISO(d)
				rules = append(rules, model.AvailabilityRule{
					ProfessionalID: p.ID,
					DayOfWeek:      wd,
					StartTime:      start,
					EndTime:        end,
				})
			}
		}
		out.Rules[p.ID] = rules
	}

	for _, s := range c.Services {
		out.Services = append(out.Services, model.Service{
			ID:       s.ID,
			Name:     s.Name,
			Duration: time.Duration(s.DurationMinutes) * time.Minute,
			Active:   s.IsActive,
		})
	}
	return out
}

// String returns a summary of the catalog.
func (c *CatalogConfig) String() string {
	active := 0
	for _, p := range c.Professionals {
		if p.IsActive {
			active++
		}
	}
	return fmt.Sprintf("CatalogConfig: %d professionals (%d active), %d services",
		len(c.Professionals), active, len(c.Services))
}
