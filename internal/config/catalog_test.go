package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reboucasericka/Sistema-sub001/internal/model"
)

const sampleCatalog = `
professionals:
  - id: 1
    name: Ana
    is_active: true
    schedule:
      - days: [1, 2, 3, 4, 5]
        start_time: "09:00"
        end_time: "12:00"
      - days: [1]
        start_time: "14:00"
        end_time: "18:00"
  - id: 2
    name: Bruno
    is_active: true
services:
  - id: 10
    name: Corte
    duration_minutes: 60
    is_active: true
  - id: 11
    name: Barba
    duration_minutes: 30
    is_active: false
defaults:
  schedule:
    - days: [6, 7]
      start_time: "08:00"
      end_time: "10:00"
`

func TestLoadCatalog(t *testing.T) {
	cfg, err := LoadCatalog(writeFile(t, "catalog.yaml", sampleCatalog))
	require.NoError(t, err)

	assert.Len(t, cfg.Professionals, 2)
	assert.Equal(t, cfg.Defaults.Schedule, cfg.Professionals[1].Schedule)
	assert.Equal(t, "CatalogConfig: 2 professionals (2 active), 2 services", cfg.String())

	m := cfg.ToModel()
	require.Len(t, m.Rules[1], 6)
	assert.Equal(t, time.Monday, m.Rules[1][0].DayOfWeek)
	assert.Equal(t, model.MustParseClock("14:00"), m.Rules[1][5].StartTime)

	require.Len(t, m.Rules[2], 2)
	assert.Equal(t, time.Saturday, m.Rules[2][0].DayOfWeek)
	assert.Equal(t, time.Sunday, m.Rules[2][1].DayOfWeek)

	require.Len(t, m.Services, 2)
	assert.Equal(t, time.Hour, m.Services[0].Duration)
	assert.False(t, m.Services[1].Active)

	for _, rules := range m.Rules {
		for _, r := range rules {
			assert.NoError(t, r.Validate())
		}
	}
}

func TestCatalogValidate(t *testing.T) {
	window := WindowConfig{Days: []int{1}, StartTime: "09:00", EndTime: "12:00"}
	valid := func() CatalogConfig {
		return CatalogConfig{
			Professionals: []ProfessionalConfig{{ID: 1, Name: "Ana", Schedule: []WindowConfig{window}}},
			Services:      []ServiceConfig{{ID: 1, Name: "Corte", DurationMinutes: 30}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *CatalogConfig)
		wantErr string
	}{
		{"valid", func(c *CatalogConfig) {}, ""},
		{"no professionals", func(c *CatalogConfig) { c.Professionals = nil }, "no professionals"},
		{"bad id", func(c *CatalogConfig) { c.Professionals[0].ID = 0 }, "professional[0]: id must be positive"},
		{"duplicate id", func(c *CatalogConfig) {
			c.Professionals = append(c.Professionals, ProfessionalConfig{ID: 1, Name: "Other"})
		}, "professional[1]: duplicate id 1"},
		{"missing name", func(c *CatalogConfig) { c.Professionals[0].Name = "" }, "name is required"},
		{"end before start", func(c *CatalogConfig) {
			c.Professionals[0].Schedule[0] = WindowConfig{Days: []int{1}, StartTime: "12:00", EndTime: "12:00"}
		}, "professional[0].schedule[0]: end_time must be after start_time"},
		{"bad day", func(c *CatalogConfig) {
			c.Professionals[0].Schedule[0] = WindowConfig{Days: []int{8}, StartTime: "09:00", EndTime: "12:00"}
		}, "invalid day 8"},
		{"bad time", func(c *CatalogConfig) {
			c.Professionals[0].Schedule[0] = WindowConfig{Days: []int{1}, StartTime: "9am", EndTime: "12:00"}
		}, "start_time: invalid format"},
		{"zero duration", func(c *CatalogConfig) { c.Services[0].DurationMinutes = 0 }, "duration_minutes must be positive"},
		{"bad default", func(c *CatalogConfig) {
			c.Defaults.Schedule = []WindowConfig{{StartTime: "09:00", EndTime: "10:00"}}
		}, "defaults.schedule[0].days is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			c.Professionals[0].Schedule = []WindowConfig{window}
			tt.mutate(&c)

			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
