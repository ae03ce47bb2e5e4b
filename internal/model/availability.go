package model

import (
	"fmt"
	"sort"
	"time"
)

// AvailabilityRule is one recurring weekly working window of a professional.
// A day may have zero, one, or several rules and they may overlap.
type AvailabilityRule struct {
	ID             int64        `json:"id"`
	ProfessionalID int64        `json:"professional_id"`
	DayOfWeek      time.Weekday `json:"day_of_week"`
	StartTime      Clock        `json:"start_time"`
	EndTime        Clock        `json:"end_time"`
}

// Validate rejects windows that are empty, inverted, or outside a day.
func (r AvailabilityRule) Validate() error {
	if r.ProfessionalID <= 0 {
		return fmt.Errorf("professional id must be positive")
	}
	if r.DayOfWeek < time.Sunday || r.DayOfWeek > time.Saturday {
		return fmt.Errorf("invalid day of week %d", r.DayOfWeek)
	}
	if !r.StartTime.Valid() || r.EndTime < 0 || r.EndTime > minutesPerDay {
		return fmt.Errorf("time of day out of range")
	}
	if r.StartTime >= r.EndTime {
		return fmt.Errorf("start time %s must be before end time %s", r.StartTime, r.EndTime)
	}
	return nil
}

// ISOWeekday maps time.Weekday to 1=Monday .. 7=Sunday as stored and configured.
func ISOWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

// WeekdayFromISO is the inverse of ISOWeekday.
func WeekdayFromISO(day int) (time.Weekday, error) {
	if day < 1 || day > 7 {
		return 0, fmt.Errorf("day must be 1..7, got %d", day)
	}
	if day == 7 {
		return time.Sunday, nil
	}
	return time.Weekday(day), nil
}

// Windows merges the rule windows of one day into disjoint ascending spans.
func Windows(rules []AvailabilityRule) [][2]Clock {
	if len(rules) == 0 {
		return nil
	}
	spans := make([][2]Clock, 0, len(rules))
	for _, r := range rules {
		spans = append(spans, [2]Clock{r.StartTime, r.EndTime})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })

	merged := [][2]Clock{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s[0] <= last[1] {
			if s[1] > last[1] {
				last[1] = s[1]
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// Covers reports whether the union of rules contains [start, end) without gaps.
func Covers(rules []AvailabilityRule, start, end Clock) bool {
	for _, w := range Windows(rules) {
		if start >= w[0] && end <= w[1] {
			return true
		}
	}
	return false
}
