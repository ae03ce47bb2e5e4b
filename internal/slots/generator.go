// Package slots expands weekly availability rules into a day's bookable start times.
package slots

import (
	"fmt"
	"sort"
	"time"

	"github.com/reboucasericka/Sistema-sub001/internal/model"
)

// DefaultGranularity is the spacing between consecutive slot start times.
const DefaultGranularity = 30 * time.Minute

// SlotInfo is a listed slot as served over HTTP.
type SlotInfo struct {
	Start model.Clock `json:"start"`
	End   model.Clock `json:"end"`
}

// Generate returns the ordered, de-duplicated start times produced by rules.
// Each rule contributes every step t from its start with t+granularity <= end;
// a rule shorter than the granularity contributes nothing.
func Generate(rules []model.AvailabilityRule, granularity time.Duration) ([]model.Clock, error) {
	if granularity <= 0 || granularity%time.Minute != 0 {
		return nil, fmt.Errorf("granularity must be a positive whole number of minutes, got %s", granularity)
	}
	step := model.Clock(granularity / time.Minute)

	seen := make(map[model.Clock]struct{})
	var out []model.Clock
	for _, r := range rules {
		for cursor := r.StartTime; cursor+step <= r.EndTime; cursor += step {
			if _, ok := seen[cursor]; ok {
				continue
			}
			seen[cursor] = struct{}{}
			out = append(out, cursor)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Contains reports whether c is one of the sorted template slots.
func Contains(template []model.Clock, c model.Clock) bool {
	i := sort.Search(len(template), func(i int) bool { return template[i] >= c })
	return i < len(template) && template[i] == c
}

// Fitting keeps the slots whose [slot, slot+span) lies inside the union of rules.
func Fitting(template []model.Clock, rules []model.AvailabilityRule, span time.Duration) []model.Clock {
	out := make([]model.Clock, 0, len(template))
	for _, c := range template {
		if model.Covers(rules, c, c.Add(span)) {
			out = append(out, c)
		}
	}
	return out
}

// NotBefore drops the slots of date that start before now.
func NotBefore(template []model.Clock, date, now time.Time) []model.Clock {
	out := make([]model.Clock, 0, len(template))
	for _, c := range template {
		if !c.On(date).Before(now) {
			out = append(out, c)
		}
	}
	return out
}

// ToSlotInfo converts start times to presentation slots of the given span.
func ToSlotInfo(starts []model.Clock, span time.Duration) []SlotInfo {
	result := make([]SlotInfo, len(starts))
	for i, c := range starts {
		result[i] = SlotInfo{Start: c, End: c.Add(span)}
	}
	return result
}
