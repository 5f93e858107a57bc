// -----------------------------------------------------------------------
// Schedule - Recurring trigger definition for per-source scrape runs
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"
)

// Frequency determines how often a schedule recurs.
type Frequency string

const (
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
)

// WeekPattern selects which week-of-month buckets a biweekly schedule
// fires in. Buckets are floor((dayOfMonth-1)/7)+1, giving 1-5; a fifth
// week is treated as odd.
type WeekPattern string

const (
	WeekPatternOdd  WeekPattern = "odd"
	WeekPatternEven WeekPattern = "even"
	WeekPatternNone WeekPattern = ""
)

// ScheduleDays maps dayOfWeek values (0 = Sunday) to names for logging.
var ScheduleDays = []string{
	"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday",
}

// Schedule is a recurring trigger definition. One schedule belongs to one
// source; the source maps to exactly one destination workbook.
type Schedule struct {
	ID          string      `json:"id"`
	SourceName  string      `json:"source_name" validate:"required"`
	DayOfWeek   int         `json:"day_of_week" validate:"min=0,max=6"`
	Hour        int         `json:"hour" validate:"min=0,max=23"`
	Minute      int         `json:"minute" validate:"min=0,max=59"`
	Frequency   Frequency   `json:"frequency" validate:"omitempty,oneof=weekly biweekly"`
	WeekPattern WeekPattern `json:"week_pattern,omitempty" validate:"omitempty,oneof=odd even"`
	Enabled     bool        `json:"enabled"`

	// LastRun is the most recent successful trigger; nil until first run.
	LastRun *time.Time `json:"last_run,omitempty"`
	// NextRun is informational (sort key). Due-checking recomputes from
	// first principles each tick.
	NextRun time.Time `json:"next_run"`

	// Test-mode overrides: narrow a run to a single search with a reduced
	// cooldown for fast iteration.
	TestEnabled     bool   `json:"test_enabled,omitempty"`
	TestSearchURL   string `json:"test_search_url,omitempty" validate:"omitempty,url"`
	TestSearchTitle string `json:"test_search_title,omitempty"`
	TestMaxPages    int    `json:"test_max_pages,omitempty" validate:"min=0,max=1000"`

	// LastExecutionID is a weak back-reference to the most recent
	// ExecutionRecord (lookup only).
	LastExecutionID string `json:"last_execution_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsBiweekly reports whether the schedule uses biweekly semantics.
func (s *Schedule) IsBiweekly() bool {
	return s.Frequency == FrequencyBiweekly
}

// HasValidWeekPattern reports whether the biweekly week pattern is usable.
func (s *Schedule) HasValidWeekPattern() bool {
	return s.WeekPattern == WeekPatternOdd || s.WeekPattern == WeekPatternEven
}

// Description returns a human-readable schedule summary, e.g.
// "Monday at 2:30 AM".
func (s *Schedule) Description() string {
	if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
		return "invalid schedule"
	}
	day := ScheduleDays[s.DayOfWeek]
	hour := s.Hour % 12
	if hour == 0 {
		hour = 12
	}
	ampm := "AM"
	if s.Hour >= 12 {
		ampm = "PM"
	}
	return fmt.Sprintf("%s at %d:%02d %s", day, hour, s.Minute, ampm)
}

// PendingSchedule is a schedule snapshot deferred because an execution was
// already running when it became due. At most one entry exists per schedule
// id; entries are drained oldest-first.
type PendingSchedule struct {
	Schedule
	QueuedAt time.Time `json:"queued_at"`
}
