// -----------------------------------------------------------------------
// Due-time computation - weekly and biweekly next-run math plus the
// tick-time due-now check
// -----------------------------------------------------------------------

package scheduler

import (
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/models"
)

const (
	// Due window around the scheduled minute, tolerating tick jitter in
	// both directions. Asymmetric on purpose; the cooldown assumes a
	// schedule fires at most once per window.
	dueWindowBefore = 5 * time.Minute
	dueWindowAfter  = 10 * time.Minute

	// Cooldown since lastRun before a schedule may fire again.
	normalCooldown = 23 * time.Hour
	testCooldown   = 15 * time.Minute

	// Biweekly forward scan horizon. Two full months always contain a
	// matching parity week, so hitting this limit indicates a bug.
	biweeklyScanDays = 62
)

// weekOfMonth returns the 1-based week-of-month bucket: days 1-7 are
// bucket 1, 8-14 bucket 2, and so on.
func weekOfMonth(t time.Time) int {
	return (t.Day()-1)/7 + 1
}

// weekParityMatches reports whether t's week-of-month bucket matches the
// pattern. Bucket 5 is treated as odd.
func weekParityMatches(t time.Time, pattern models.WeekPattern) bool {
	bucket := weekOfMonth(t)
	odd := bucket%2 == 1
	switch pattern {
	case models.WeekPatternOdd:
		return odd
	case models.WeekPatternEven:
		return !odd
	default:
		return false
	}
}

// ComputeNextRun returns the schedule's next occurrence strictly derived
// from now. It never returns a zero time: an unusable biweekly pattern
// degrades to weekly with a warning.
func ComputeNextRun(schedule *models.Schedule, now time.Time, logger arbor.ILogger) time.Time {
	if schedule.IsBiweekly() {
		if !schedule.HasValidWeekPattern() {
			logger.Warn().
				Str("schedule_id", schedule.ID).
				Str("week_pattern", string(schedule.WeekPattern)).
				Msg("Biweekly schedule has no usable week pattern, falling back to weekly")
			return nextWeeklyRun(schedule, now)
		}
		return nextBiweeklyRun(schedule, now, logger)
	}
	return nextWeeklyRun(schedule, now)
}

// nextWeeklyRun finds the next occurrence of dayOfWeek at hour:minute.
// When today is the target day but the scheduled minute has already
// passed, the run rolls a full week forward.
func nextWeeklyRun(schedule *models.Schedule, now time.Time) time.Time {
	daysUntil := schedule.DayOfWeek - int(now.Weekday())
	if daysUntil < 0 {
		daysUntil += 7
	}
	if daysUntil == 0 && minuteOfDay(now) >= schedule.Hour*60+schedule.Minute {
		daysUntil = 7
	}

	target := now.AddDate(0, 0, daysUntil)
	return time.Date(target.Year(), target.Month(), target.Day(),
		schedule.Hour, schedule.Minute, 0, 0, now.Location())
}

// nextBiweeklyRun scans forward day-by-day for the first date matching
// both the weekday and the week-of-month parity.
func nextBiweeklyRun(schedule *models.Schedule, now time.Time, logger arbor.ILogger) time.Time {
	// Start today if the scheduled time hasn't passed yet, else tomorrow.
	start := now
	if minuteOfDay(now) >= schedule.Hour*60+schedule.Minute {
		start = now.AddDate(0, 0, 1)
	}

	for offset := 0; offset < biweeklyScanDays; offset++ {
		candidate := start.AddDate(0, 0, offset)
		if int(candidate.Weekday()) != schedule.DayOfWeek {
			continue
		}
		if !weekParityMatches(candidate, schedule.WeekPattern) {
			continue
		}
		return time.Date(candidate.Year(), candidate.Month(), candidate.Day(),
			schedule.Hour, schedule.Minute, 0, 0, now.Location())
	}

	logger.Warn().
		Str("schedule_id", schedule.ID).
		Str("week_pattern", string(schedule.WeekPattern)).
		Msg("No biweekly occurrence found in scan horizon, falling back to weekly")
	return nextWeeklyRun(schedule, now)
}

// IsDueNow reports whether the schedule should fire at this tick: right
// day, right week parity for biweekly, current time inside the due window
// around the scheduled minute, and cooldown elapsed since lastRun.
func IsDueNow(schedule *models.Schedule, now time.Time, logger arbor.ILogger) bool {
	if !schedule.Enabled {
		return false
	}
	if int(now.Weekday()) != schedule.DayOfWeek {
		return false
	}

	if schedule.IsBiweekly() {
		if !schedule.HasValidWeekPattern() {
			logger.Warn().
				Str("schedule_id", schedule.ID).
				Str("source", schedule.SourceName).
				Msg("Skipping biweekly schedule with invalid week pattern")
			return false
		}
		if !weekParityMatches(now, schedule.WeekPattern) {
			return false
		}
	}

	scheduled := time.Date(now.Year(), now.Month(), now.Day(),
		schedule.Hour, schedule.Minute, 0, 0, now.Location())
	if now.Before(scheduled.Add(-dueWindowBefore)) || !now.Before(scheduled.Add(dueWindowAfter)) {
		return false
	}

	if schedule.LastRun != nil {
		cooldown := normalCooldown
		if schedule.TestEnabled {
			cooldown = testCooldown
		}
		if now.Sub(*schedule.LastRun) < cooldown {
			return false
		}
	}

	return true
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
