package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts standard 5-field expressions (minute hour dom month dow)
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a 5-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// lookback windows tried in order when searching for the previous trigger.
// The widest covers yearly schedules ("0 0 1 1 *").
var prevTriggerWindows = []time.Duration{
	time.Minute,
	time.Hour,
	24 * time.Hour,
	31 * 24 * time.Hour,
	366 * 24 * time.Hour,
}

// PrevTrigger computes the most recent trigger time strictly before now.
// The cron library only exposes Next, so the previous trigger is found by
// walking Next forward from an expanding look-back window and keeping the
// last value before now. Returns false when no trigger exists within a year.
func PrevTrigger(sched cron.Schedule, now time.Time) (time.Time, bool) {
	for _, window := range prevTriggerWindows {
		t := now.Add(-window)
		var prev time.Time
		found := false
		for {
			next := sched.Next(t)
			if next.IsZero() || !next.Before(now) {
				break
			}
			prev = next
			found = true
			t = next
		}
		if found {
			return prev, true
		}
	}
	return time.Time{}, false
}

// PrevTriggerExpr is PrevTrigger for a raw expression
func PrevTriggerExpr(expr string, now time.Time) (time.Time, bool, error) {
	sched, err := ParseCron(expr)
	if err != nil {
		return time.Time{}, false, err
	}
	prev, ok := PrevTrigger(sched, now)
	return prev, ok, nil
}
