package evaluator

import (
	"time"

	"smokeFreeAPI/internal/event"
	"smokeFreeAPI/internal/plan"
)

// history is the per-day aggregation of a user's events, built once per
// evaluation so streak walks never rescan the event list.
type history struct {
	perDay          map[time.Time]int
	start           time.Time
	today           time.Time
	totalSinceStart int
	todayCount      int
}

func aggregate(events []event.CountEvent, startDate time.Time, now time.Time) history {
	h := history{
		perDay: make(map[time.Time]int),
		start:  plan.CivilDay(startDate),
		today:  plan.CivilDay(now),
	}
	for _, e := range events {
		day := plan.CivilDay(e.Timestamp.In(now.Location()))
		if day.After(h.today) {
			continue
		}
		if day.Equal(h.today) {
			h.todayCount += e.Count
		}
		if day.Before(h.start) {
			continue
		}
		h.perDay[day] += e.Count
		h.totalSinceStart += e.Count
	}
	return h
}

// currentStreak counts trailing zero days ending today, never reaching
// before the plan start. Any count logged today means no streak.
func (h history) currentStreak() int {
	if h.today.Before(h.start) || h.perDay[h.today] > 0 {
		return 0
	}
	streak := 0
	for day := h.today; !day.Before(h.start); day = day.AddDate(0, 0, -1) {
		if h.perDay[day] > 0 {
			break
		}
		streak++
	}
	return streak
}

func (h history) longestStreak() int {
	longest, run := 0, 0
	for day := h.start; !day.After(h.today); day = day.AddDate(0, 0, 1) {
		if h.perDay[day] > 0 {
			run = 0
			continue
		}
		run++
		if run > longest {
			longest = run
		}
	}
	return longest
}

func (h history) daysOnTarget(p plan.QuitPlan) (int, error) {
	n := 0
	for day := h.start; !day.After(h.today); day = day.AddDate(0, 0, 1) {
		target, err := plan.DailyTarget(p, day)
		if err != nil {
			return 0, err
		}
		if h.perDay[day] <= target {
			n++
		}
	}
	return n, nil
}
