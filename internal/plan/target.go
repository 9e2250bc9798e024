package plan

import "time"

// DayTarget is one entry of a rendered schedule.
type DayTarget struct {
	Date   string `json:"date"`
	Target int    `json:"target"`
}

// DailyTarget returns the allowance for the calendar day containing date.
//
// Gradual plans decay linearly from InitialDailyAmount at StartDate to zero
// at QuitDate and round up, so rounding can never raise the allowance above
// the linear line's ceiling. Cold turkey plans hold InitialDailyAmount until
// QuitDate and drop straight to zero.
func DailyTarget(p QuitPlan, date time.Time) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if date.IsZero() {
		return 0, invalid("date is required")
	}

	day := civilDay(date)
	start := civilDay(p.StartDate)
	quit := civilDay(p.QuitDate)

	if !day.Before(quit) {
		return 0, nil
	}
	if p.ReductionMethod == MethodColdTurkey || day.Before(start) {
		return p.InitialDailyAmount, nil
	}

	total := DaysBetween(start, quit)
	remaining := total - DaysBetween(start, day)

	// ceil(initial * remaining / total) without floating point drift.
	target := (p.InitialDailyAmount*remaining + total - 1) / total
	if target < 0 {
		return 0, nil
	}
	return target, nil
}

// Schedule renders the targets for `days` consecutive days starting at from.
func Schedule(p QuitPlan, from time.Time, days int) ([]DayTarget, error) {
	if days < 0 {
		days = 0
	}
	out := make([]DayTarget, 0, days)
	day := civilDay(from)
	for i := 0; i < days; i++ {
		target, err := DailyTarget(p, day)
		if err != nil {
			return nil, err
		}
		out = append(out, DayTarget{Date: day.Format(time.DateOnly), Target: target})
		day = day.AddDate(0, 0, 1)
	}
	return out, nil
}

// CivilDay returns midnight UTC of the calendar day t falls on in its own
// location. Two instants on the same local day map to the same value.
func CivilDay(t time.Time) time.Time {
	return civilDay(t)
}

func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts whole calendar days from a to b. Both must come from
// CivilDay.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
