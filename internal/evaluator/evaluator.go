// Package evaluator derives progress statistics, newly earned achievements
// and the punishment status from a snapshot of a user's history.
//
// Evaluate is pure: it never touches storage and recomputes everything from
// its Input on each call. Persisting awards idempotently is the caller's job.
package evaluator

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"smokeFreeAPI/internal/achievement"
	"smokeFreeAPI/internal/event"
	"smokeFreeAPI/internal/plan"
)

// savingsTolerance absorbs float noise in cost arithmetic, far below a cent.
const savingsTolerance = 1e-9

// ErrEvaluationSkipped marks a result produced from missing or corrupt input.
var ErrEvaluationSkipped = errors.New("evaluation skipped")

// PunishmentSettings are owned by the user's settings, not by the evaluator.
type PunishmentSettings struct {
	TriggerThreshold int     `json:"triggerThreshold"`
	DonationPerUnit  float64 `json:"donationPerUnit"`
	CharityName      string  `json:"charityName"`
	// Disabled turns the prompt off; overage is still reported.
	Disabled bool `json:"disabled"`
}

type Input struct {
	UserID       uuid.UUID
	Plan         *plan.QuitPlan
	Events       []event.CountEvent
	Earned       map[string]bool
	JournalCount int
	Now          time.Time
	// Location decides where a day starts and ends. Nil means UTC.
	Location   *time.Location
	Punishment PunishmentSettings
	// DismissedUntil suppresses the punishment prompt while Now is before it.
	DismissedUntil *time.Time
}

type Stats struct {
	TotalLogged    int     `json:"totalLogged"`
	ElapsedDays    int     `json:"elapsedDays"`
	ExpectedLogged int     `json:"expectedLogged"`
	TotalAvoided   int     `json:"totalAvoided"`
	MoneySaved     float64 `json:"moneySaved"`
	CurrentStreak  int     `json:"currentStreak"`
	LongestStreak  int     `json:"longestStreak"`
	ReductionRatio float64 `json:"reductionRatio"`
	TodayCount     int     `json:"todayCount"`
	DailyTarget    int     `json:"dailyTarget"`
	DaysOnTarget   int     `json:"daysOnTarget"`
}

type PunishmentStatus struct {
	Triggered      bool    `json:"triggered"`
	Dismissed      bool    `json:"dismissed"`
	Overage        int     `json:"overage"`
	DailyTarget    int     `json:"dailyTarget"`
	DailyCount     int     `json:"dailyCount"`
	DonationAmount float64 `json:"donationAmount"`
	CharityName    string  `json:"charityName"`
	Message        string  `json:"message"`
}

type Result struct {
	Stats           Stats                    `json:"stats"`
	NewAchievements []achievement.Definition `json:"newAchievements"`
	Punishment      PunishmentStatus         `json:"punishment"`
	Skipped         bool                     `json:"skipped"`
	SkipReason      string                   `json:"skipReason,omitempty"`
}

// Err reports ErrEvaluationSkipped with the reason when the result is a no-op.
func (r Result) Err() error {
	if !r.Skipped {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrEvaluationSkipped, r.SkipReason)
}

// Skip builds the no-op result.
func Skip(reason string) Result {
	return Result{
		NewAchievements: []achievement.Definition{},
		Skipped:         true,
		SkipReason:      reason,
	}
}

// Evaluate never panics and never returns an error; bad input yields a
// skipped result with no awards and no punishment.
func Evaluate(in Input) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Skip(fmt.Sprintf("evaluation panicked: %v", r))
		}
	}()

	if reason := checkInput(in); reason != "" {
		return Skip(reason)
	}

	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	now := in.Now.In(loc)
	p := *in.Plan

	hist := aggregate(in.Events, p.StartDate, now)
	stats, err := computeStats(p, hist, now)
	if err != nil {
		return Skip(err.Error())
	}

	return Result{
		Stats:           stats,
		NewAchievements: awards(in, p, hist, stats),
		Punishment:      punishment(in, now, stats),
	}
}

func checkInput(in Input) string {
	if in.Plan == nil {
		return "no quit plan"
	}
	if err := in.Plan.Validate(); err != nil {
		return err.Error()
	}
	if in.Now.IsZero() {
		return "evaluation time is required"
	}
	for i := range in.Events {
		if in.Events[i].Count < 1 || in.Events[i].Timestamp.IsZero() {
			return fmt.Sprintf("corrupt event %s", in.Events[i].ID)
		}
	}
	return ""
}

func computeStats(p plan.QuitPlan, hist history, now time.Time) (Stats, error) {
	target, err := plan.DailyTarget(p, now)
	if err != nil {
		return Stats{}, err
	}

	startLocal := time.Date(p.StartDate.Year(), p.StartDate.Month(), p.StartDate.Day(), 0, 0, 0, 0, now.Location())
	elapsed := int(math.Ceil(now.Sub(startLocal).Hours() / 24))
	if elapsed < 1 {
		elapsed = 1
	}

	s := Stats{
		TotalLogged:   hist.totalSinceStart,
		ElapsedDays:   elapsed,
		TodayCount:    hist.todayCount,
		DailyTarget:   target,
		CurrentStreak: hist.currentStreak(),
		LongestStreak: hist.longestStreak(),
	}
	s.ExpectedLogged = elapsed * p.InitialDailyAmount
	s.TotalAvoided = max(0, s.ExpectedLogged-s.TotalLogged)
	if p.UnitsPerPack > 0 {
		s.MoneySaved = roundCents(float64(s.TotalAvoided) * p.CostPerUnit / float64(p.UnitsPerPack))
	}
	if s.ExpectedLogged > 0 {
		s.ReductionRatio = float64(s.TotalAvoided) / float64(s.ExpectedLogged)
	}

	onTarget, err := hist.daysOnTarget(p)
	if err != nil {
		return Stats{}, err
	}
	s.DaysOnTarget = onTarget
	return s, nil
}

func awards(in Input, p plan.QuitPlan, hist history, s Stats) []achievement.Definition {
	earned := []achievement.Definition{}
	for _, def := range achievement.Catalog {
		if in.Earned[def.Key] {
			continue
		}
		if qualifies(def, in, p, hist, s) {
			earned = append(earned, def)
		}
	}
	return earned
}

func qualifies(def achievement.Definition, in Input, p plan.QuitPlan, hist history, s Stats) bool {
	switch def.Category {
	case achievement.CategoryStreak:
		return float64(s.CurrentStreak) >= def.Value
	case achievement.CategorySavings:
		// MoneySaved is rounded for display; award on the exact amount
		if p.UnitsPerPack <= 0 {
			return false
		}
		saved := float64(s.TotalAvoided) * p.CostPerUnit / float64(p.UnitsPerPack)
		return saved >= def.Value-savingsTolerance
	case achievement.CategoryReduction:
		// avoided/expected >= pct/100, kept in integers
		if s.ExpectedLogged <= 0 {
			return false
		}
		return s.TotalAvoided*100 >= int(def.Value)*s.ExpectedLogged
	case achievement.CategoryMilestone:
		switch def.Key {
		case achievement.MilestoneFirstLog:
			return len(in.Events) > 0
		case achievement.MilestoneFirstJournal:
			return in.JournalCount > 0
		case achievement.MilestoneQuitDayReached:
			return !hist.today.Before(plan.CivilDay(p.QuitDate))
		}
	}
	return false
}

func punishment(in Input, now time.Time, s Stats) PunishmentStatus {
	st := PunishmentStatus{
		DailyTarget: s.DailyTarget,
		DailyCount:  s.TodayCount,
		Overage:     s.TodayCount - s.DailyTarget,
		CharityName: in.Punishment.CharityName,
	}

	threshold := in.Punishment.TriggerThreshold
	if threshold < 1 {
		threshold = 1
	}
	if in.Punishment.Disabled || st.Overage < threshold {
		return st
	}
	if in.DismissedUntil != nil && now.Before(*in.DismissedUntil) {
		st.Dismissed = true
		return st
	}

	st.Triggered = true
	st.DonationAmount = roundCents(float64(st.Overage) * in.Punishment.DonationPerUnit)
	charity := st.CharityName
	if charity == "" {
		charity = "a charity of your choice"
	}
	st.Message = fmt.Sprintf(
		"You smoked %d today, %d over your target of %d. Time to donate %.2f to %s.",
		st.DailyCount, st.Overage, st.DailyTarget, st.DonationAmount, charity,
	)
	return st
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
