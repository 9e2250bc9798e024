package achievement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryStreak    Category = "streak"
	CategorySavings   Category = "savings"
	CategoryReduction Category = "reduction"
	CategoryMilestone Category = "milestone"
)

// Milestone conditions are named one-off facts about a user's history.
const (
	MilestoneFirstLog       = "first_log"
	MilestoneFirstJournal   = "first_journal"
	MilestoneQuitDayReached = "quit_day_reached"
)

// Definition describes an achievement that can be earned. Value is the
// threshold it represents: days for streaks, currency for savings, percent
// for reductions. Milestones carry no threshold.
type Definition struct {
	Category    Category `json:"category"`
	Key         string   `json:"key"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Value       float64  `json:"value"`
	Icon        string   `json:"icon"`
}

// Achievement is an earned record. At most one exists per (UserID, Key).
type Achievement struct {
	ID          uuid.UUID `json:"id" db:"id"`
	UserID      uuid.UUID `json:"userId" db:"user_id"`
	Category    Category  `json:"category" db:"category"`
	Key         string    `json:"key" db:"key"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Value       float64   `json:"value" db:"value"`
	EarnedAt    time.Time `json:"earnedAt" db:"earned_at"`
}

type AchievementWithStatus struct {
	Definition
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlockedAt,omitempty"`
}

var (
	streakDays       = []int{1, 3, 7, 14, 30, 60, 90, 180, 365}
	savingsAmounts   = []int{10, 25, 50, 100, 250, 500, 1000}
	reductionPercent = []int{10, 25, 50, 75, 90, 100}
)

// Catalog is every achievement a user can earn, in display order.
var Catalog = buildCatalog()

func buildCatalog() []Definition {
	defs := []Definition{
		{Category: CategoryMilestone, Key: MilestoneFirstLog, Title: "Honest Start", Description: "Logged your first cigarette. Tracking is the first step.", Icon: "notebook"},
		{Category: CategoryMilestone, Key: MilestoneFirstJournal, Title: "Dear Diary", Description: "Wrote your first journal entry.", Icon: "pen"},
		{Category: CategoryMilestone, Key: MilestoneQuitDayReached, Title: "Quit Day", Description: "Reached the quit date of your plan.", Icon: "flag"},
	}
	for _, d := range streakDays {
		defs = append(defs, Definition{
			Category:    CategoryStreak,
			Key:         fmt.Sprintf("streak_%d", d),
			Title:       fmt.Sprintf("%d Day Streak", d),
			Description: fmt.Sprintf("Stayed smoke-free for %d days in a row.", d),
			Value:       float64(d),
			Icon:        "flame",
		})
	}
	for _, a := range savingsAmounts {
		defs = append(defs, Definition{
			Category:    CategorySavings,
			Key:         fmt.Sprintf("savings_%d", a),
			Title:       fmt.Sprintf("Saved %d", a),
			Description: fmt.Sprintf("Saved %d by not buying cigarettes.", a),
			Value:       float64(a),
			Icon:        "piggy-bank",
		})
	}
	for _, p := range reductionPercent {
		defs = append(defs, Definition{
			Category:    CategoryReduction,
			Key:         fmt.Sprintf("reduction_%d", p),
			Title:       fmt.Sprintf("%d%% Less", p),
			Description: fmt.Sprintf("Smoked %d%% less than before your plan started.", p),
			Value:       float64(p),
			Icon:        "trending-down",
		})
	}
	return defs
}

// Lookup returns the catalog definition for key.
func Lookup(key string) (Definition, bool) {
	for _, d := range Catalog {
		if d.Key == key {
			return d, true
		}
	}
	return Definition{}, false
}
