package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"smokeFreeAPI/internal/achievement"
	"smokeFreeAPI/internal/evaluator"
	"smokeFreeAPI/internal/event"
	"smokeFreeAPI/internal/logger"
	"smokeFreeAPI/internal/plan"
	"smokeFreeAPI/internal/settings"
)

// Evaluation triggers, used as a metrics label.
const (
	TriggerEvent    = "event"
	TriggerOnDemand = "on_demand"
)

type planReader interface {
	GetPlan(ctx context.Context, userID uuid.UUID) (*plan.QuitPlan, error)
}

type settingsReader interface {
	GetSettings(ctx context.Context, userID uuid.UUID) (*settings.Settings, error)
}

type eventReader interface {
	ListCountEvents(ctx context.Context, userID uuid.UUID, since *time.Time) ([]event.CountEvent, error)
	CountJournalEntries(ctx context.Context, userID uuid.UUID) (int, error)
}

type achievementStore interface {
	ListEarned(ctx context.Context, userID uuid.UUID) ([]achievement.Achievement, error)
	Award(ctx context.Context, userID uuid.UUID, defs []achievement.Definition) ([]achievement.Definition, error)
}

// Notifier is told about achievements that were just persisted and about
// punishment prompts. dayStart is the start of the user's local day.
type Notifier interface {
	NotifyAchievements(ctx context.Context, userID uuid.UUID, defs []achievement.Definition) error
	NotifyPunishment(ctx context.Context, userID uuid.UUID, p evaluator.PunishmentStatus, dayStart time.Time) error
}

// ProgressService loads a user's history, runs the evaluator and persists
// what it awarded. It never returns an error: any failure is logged and
// becomes a skipped result.
type ProgressService struct {
	plans        planReader
	settings     settingsReader
	events       eventReader
	achievements achievementStore
	notifier     Notifier
	now          func() time.Time
}

func NewProgressService(plans planReader, st settingsReader, events eventReader, achievements achievementStore, notifier Notifier) *ProgressService {
	return &ProgressService{
		plans:        plans,
		settings:     st,
		events:       events,
		achievements: achievements,
		notifier:     notifier,
		now:          time.Now,
	}
}

func (s *ProgressService) skip(userID uuid.UUID, trigger, reason string, err error) evaluator.Result {
	if err != nil {
		logger.Error("Evaluation skipped", "user", userID, "trigger", trigger, "reason", reason, "err", err)
	}
	evaluatorRuns.WithLabelValues(trigger, "skipped").Inc()
	return evaluator.Skip(reason)
}

func (s *ProgressService) Evaluate(ctx context.Context, userID uuid.UUID, trigger string) evaluator.Result {
	p, err := s.plans.GetPlan(ctx, userID)
	if errors.Is(err, ErrPlanNotFound) {
		return s.skip(userID, trigger, "no quit plan", nil)
	}
	if err != nil {
		return s.skip(userID, trigger, "plan unavailable", err)
	}

	st, err := s.settings.GetSettings(ctx, userID)
	if err != nil {
		return s.skip(userID, trigger, "settings unavailable", err)
	}
	events, err := s.events.ListCountEvents(ctx, userID, nil)
	if err != nil {
		return s.skip(userID, trigger, "events unavailable", err)
	}
	journalCount, err := s.events.CountJournalEntries(ctx, userID)
	if err != nil {
		return s.skip(userID, trigger, "journal unavailable", err)
	}
	earnedList, err := s.achievements.ListEarned(ctx, userID)
	if err != nil {
		return s.skip(userID, trigger, "achievements unavailable", err)
	}
	earned := make(map[string]bool, len(earnedList))
	for _, a := range earnedList {
		earned[a.Key] = true
	}

	now := s.now()
	loc := st.Location()
	res := evaluator.Evaluate(evaluator.Input{
		UserID:         userID,
		Plan:           p,
		Events:         events,
		Earned:         earned,
		JournalCount:   journalCount,
		Now:            now,
		Location:       loc,
		Punishment:     st.Punishment(),
		DismissedUntil: st.DismissedUntil,
	})
	if res.Skipped {
		logger.Warn("Evaluation skipped", "user", userID, "reason", res.SkipReason)
		evaluatorRuns.WithLabelValues(trigger, "skipped").Inc()
		return res
	}

	inserted, err := s.achievements.Award(ctx, userID, res.NewAchievements)
	if err != nil {
		logger.Error("Failed to persist achievements", "user", userID, "err", err)
		inserted = []achievement.Definition{}
	}
	res.NewAchievements = inserted
	evaluatorRuns.WithLabelValues(trigger, "ok").Inc()

	if s.notifier == nil {
		return res
	}
	if len(inserted) > 0 {
		if err := s.notifier.NotifyAchievements(ctx, userID, inserted); err != nil {
			logger.Error("Failed to notify achievements", "user", userID, "err", err)
		}
	}
	if res.Punishment.Triggered {
		punishmentsTriggered.Inc()
		local := now.In(loc)
		dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		if err := s.notifier.NotifyPunishment(ctx, userID, res.Punishment, dayStart); err != nil {
			logger.Error("Failed to notify punishment", "user", userID, "err", err)
		}
	}
	return res
}

// Achievements lists the catalog with the user's earned status.
func (s *ProgressService) Achievements(ctx context.Context, userID uuid.UUID) ([]achievement.AchievementWithStatus, error) {
	earned, err := s.achievements.ListEarned(ctx, userID)
	if err != nil {
		return nil, err
	}
	return WithStatus(earned), nil
}
