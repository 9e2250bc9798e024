package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"smokeFreeAPI/internal/settings"
)

type SettingsService struct {
	db *pgxpool.Pool
}

func NewSettingsService(db *pgxpool.Pool) *SettingsService {
	return &SettingsService{db: db}
}

// GetSettings returns the defaults when the user never saved any.
func (s *SettingsService) GetSettings(ctx context.Context, userID uuid.UUID) (*settings.Settings, error) {
	return s.get(ctx, s.db, userID, "")
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *SettingsService) get(ctx context.Context, q querier, userID uuid.UUID, suffix string) (*settings.Settings, error) {
	query := `
	SELECT user_id, trigger_threshold, donation_per_unit, charity_name, timezone,
	       punishment_enabled, push_enabled, dismissed_until, updated_at
	FROM user_settings
	WHERE user_id = $1
	` + suffix

	var st settings.Settings
	err := q.QueryRow(ctx, query, userID).Scan(
		&st.UserID, &st.TriggerThreshold, &st.DonationPerUnit, &st.CharityName, &st.Timezone,
		&st.PunishmentEnabled, &st.PushEnabled, &st.DismissedUntil, &st.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		d := settings.Defaults(userID)
		return &d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return &st, nil
}

func (s *SettingsService) UpdateSettings(ctx context.Context, userID uuid.UUID, u settings.Update) (*settings.Settings, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.get(ctx, tx, userID, "FOR UPDATE")
	if err != nil {
		return nil, err
	}
	next, err := current.Apply(u)
	if err != nil {
		return nil, err
	}

	if err := s.save(ctx, tx, &next); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit settings: %w", err)
	}
	return &next, nil
}

// DismissPunishment hides today's prompt until the end of the user's local day.
func (s *SettingsService) DismissPunishment(ctx context.Context, userID uuid.UUID, now time.Time) (time.Time, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.get(ctx, tx, userID, "FOR UPDATE")
	if err != nil {
		return time.Time{}, err
	}
	until := settings.EndOfDay(now, current.Location())
	current.DismissedUntil = &until

	if err := s.save(ctx, tx, current); err != nil {
		return time.Time{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return time.Time{}, fmt.Errorf("failed to commit dismissal: %w", err)
	}
	return until, nil
}

func (s *SettingsService) save(ctx context.Context, tx pgx.Tx, st *settings.Settings) error {
	query := `
	INSERT INTO user_settings (user_id, trigger_threshold, donation_per_unit, charity_name, timezone,
	                           punishment_enabled, push_enabled, dismissed_until, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	ON CONFLICT (user_id) DO UPDATE SET
		trigger_threshold = EXCLUDED.trigger_threshold,
		donation_per_unit = EXCLUDED.donation_per_unit,
		charity_name = EXCLUDED.charity_name,
		timezone = EXCLUDED.timezone,
		punishment_enabled = EXCLUDED.punishment_enabled,
		push_enabled = EXCLUDED.push_enabled,
		dismissed_until = EXCLUDED.dismissed_until,
		updated_at = NOW()
	RETURNING updated_at
	`
	err := tx.QueryRow(ctx, query,
		st.UserID, st.TriggerThreshold, st.DonationPerUnit, st.CharityName, st.Timezone,
		st.PunishmentEnabled, st.PushEnabled, st.DismissedUntil,
	).Scan(&st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
