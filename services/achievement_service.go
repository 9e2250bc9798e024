package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"smokeFreeAPI/internal/achievement"
)

type AchievementService struct {
	db *pgxpool.Pool
}

func NewAchievementService(db *pgxpool.Pool) *AchievementService {
	return &AchievementService{db: db}
}

func (s *AchievementService) ListEarned(ctx context.Context, userID uuid.UUID) ([]achievement.Achievement, error) {
	rows, err := s.db.Query(ctx, `
	SELECT id, user_id, category, key, value, earned_at
	FROM user_achievements
	WHERE user_id = $1
	ORDER BY earned_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	defer rows.Close()

	earned := []achievement.Achievement{}
	for rows.Next() {
		var a achievement.Achievement
		if err := rows.Scan(&a.ID, &a.UserID, &a.Category, &a.Key, &a.Value, &a.EarnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		if def, ok := achievement.Lookup(a.Key); ok {
			a.Title = def.Title
			a.Description = def.Description
		}
		earned = append(earned, a)
	}
	return earned, rows.Err()
}

// Award inserts defs for userID and returns only the ones that were not
// already earned. The (user_id, key) unique constraint makes concurrent
// awards of the same key collapse into one row.
func (s *AchievementService) Award(ctx context.Context, userID uuid.UUID, defs []achievement.Definition) ([]achievement.Definition, error) {
	inserted := []achievement.Definition{}
	if len(defs) == 0 {
		return inserted, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
	INSERT INTO user_achievements (user_id, key, category, value)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (user_id, key) DO NOTHING
	RETURNING id
	`
	for _, def := range defs {
		var id uuid.UUID
		err := tx.QueryRow(ctx, query, userID, def.Key, string(def.Category), def.Value).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to award %s: %w", def.Key, err)
		}
		inserted = append(inserted, def)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit achievements: %w", err)
	}
	for _, def := range inserted {
		achievementsAwarded.WithLabelValues(string(def.Category)).Inc()
	}
	return inserted, nil
}

// WithStatus merges the catalog with what the user has earned, in catalog order.
func WithStatus(earned []achievement.Achievement) []achievement.AchievementWithStatus {
	at := make(map[string]achievement.Achievement, len(earned))
	for _, a := range earned {
		at[a.Key] = a
	}

	out := make([]achievement.AchievementWithStatus, 0, len(achievement.Catalog))
	for _, def := range achievement.Catalog {
		item := achievement.AchievementWithStatus{Definition: def}
		if a, ok := at[def.Key]; ok {
			earnedAt := a.EarnedAt
			item.Unlocked = true
			item.UnlockedAt = &earnedAt
		}
		out = append(out, item)
	}
	return out
}
