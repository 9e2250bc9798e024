package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"smokeFreeAPI/internal/plan"
)

var ErrPlanNotFound = errors.New("quit plan not found")

type PlanService struct {
	db *pgxpool.Pool
}

func NewPlanService(db *pgxpool.Pool) *PlanService {
	return &PlanService{db: db}
}

const selectPlan = `
	SELECT user_id, start_date, quit_date, initial_daily_amount, reduction_method,
	       cost_per_unit, units_per_pack, updated_at
	FROM quit_plans
	WHERE user_id = $1
	`

func scanPlan(row pgx.Row) (*plan.QuitPlan, error) {
	var p plan.QuitPlan
	err := row.Scan(
		&p.UserID, &p.StartDate, &p.QuitDate, &p.InitialDailyAmount, &p.ReductionMethod,
		&p.CostPerUnit, &p.UnitsPerPack, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPlan returns ErrPlanNotFound when the user has not set up a plan yet.
func (s *PlanService) GetPlan(ctx context.Context, userID uuid.UUID) (*plan.QuitPlan, error) {
	p, err := scanPlan(s.db.QueryRow(ctx, selectPlan, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quit plan: %w", err)
	}
	return p, nil
}

// UpdatePlan merges u over the stored plan and replaces the row. With no
// stored plan, u must describe a complete plan on its own.
func (s *PlanService) UpdatePlan(ctx context.Context, userID uuid.UUID, u plan.PlanUpdate) (*plan.QuitPlan, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanPlan(tx.QueryRow(ctx, selectPlan+" FOR UPDATE", userID))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		current = &plan.QuitPlan{UserID: userID, UnitsPerPack: 20}
	case err != nil:
		return nil, fmt.Errorf("failed to load quit plan: %w", err)
	}

	next, err := current.Merge(u)
	if err != nil {
		return nil, err
	}
	next.StartDate = plan.CivilDay(next.StartDate)
	next.QuitDate = plan.CivilDay(next.QuitDate)

	query := `
	INSERT INTO quit_plans (user_id, start_date, quit_date, initial_daily_amount, reduction_method,
	                        cost_per_unit, units_per_pack, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	ON CONFLICT (user_id) DO UPDATE SET
		start_date = EXCLUDED.start_date,
		quit_date = EXCLUDED.quit_date,
		initial_daily_amount = EXCLUDED.initial_daily_amount,
		reduction_method = EXCLUDED.reduction_method,
		cost_per_unit = EXCLUDED.cost_per_unit,
		units_per_pack = EXCLUDED.units_per_pack,
		updated_at = NOW()
	RETURNING updated_at
	`
	err = tx.QueryRow(ctx, query,
		userID, next.StartDate, next.QuitDate, next.InitialDailyAmount, string(next.ReductionMethod),
		next.CostPerUnit, next.UnitsPerPack,
	).Scan(&next.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save quit plan: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit quit plan: %w", err)
	}
	return &next, nil
}
