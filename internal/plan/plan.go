package plan

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ReductionMethod string

const (
	MethodGradual    ReductionMethod = "gradual"
	MethodColdTurkey ReductionMethod = "cold_turkey"
)

// QuitPlan is replaced as a whole on update, never patched in place.
type QuitPlan struct {
	UserID             uuid.UUID       `json:"userId" db:"user_id"`
	StartDate          time.Time       `json:"startDate" db:"start_date"`
	QuitDate           time.Time       `json:"quitDate" db:"quit_date"`
	InitialDailyAmount int             `json:"initialDailyAmount" db:"initial_daily_amount"`
	ReductionMethod    ReductionMethod `json:"reductionMethod" db:"reduction_method"`
	// CostPerUnit is the price of one purchasable pack.
	CostPerUnit  float64   `json:"costPerUnit" db:"cost_per_unit"`
	UnitsPerPack int       `json:"unitsPerPack" db:"units_per_pack"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// PlanUpdate carries the fields a client wants to change. Nil fields keep
// the current value.
type PlanUpdate struct {
	StartDate          *time.Time       `json:"startDate,omitempty"`
	QuitDate           *time.Time       `json:"quitDate,omitempty"`
	InitialDailyAmount *int             `json:"initialDailyAmount,omitempty"`
	ReductionMethod    *ReductionMethod `json:"reductionMethod,omitempty"`
	CostPerUnit        *float64         `json:"costPerUnit,omitempty"`
	UnitsPerPack       *int             `json:"unitsPerPack,omitempty"`
}

// InvalidPlanError reports a malformed or logically inconsistent plan.
type InvalidPlanError struct {
	Reason string
}

func (e *InvalidPlanError) Error() string {
	return fmt.Sprintf("invalid plan: %s", e.Reason)
}

func invalid(format string, args ...any) error {
	return &InvalidPlanError{Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the invariants the scheduler relies on.
func (p QuitPlan) Validate() error {
	if p.StartDate.IsZero() {
		return invalid("start date is required")
	}
	if p.QuitDate.IsZero() {
		return invalid("quit date is required")
	}
	if !civilDay(p.QuitDate).After(civilDay(p.StartDate)) {
		return invalid("quit date %s must be after start date %s",
			p.QuitDate.Format(time.DateOnly), p.StartDate.Format(time.DateOnly))
	}
	if p.InitialDailyAmount < 0 {
		return invalid("initial daily amount must not be negative, got %d", p.InitialDailyAmount)
	}
	switch p.ReductionMethod {
	case MethodGradual, MethodColdTurkey:
	default:
		return invalid("unknown reduction method %q", p.ReductionMethod)
	}
	if p.CostPerUnit < 0 {
		return invalid("cost per unit must not be negative")
	}
	if p.UnitsPerPack < 0 {
		return invalid("units per pack must not be negative")
	}
	return nil
}

// Merge applies an update on top of p and returns the replacement plan.
// The result is validated before it is returned.
func (p QuitPlan) Merge(u PlanUpdate) (QuitPlan, error) {
	next := p
	if u.StartDate != nil {
		next.StartDate = *u.StartDate
	}
	if u.QuitDate != nil {
		next.QuitDate = *u.QuitDate
	}
	if u.InitialDailyAmount != nil {
		next.InitialDailyAmount = *u.InitialDailyAmount
	}
	if u.ReductionMethod != nil {
		next.ReductionMethod = *u.ReductionMethod
	}
	if u.CostPerUnit != nil {
		next.CostPerUnit = *u.CostPerUnit
	}
	if u.UnitsPerPack != nil {
		next.UnitsPerPack = *u.UnitsPerPack
	}
	if err := next.Validate(); err != nil {
		return QuitPlan{}, err
	}
	return next, nil
}
