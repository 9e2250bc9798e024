// Package settings holds the per-user preferences the evaluator consumes
// but does not own.
package settings

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"smokeFreeAPI/internal/evaluator"
)

const (
	DefaultTriggerThreshold = 3
	DefaultDonationPerUnit  = 1.00
	DefaultTimezone         = "UTC"
)

var ErrInvalidSettings = errors.New("invalid settings")

type Settings struct {
	UserID            uuid.UUID  `json:"userId"`
	TriggerThreshold  int        `json:"triggerThreshold"`
	DonationPerUnit   float64    `json:"donationPerUnit"`
	CharityName       string     `json:"charityName"`
	Timezone          string     `json:"timezone"`
	PunishmentEnabled bool       `json:"punishmentEnabled"`
	PushEnabled       bool       `json:"pushEnabled"`
	DismissedUntil    *time.Time `json:"dismissedUntil,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type Update struct {
	TriggerThreshold  *int     `json:"triggerThreshold,omitempty"`
	DonationPerUnit   *float64 `json:"donationPerUnit,omitempty"`
	CharityName       *string  `json:"charityName,omitempty"`
	Timezone          *string  `json:"timezone,omitempty"`
	PunishmentEnabled *bool    `json:"punishmentEnabled,omitempty"`
	PushEnabled       *bool    `json:"pushEnabled,omitempty"`
}

func Defaults(userID uuid.UUID) Settings {
	return Settings{
		UserID:            userID,
		TriggerThreshold:  DefaultTriggerThreshold,
		DonationPerUnit:   DefaultDonationPerUnit,
		Timezone:          DefaultTimezone,
		PunishmentEnabled: true,
		PushEnabled:       true,
	}
}

func (s Settings) Validate() error {
	if s.TriggerThreshold < 1 {
		return fmt.Errorf("%w: trigger threshold must be at least 1", ErrInvalidSettings)
	}
	if s.DonationPerUnit < 0 {
		return fmt.Errorf("%w: donation per unit cannot be negative", ErrInvalidSettings)
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalidSettings, s.Timezone)
	}
	return nil
}

func (s Settings) Apply(u Update) (Settings, error) {
	if u.TriggerThreshold != nil {
		s.TriggerThreshold = *u.TriggerThreshold
	}
	if u.DonationPerUnit != nil {
		s.DonationPerUnit = *u.DonationPerUnit
	}
	if u.CharityName != nil {
		s.CharityName = *u.CharityName
	}
	if u.Timezone != nil {
		s.Timezone = *u.Timezone
	}
	if u.PunishmentEnabled != nil {
		s.PunishmentEnabled = *u.PunishmentEnabled
	}
	if u.PushEnabled != nil {
		s.PushEnabled = *u.PushEnabled
	}
	return s, s.Validate()
}

// Location falls back to UTC for an unknown zone.
func (s Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s Settings) Punishment() evaluator.PunishmentSettings {
	return evaluator.PunishmentSettings{
		TriggerThreshold: s.TriggerThreshold,
		DonationPerUnit:  s.DonationPerUnit,
		CharityName:      s.CharityName,
		Disabled:         !s.PunishmentEnabled,
	}
}

// EndOfDay is the first instant of the day after now, in loc. A dismissed
// prompt stays hidden until then.
func EndOfDay(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}
