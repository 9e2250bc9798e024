package settings

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	s := Defaults(uuid.New())
	require.NoError(t, s.Validate())
	assert.Equal(t, 3, s.TriggerThreshold)
	assert.InDelta(t, 1.0, s.DonationPerUnit, 0.0001)
	assert.Equal(t, time.UTC, s.Location())
	assert.False(t, s.Punishment().Disabled)
}

func TestApply(t *testing.T) {
	threshold := 5
	charity := "Cancer Research"
	off := false

	s, err := Defaults(uuid.New()).Apply(Update{
		TriggerThreshold:  &threshold,
		CharityName:       &charity,
		PunishmentEnabled: &off,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, s.Punishment().TriggerThreshold)
	assert.Equal(t, "Cancer Research", s.Punishment().CharityName)
	assert.True(t, s.Punishment().Disabled)
}

func TestApplyRejectsBadValues(t *testing.T) {
	zero := 0
	neg := -1.0
	zone := "Mars/Olympus"

	for name, u := range map[string]Update{
		"threshold": {TriggerThreshold: &zero},
		"donation":  {DonationPerUnit: &neg},
		"timezone":  {Timezone: &zone},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Defaults(uuid.New()).Apply(u)
			assert.True(t, errors.Is(err, ErrInvalidSettings))
		})
	}
}

func TestEndOfDay(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	now := time.Date(2024, 3, 10, 22, 30, 0, 0, time.UTC) // 23:30 in CET
	end := EndOfDay(now, berlin)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, berlin), end)
	assert.True(t, now.Before(end))
}
