package event

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidCount = errors.New("count must be at least 1")
	ErrMissingID    = errors.New("event id is required")
	ErrMissingTime  = errors.New("timestamp is required")
	ErrInvalidMood  = errors.New("mood must be between 1 and 5")
)

// CountEvent is one logged consumption. The id is generated on the device so
// that redelivery of the same event is recognised by the server.
type CountEvent struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"userId" db:"user_id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Count     int       `json:"count" db:"count"`
	Location  *string   `json:"location,omitempty" db:"location"`
	Trigger   *string   `json:"trigger,omitempty" db:"trigger_tag"`
	Note      *string   `json:"note,omitempty" db:"note"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

func (e *CountEvent) Validate() error {
	if e.ID == uuid.Nil {
		return ErrMissingID
	}
	if e.Timestamp.IsZero() {
		return ErrMissingTime
	}
	if e.Count < 1 {
		return ErrInvalidCount
	}
	return nil
}

type JournalEntry struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"userId" db:"user_id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Mood      *int      `json:"mood,omitempty" db:"mood"`
	Craving   *int      `json:"craving,omitempty" db:"craving"`
	Text      string    `json:"text" db:"text"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

func (j *JournalEntry) Validate() error {
	if j.ID == uuid.Nil {
		return ErrMissingID
	}
	if j.Timestamp.IsZero() {
		return ErrMissingTime
	}
	if j.Mood != nil && (*j.Mood < 1 || *j.Mood > 5) {
		return ErrInvalidMood
	}
	return nil
}
