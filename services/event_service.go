package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"smokeFreeAPI/internal/event"
)

var (
	ErrEventNotFound = errors.New("event not found")
	// ErrEventConflict means the id is already taken by another user.
	ErrEventConflict = errors.New("event id already in use")
)

// EventService is the append-only store of count events and journal
// entries. Inserts are keyed on the device-generated id so a redelivered
// item is accepted without creating a second row.
type EventService struct {
	db *pgxpool.Pool
}

func NewEventService(db *pgxpool.Pool) *EventService {
	return &EventService{db: db}
}

// AddCountEvent stores ev for userID. created is false when the id was
// already stored for this user.
func (s *EventService) AddCountEvent(ctx context.Context, userID uuid.UUID, ev *event.CountEvent) (bool, error) {
	if err := ev.Validate(); err != nil {
		return false, err
	}
	ev.UserID = userID

	query := `
	INSERT INTO count_events (id, user_id, "timestamp", count, location, trigger_tag, note)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO NOTHING
	RETURNING created_at
	`
	err := s.db.QueryRow(ctx, query,
		ev.ID, ev.UserID, ev.Timestamp, ev.Count, ev.Location, ev.Trigger, ev.Note,
	).Scan(&ev.CreatedAt)
	if err == nil {
		eventsIngested.WithLabelValues("count", "new").Inc()
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("failed to add count event: %w", err)
	}

	if err := s.checkOwner(ctx, "count_events", ev.ID, userID, &ev.CreatedAt); err != nil {
		return false, err
	}
	eventsIngested.WithLabelValues("count", "duplicate").Inc()
	return false, nil
}

func (s *EventService) checkOwner(ctx context.Context, table string, id, userID uuid.UUID, createdAt *time.Time) error {
	var owner uuid.UUID
	query := fmt.Sprintf(`SELECT user_id, created_at FROM %s WHERE id = $1`, table)
	if err := s.db.QueryRow(ctx, query, id).Scan(&owner, createdAt); err != nil {
		return fmt.Errorf("failed to look up existing %s row: %w", table, err)
	}
	if owner != userID {
		return ErrEventConflict
	}
	return nil
}

// RemoveCountEvent deletes one event. Only an explicit user action calls this.
func (s *EventService) RemoveCountEvent(ctx context.Context, userID, id uuid.UUID) error {
	result, err := s.db.Exec(ctx, `DELETE FROM count_events WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to remove count event: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// ListCountEvents returns the user's events in timestamp order, optionally
// only those at or after since.
func (s *EventService) ListCountEvents(ctx context.Context, userID uuid.UUID, since *time.Time) ([]event.CountEvent, error) {
	query := `
	SELECT id, user_id, "timestamp", count, location, trigger_tag, note, created_at
	FROM count_events
	WHERE user_id = $1 AND ($2::timestamptz IS NULL OR "timestamp" >= $2)
	ORDER BY "timestamp" ASC, created_at ASC
	`
	rows, err := s.db.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list count events: %w", err)
	}
	defer rows.Close()

	events := []event.CountEvent{}
	for rows.Next() {
		var ev event.CountEvent
		if err := rows.Scan(
			&ev.ID, &ev.UserID, &ev.Timestamp, &ev.Count,
			&ev.Location, &ev.Trigger, &ev.Note, &ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan count event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate count events: %w", err)
	}
	return events, nil
}

func (s *EventService) AddJournalEntry(ctx context.Context, userID uuid.UUID, j *event.JournalEntry) (bool, error) {
	if err := j.Validate(); err != nil {
		return false, err
	}
	j.UserID = userID

	query := `
	INSERT INTO journal_entries (id, user_id, "timestamp", mood, craving, text)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO NOTHING
	RETURNING created_at
	`
	err := s.db.QueryRow(ctx, query, j.ID, j.UserID, j.Timestamp, j.Mood, j.Craving, j.Text).Scan(&j.CreatedAt)
	if err == nil {
		eventsIngested.WithLabelValues("journal", "new").Inc()
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("failed to add journal entry: %w", err)
	}

	if err := s.checkOwner(ctx, "journal_entries", j.ID, userID, &j.CreatedAt); err != nil {
		return false, err
	}
	eventsIngested.WithLabelValues("journal", "duplicate").Inc()
	return false, nil
}

// ListJournalEntries returns the newest entries first.
func (s *EventService) ListJournalEntries(ctx context.Context, userID uuid.UUID, limit int) ([]event.JournalEntry, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	query := `
	SELECT id, user_id, "timestamp", mood, craving, text, created_at
	FROM journal_entries
	WHERE user_id = $1
	ORDER BY "timestamp" DESC
	LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	defer rows.Close()

	entries := []event.JournalEntry{}
	for rows.Next() {
		var j event.JournalEntry
		if err := rows.Scan(&j.ID, &j.UserID, &j.Timestamp, &j.Mood, &j.Craving, &j.Text, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journal entries: %w", err)
	}
	return entries, nil
}

func (s *EventService) CountJournalEntries(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count journal entries: %w", err)
	}
	return n, nil
}
