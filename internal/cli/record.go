package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"smokeFreeAPI/internal/event"
	"smokeFreeAPI/internal/sync"
)

type LogCmd struct {
	Count    int       `arg:"" optional:"" default:"1" help:"Number smoked."`
	Location string    `help:"Where it happened."`
	Trigger  string    `help:"What triggered it (stress, coffee, social...)."`
	Note     string    `help:"Free-form note."`
	At       time.Time `help:"When it happened (RFC3339). Defaults to now." format:"2006-01-02T15:04:05Z07:00"`
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (c *LogCmd) Run(ctx *Context) error {
	ts := c.At
	if ts.IsZero() {
		ts = time.Now()
	}
	ev := event.CountEvent{
		ID:        uuid.New(),
		Timestamp: ts,
		Count:     c.Count,
		Location:  optional(c.Location),
		Trigger:   optional(c.Trigger),
		Note:      optional(c.Note),
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	if err := record(ctx, sync.KindCountEvent, ev); err != nil {
		return err
	}
	fmt.Printf("Logged %d (pending sync: %d)\n", ev.Count, ctx.Engine.PendingCount())
	return nil
}

type JournalCmd struct {
	Text    string `arg:"" help:"Journal text."`
	Mood    int    `help:"Mood from 1 (awful) to 5 (great)."`
	Craving int    `help:"Craving intensity from 1 to 10."`
}

func (c *JournalCmd) Run(ctx *Context) error {
	entry := event.JournalEntry{
		ID:        uuid.New(),
		Timestamp: time.Now(),
		Text:      c.Text,
	}
	if c.Mood != 0 {
		entry.Mood = &c.Mood
	}
	if c.Craving != 0 {
		entry.Craving = &c.Craving
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	if err := record(ctx, sync.KindJournalEntry, entry); err != nil {
		return err
	}
	fmt.Printf("Journal saved (pending sync: %d)\n", ctx.Engine.PendingCount())
	return nil
}

func record(ctx *Context, kind sync.Kind, v any) error {
	token, err := ctx.Token()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	_, err = ctx.Engine.RecordEvent(context.Background(), token, sync.Item{Kind: kind, Payload: payload})
	var clientErr *sync.ClientRequestError
	if errors.As(err, &clientErr) {
		return fmt.Errorf("server refused the entry: %s", clientErr.Message)
	}
	return err
}
