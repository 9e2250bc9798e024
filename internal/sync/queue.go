package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindCountEvent   Kind = "countEvent"
	KindJournalEntry Kind = "journalEntry"
)

const (
	keyPendingQueue = "sync.pending_queue"
	keyCursor       = "sync.cursor"
	keyRejected     = "sync.rejected"
	keyLedger       = "sync.ledger"
)

// Item is what a caller hands to RecordEvent. Payload is the JSON body the
// server expects for Kind.
type Item struct {
	Kind    Kind
	Payload json.RawMessage
}

type PendingSyncItem struct {
	LocalID   uuid.UUID       `json:"localId"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"lastError,omitempty"`
}

type SyncCursor struct {
	LastSyncTimestamp *time.Time `json:"lastSyncTimestamp"`
	PendingCount      int        `json:"pendingCount"`
}

// RejectedItem is a queued item the server refused with a terminal 4xx. It
// is kept for the user to inspect instead of vanishing from the queue.
type RejectedItem struct {
	PendingSyncItem
	StatusCode int       `json:"statusCode"`
	Reason     string    `json:"reason"`
	RejectedAt time.Time `json:"rejectedAt"`
}

// LedgerEntry is the device's optimistic view of what the user recorded,
// whether or not the server has it yet.
type LedgerEntry struct {
	LocalID    uuid.UUID       `json:"localId"`
	Kind       Kind            `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	RecordedAt time.Time       `json:"recordedAt"`
}

// Storage is the durable key-value store on the device. Set and Remove
// must be durable when they return.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

func loadJSON[T any](ctx context.Context, s Storage, key string) (T, error) {
	var out T
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		return out, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok || len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return out, nil
}

func saveJSON(ctx context.Context, s Storage, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func loadQueue(ctx context.Context, s Storage) ([]PendingSyncItem, error) {
	return loadJSON[[]PendingSyncItem](ctx, s, keyPendingQueue)
}

func saveQueue(ctx context.Context, s Storage, q []PendingSyncItem) error {
	if q == nil {
		q = []PendingSyncItem{}
	}
	return saveJSON(ctx, s, keyPendingQueue, q)
}
