// Package sync keeps a device usable while offline. Every recorded item is
// applied to a local ledger first, then written to the server; items that
// cannot be written are kept in a durable FIFO queue until Drain delivers
// them.
package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"smokeFreeAPI/internal/logger"
)

// Config holds the options for NewEngine.
type Config struct {
	Store  Storage
	Remote Remote
	Retry  RetryPolicy
	Logger *log.Logger // defaults to the package logger
	Clock  func() time.Time
}

// DrainReport summarizes one pass over the pending queue.
type DrainReport struct {
	Skipped   bool
	Attempted int
	Synced    int
	Failed    int
	Rejected  int
	Remaining int
	Duration  time.Duration
}

type Engine struct {
	store  Storage
	remote Remote
	retry  RetryPolicy
	logger *log.Logger
	clock  func() time.Time

	// mu serializes every read-modify-write of persisted state. It is never
	// held across a network call.
	mu      stdsync.Mutex
	pending int

	draining atomic.Bool
}

// NewEngine loads the persisted queue so PendingCount is right from the
// first call.
func NewEngine(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Store == nil || cfg.Remote == nil {
		return nil, errors.New("sync: store and remote are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.With("component", "sync")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.BaseDelay == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	e := &Engine{
		store:  cfg.Store,
		remote: cfg.Remote,
		retry:  cfg.Retry,
		logger: cfg.Logger,
		clock:  cfg.Clock,
	}

	q, err := loadQueue(ctx, e.store)
	if err != nil {
		return nil, fmt.Errorf("sync: loading pending queue: %w", err)
	}
	e.pending = len(q)
	return e, nil
}

func (e *Engine) nowUTC() time.Time {
	return e.clock().UTC()
}

// RecordEvent applies item locally and tries to write it to the server.
// Transient failures queue the item and return nil. A terminal rejection
// returns *ClientRequestError and undoes the local entry; rejected
// credentials still queue the item so it can be sent after login.
func (e *Engine) RecordEvent(ctx context.Context, token string, item Item) (uuid.UUID, error) {
	if _, err := endpointFor(item.Kind); err != nil {
		return uuid.Nil, err
	}
	if len(item.Payload) == 0 {
		return uuid.Nil, errors.New("sync: empty payload")
	}
	// local writes must land even if the caller gives up on the network
	persistCtx := context.WithoutCancel(ctx)

	entry := LedgerEntry{
		LocalID:    uuid.New(),
		Kind:       item.Kind,
		Payload:    item.Payload,
		RecordedAt: e.nowUTC(),
	}
	if err := e.appendLedger(persistCtx, entry); err != nil {
		return uuid.Nil, err
	}

	err := e.retry.Do(ctx, func(ctx context.Context) error {
		return e.remote.Submit(ctx, token, item.Kind, item.Payload)
	})
	if err == nil {
		e.logger.Debug("item synced", "kind", item.Kind, "local_id", entry.LocalID)
		return entry.LocalID, nil
	}

	var clientErr *ClientRequestError
	if errors.As(err, &clientErr) && !clientErr.Unauthorized() {
		e.logger.Warn("item rejected by server", "kind", item.Kind, "status", clientErr.StatusCode, "err", clientErr.Message)
		if rbErr := e.removeLedger(persistCtx, map[uuid.UUID]bool{entry.LocalID: true}); rbErr != nil {
			e.logger.Error("failed to roll back local entry", "local_id", entry.LocalID, "err", rbErr)
		}
		return uuid.Nil, clientErr
	}

	pending := PendingSyncItem{
		LocalID:   entry.LocalID,
		Kind:      item.Kind,
		Payload:   item.Payload,
		CreatedAt: entry.RecordedAt,
		Attempts:  1,
		LastError: err.Error(),
	}
	if qErr := e.enqueue(persistCtx, pending); qErr != nil {
		return uuid.Nil, qErr
	}
	e.logger.Info("item queued for later", "kind", item.Kind, "local_id", entry.LocalID, "err", err)
	return entry.LocalID, nil
}

func (e *Engine) enqueue(ctx context.Context, item PendingSyncItem) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	q, err := loadQueue(ctx, e.store)
	if err != nil {
		return err
	}
	q = append(q, item)
	return e.commitQueueLocked(ctx, q, false)
}

// commitQueueLocked writes q and the cursor, then moves the in-memory
// counter to match. Caller holds e.mu.
func (e *Engine) commitQueueLocked(ctx context.Context, q []PendingSyncItem, synced bool) error {
	if err := saveQueue(ctx, e.store, q); err != nil {
		return err
	}
	e.pending = len(q)

	cur, err := loadJSON[SyncCursor](ctx, e.store, keyCursor)
	if err != nil {
		return err
	}
	cur.PendingCount = len(q)
	if synced {
		now := e.nowUTC()
		cur.LastSyncTimestamp = &now
	}
	return saveJSON(ctx, e.store, keyCursor, cur)
}

// IsOnline asks the server's liveness endpoint. The OS network state is
// never consulted.
func (e *Engine) IsOnline(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, LivenessTimeout)
	defer cancel()
	if err := e.remote.Ping(ctx); err != nil {
		e.logger.Debug("liveness check failed", "err", err)
		return false
	}
	return true
}

// Drain submits the pending queue in FIFO order. A failing item stays
// queued and the pass moves on. Only one drain runs at a time; a second
// caller gets a skipped report and ErrDrainInProgress.
//
// Rejected credentials stop the pass and keep every item. The returned
// error is then the *ClientRequestError.
func (e *Engine) Drain(ctx context.Context, token string) (DrainReport, error) {
	if !e.draining.CompareAndSwap(false, true) {
		return DrainReport{Skipped: true}, ErrDrainInProgress
	}
	defer e.draining.Store(false)

	started := e.clock()
	persistCtx := context.WithoutCancel(ctx)

	e.mu.Lock()
	snapshot, err := loadQueue(persistCtx, e.store)
	e.mu.Unlock()
	if err != nil {
		return DrainReport{}, err
	}

	var (
		report   DrainReport
		acked    = make(map[uuid.UUID]bool)
		failed   = make(map[uuid.UUID]error)
		rejected []RejectedItem
		abortErr error
	)

	for _, item := range snapshot {
		// a drain is only interrupted between items
		if ctx.Err() != nil {
			break
		}
		report.Attempted++

		err := e.retry.Do(ctx, func(ctx context.Context) error {
			return e.remote.Submit(ctx, token, item.Kind, item.Payload)
		})
		if err == nil {
			acked[item.LocalID] = true
			continue
		}

		var clientErr *ClientRequestError
		if errors.As(err, &clientErr) {
			if clientErr.Unauthorized() {
				abortErr = clientErr
				report.Attempted--
				break
			}
			rejected = append(rejected, RejectedItem{
				PendingSyncItem: item,
				StatusCode:      clientErr.StatusCode,
				Reason:          clientErr.Message,
				RejectedAt:      e.nowUTC(),
			})
			continue
		}
		failed[item.LocalID] = err
	}

	if err := e.finishDrain(persistCtx, acked, failed, rejected); err != nil {
		return report, err
	}

	report.Synced = len(acked)
	report.Failed = len(failed)
	report.Rejected = len(rejected)
	report.Remaining = e.PendingCount()
	report.Duration = e.clock().Sub(started)

	e.logger.Info("drain finished",
		"synced", report.Synced,
		"failed", report.Failed,
		"rejected", report.Rejected,
		"remaining", report.Remaining,
	)
	if abortErr != nil {
		e.logger.Warn("drain stopped, credentials rejected", "err", abortErr)
	}
	return report, abortErr
}

// finishDrain rewrites the queue from its current persisted state, not from
// the drain snapshot, so items appended during the pass survive.
func (e *Engine) finishDrain(ctx context.Context, acked map[uuid.UUID]bool, failed map[uuid.UUID]error, rejected []RejectedItem) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := loadQueue(ctx, e.store)
	if err != nil {
		return err
	}

	rejectedIDs := make(map[uuid.UUID]bool, len(rejected))
	for _, r := range rejected {
		rejectedIDs[r.LocalID] = true
	}

	remaining := make([]PendingSyncItem, 0, len(current))
	for _, item := range current {
		if acked[item.LocalID] || rejectedIDs[item.LocalID] {
			continue
		}
		if ferr, ok := failed[item.LocalID]; ok {
			item.Attempts++
			item.LastError = ferr.Error()
		}
		remaining = append(remaining, item)
	}

	if len(rejected) > 0 {
		list, err := loadJSON[[]RejectedItem](ctx, e.store, keyRejected)
		if err != nil {
			return err
		}
		if err := saveJSON(ctx, e.store, keyRejected, append(list, rejected...)); err != nil {
			return err
		}
		if err := e.removeLedgerLocked(ctx, rejectedIDs); err != nil {
			return err
		}
	}

	return e.commitQueueLocked(ctx, remaining, len(acked) > 0)
}

// Run drains whenever the server is reachable and work is pending, once
// immediately and then every interval, until ctx is done.
func (e *Engine) Run(ctx context.Context, token string, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if e.PendingCount() > 0 && e.IsOnline(ctx) {
			if _, err := e.Drain(ctx, token); err != nil && !errors.Is(err, ErrDrainInProgress) {
				e.logger.Error("background drain failed", "err", err)
				var clientErr *ClientRequestError
				if errors.As(err, &clientErr) && clientErr.Unauthorized() {
					return err
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

func (e *Engine) Cursor(ctx context.Context) (SyncCursor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur, err := loadJSON[SyncCursor](ctx, e.store, keyCursor)
	if err != nil {
		return SyncCursor{}, err
	}
	cur.PendingCount = e.pending
	return cur, nil
}

func (e *Engine) Pending(ctx context.Context) ([]PendingSyncItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return loadQueue(ctx, e.store)
}

func (e *Engine) Rejected(ctx context.Context) ([]RejectedItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return loadJSON[[]RejectedItem](ctx, e.store, keyRejected)
}

// ClearRejected forgets the rejected list once the user has seen it.
func (e *Engine) ClearRejected(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Remove(ctx, keyRejected)
}

// LocalEntries is everything recorded on this device, synced or not.
func (e *Engine) LocalEntries(ctx context.Context) ([]LedgerEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return loadJSON[[]LedgerEntry](ctx, e.store, keyLedger)
}

func (e *Engine) appendLedger(ctx context.Context, entry LedgerEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ledger, err := loadJSON[[]LedgerEntry](ctx, e.store, keyLedger)
	if err != nil {
		return err
	}
	return saveJSON(ctx, e.store, keyLedger, append(ledger, entry))
}

func (e *Engine) removeLedger(ctx context.Context, ids map[uuid.UUID]bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeLedgerLocked(ctx, ids)
}

func (e *Engine) removeLedgerLocked(ctx context.Context, ids map[uuid.UUID]bool) error {
	ledger, err := loadJSON[[]LedgerEntry](ctx, e.store, keyLedger)
	if err != nil {
		return err
	}
	kept := ledger[:0]
	for _, entry := range ledger {
		if !ids[entry.LocalID] {
			kept = append(kept, entry)
		}
	}
	return saveJSON(ctx, e.store, keyLedger, kept)
}
