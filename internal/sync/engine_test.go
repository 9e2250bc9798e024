package sync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smokeFreeAPI/internal/localstore"
)

// fakeServer is an httptest server that records accepted payloads in order
// and answers with whatever status respond returns.
type fakeServer struct {
	mu       stdsync.Mutex
	received []string
	hits     atomic.Int32
	online   atomic.Bool
	respond  func(body string) int
	srv      *httptest.Server
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{respond: func(string) int { return http.StatusCreated }}
	f.online.Store(true)
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == livenessPath {
			if !f.online.Load() {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			return
		}
		f.hits.Add(1)
		var body json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		status := f.respond(string(body))
		if status < 300 {
			f.received = append(f.received, string(body))
		}
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status >= 400 {
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) setRespond(fn func(body string) int) {
	f.mu.Lock()
	f.respond = fn
	f.mu.Unlock()
}

func (f *fakeServer) got() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}
}

func newTestEngine(t *testing.T, f *fakeServer, store *localstore.MemoryStore) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), Config{
		Store:  store,
		Remote: NewHTTPRemote(f.srv.URL, time.Second),
		Retry:  fastRetry(),
	})
	require.NoError(t, err)
	return e
}

func countItem(id string) Item {
	return Item{Kind: KindCountEvent, Payload: json.RawMessage(`{"id":"` + id + `","count":1}`)}
}

func assertQueueInvariant(t *testing.T, e *Engine) {
	t.Helper()
	q, err := e.Pending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(q), e.PendingCount())
	cur, err := e.Cursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(q), cur.PendingCount)
}

func TestRecordEventOnlineSendsImmediately(t *testing.T) {
	f := newFakeServer(t)
	e := newTestEngine(t, f, localstore.NewMemoryStore())

	_, err := e.RecordEvent(context.Background(), "tok", countItem("a"))
	require.NoError(t, err)

	assert.Len(t, f.got(), 1)
	assert.Equal(t, 0, e.PendingCount())
	entries, err := e.LocalEntries(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assertQueueInvariant(t, e)
}

func TestOfflineThenDrainPreservesOrder(t *testing.T) {
	f := newFakeServer(t)
	e := newTestEngine(t, f, localstore.NewMemoryStore())
	ctx := context.Background()

	f.online.Store(false)
	f.setRespond(func(string) int { return http.StatusServiceUnavailable })

	_, err := e.RecordEvent(ctx, "tok", countItem("a"))
	require.NoError(t, err)
	_, err = e.RecordEvent(ctx, "tok", countItem("b"))
	require.NoError(t, err)

	assert.Equal(t, 2, e.PendingCount())
	assert.False(t, e.IsOnline(ctx))
	assertQueueInvariant(t, e)

	f.online.Store(true)
	f.setRespond(func(string) int { return http.StatusCreated })
	require.True(t, e.IsOnline(ctx))

	report, err := e.Drain(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Synced)
	assert.Equal(t, 0, e.PendingCount())
	assertQueueInvariant(t, e)

	got := f.got()
	require.Len(t, got, 2)
	assert.Contains(t, got[0], `"a"`)
	assert.Contains(t, got[1], `"b"`)

	cur, err := e.Cursor(ctx)
	require.NoError(t, err)
	assert.NotNil(t, cur.LastSyncTimestamp)
}

func TestRetryBoundOnServerError(t *testing.T) {
	f := newFakeServer(t)
	f.setRespond(func(string) int { return http.StatusInternalServerError })
	e := newTestEngine(t, f, localstore.NewMemoryStore())

	_, err := e.RecordEvent(context.Background(), "tok", countItem("a"))
	require.NoError(t, err)

	assert.Equal(t, int32(fastRetry().MaxRetries+1), f.hits.Load())
	assert.Equal(t, 1, e.PendingCount())
}

func TestClientErrorIsNotRetriedOrQueued(t *testing.T) {
	f := newFakeServer(t)
	f.setRespond(func(string) int { return http.StatusBadRequest })
	e := newTestEngine(t, f, localstore.NewMemoryStore())

	_, err := e.RecordEvent(context.Background(), "tok", countItem("a"))
	var clientErr *ClientRequestError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, http.StatusBadRequest, clientErr.StatusCode)
	assert.Equal(t, "nope", clientErr.Message)

	assert.Equal(t, int32(1), f.hits.Load())
	assert.Equal(t, 0, e.PendingCount())

	entries, err := e.LocalEntries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTimeoutAndRateLimitAreRetried(t *testing.T) {
	for _, status := range []int{http.StatusRequestTimeout, http.StatusTooManyRequests} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			f := newFakeServer(t)
			f.setRespond(func(string) int { return status })
			e := newTestEngine(t, f, localstore.NewMemoryStore())

			_, err := e.RecordEvent(context.Background(), "tok", countItem("a"))
			require.NoError(t, err)
			assert.Equal(t, int32(fastRetry().MaxRetries+1), f.hits.Load())
			assert.Equal(t, 1, e.PendingCount())
		})
	}
}

func TestDrainKeepsFailuresAndContinues(t *testing.T) {
	f := newFakeServer(t)
	store := localstore.NewMemoryStore()
	e := newTestEngine(t, f, store)
	ctx := context.Background()

	f.setRespond(func(string) int { return http.StatusBadGateway })
	for _, id := range []string{"a", "b", "c"} {
		_, err := e.RecordEvent(ctx, "tok", countItem(id))
		require.NoError(t, err)
	}
	require.Equal(t, 3, e.PendingCount())

	f.setRespond(func(body string) int {
		if body == string(countItem("b").Payload) {
			return http.StatusBadGateway
		}
		return http.StatusCreated
	})

	report, err := e.Drain(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Synced)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, e.PendingCount())
	assertQueueInvariant(t, e)

	q, err := e.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, q, 1)
	assert.Contains(t, string(q[0].Payload), `"b"`)
	assert.Equal(t, 2, q[0].Attempts)
	assert.NotEmpty(t, q[0].LastError)
}

func TestDrainMovesRejectedItemsAside(t *testing.T) {
	f := newFakeServer(t)
	e := newTestEngine(t, f, localstore.NewMemoryStore())
	ctx := context.Background()

	f.setRespond(func(string) int { return http.StatusServiceUnavailable })
	for _, id := range []string{"a", "b"} {
		_, err := e.RecordEvent(ctx, "tok", countItem(id))
		require.NoError(t, err)
	}

	f.setRespond(func(body string) int {
		if body == string(countItem("a").Payload) {
			return http.StatusUnprocessableEntity
		}
		return http.StatusCreated
	})
	report, err := e.Drain(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, 1, report.Synced)
	assert.Equal(t, 0, e.PendingCount())
	assertQueueInvariant(t, e)

	rejected, err := e.Rejected(ctx)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, http.StatusUnprocessableEntity, rejected[0].StatusCode)

	entries, err := e.LocalEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, e.ClearRejected(ctx))
	rejected, err = e.Rejected(ctx)
	require.NoError(t, err)
	assert.Empty(t, rejected)
}

func TestDrainStopsOnUnauthorized(t *testing.T) {
	f := newFakeServer(t)
	e := newTestEngine(t, f, localstore.NewMemoryStore())
	ctx := context.Background()

	f.setRespond(func(string) int { return http.StatusUnauthorized })
	for _, id := range []string{"a", "b"} {
		_, err := e.RecordEvent(ctx, "expired", countItem(id))
		require.NoError(t, err)
	}
	require.Equal(t, 2, e.PendingCount())

	_, err := e.Drain(ctx, "expired")
	var clientErr *ClientRequestError
	require.True(t, errors.As(err, &clientErr))
	assert.True(t, clientErr.Unauthorized())
	assert.Equal(t, 2, e.PendingCount())
	assertQueueInvariant(t, e)
}

// blockingRemote holds the first Submit until release is closed.
type blockingRemote struct {
	entered chan struct{}
	release chan struct{}
	once    stdsync.Once
	mu      stdsync.Mutex
	calls   int
}

func (b *blockingRemote) Submit(ctx context.Context, _ string, _ Kind, _ json.RawMessage) error {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return nil
}

func (b *blockingRemote) Ping(context.Context) error { return nil }

func seedQueue(t *testing.T, store Storage, n int) {
	t.Helper()
	q := make([]PendingSyncItem, 0, n)
	for i := 0; i < n; i++ {
		q = append(q, PendingSyncItem{LocalID: uuid.New(), Kind: KindCountEvent, Payload: json.RawMessage(`{}`)})
	}
	require.NoError(t, saveQueue(context.Background(), store, q))
}

func TestSecondDrainIsNoOp(t *testing.T) {
	store := localstore.NewMemoryStore()
	seedQueue(t, store, 1)

	remote := &blockingRemote{entered: make(chan struct{}), release: make(chan struct{})}
	e, err := NewEngine(context.Background(), Config{Store: store, Remote: remote, Retry: fastRetry()})
	require.NoError(t, err)

	done := make(chan DrainReport)
	go func() {
		r, _ := e.Drain(context.Background(), "tok")
		done <- r
	}()
	<-remote.entered

	second, err := e.Drain(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrDrainInProgress)
	assert.True(t, second.Skipped)

	close(remote.release)
	first := <-done
	assert.Equal(t, 1, first.Synced)

	remote.mu.Lock()
	assert.Equal(t, 1, remote.calls)
	remote.mu.Unlock()
}

// flakyRemote fails every Submit until ok is set.
type flakyRemote struct {
	ok      atomic.Bool
	entered chan struct{}
	release chan struct{}
	once    stdsync.Once
}

func (r *flakyRemote) Submit(context.Context, string, Kind, json.RawMessage) error {
	if r.ok.Load() {
		r.once.Do(func() {
			close(r.entered)
			<-r.release
		})
		return nil
	}
	return &StatusError{StatusCode: http.StatusServiceUnavailable}
}

func (r *flakyRemote) Ping(context.Context) error { return nil }

func TestRecordDuringDrainIsNotLost(t *testing.T) {
	store := localstore.NewMemoryStore()
	seedQueue(t, store, 1)

	remote := &flakyRemote{entered: make(chan struct{}), release: make(chan struct{})}
	remote.ok.Store(true)
	e, err := NewEngine(context.Background(), Config{Store: store, Remote: remote, Retry: fastRetry()})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, _ = e.Drain(context.Background(), "tok")
		close(done)
	}()
	<-remote.entered

	// the drain is parked mid-item; this write fails and is queued
	remote.ok.Store(false)
	_, err = e.RecordEvent(context.Background(), "tok", countItem("late"))
	require.NoError(t, err)

	close(remote.release)
	<-done

	q, err := e.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, q, 1)
	assert.Contains(t, string(q[0].Payload), "late")
	assertQueueInvariant(t, e)
}

func TestPendingCountSurvivesRestart(t *testing.T) {
	f := newFakeServer(t)
	f.setRespond(func(string) int { return http.StatusServiceUnavailable })
	store := localstore.NewMemoryStore()
	e := newTestEngine(t, f, store)

	_, err := e.RecordEvent(context.Background(), "tok", countItem("a"))
	require.NoError(t, err)

	restarted := newTestEngine(t, f, store)
	assert.Equal(t, 1, restarted.PendingCount())
}

func TestRecordEventFailsWhenQueueCannotPersist(t *testing.T) {
	f := newFakeServer(t)
	f.setRespond(func(string) int { return http.StatusServiceUnavailable })
	store := localstore.NewMemoryStore()
	e := newTestEngine(t, f, store)

	store.FailWrites = errors.New("disk full")
	_, err := e.RecordEvent(context.Background(), "tok", countItem("a"))
	assert.Error(t, err)
	assert.Equal(t, 0, e.PendingCount())
}

func TestRunDrainsWhenOnline(t *testing.T) {
	f := newFakeServer(t)
	f.setRespond(func(string) int { return http.StatusServiceUnavailable })
	e := newTestEngine(t, f, localstore.NewMemoryStore())

	_, err := e.RecordEvent(context.Background(), "tok", countItem("a"))
	require.NoError(t, err)
	f.setRespond(func(string) int { return http.StatusCreated })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.Run(ctx, "tok", 10*time.Millisecond) }()

	assert.Eventually(t, func() bool { return e.PendingCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestUnauthorizedRecordIsQueuedWithoutError(t *testing.T) {
	f := newFakeServer(t)
	f.setRespond(func(string) int { return http.StatusUnauthorized })
	e := newTestEngine(t, f, localstore.NewMemoryStore())

	id, err := e.RecordEvent(context.Background(), "expired", countItem("a"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, int32(1), f.hits.Load())
	assert.Equal(t, 1, e.PendingCount())

	entries, err := e.LocalEntries(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assertQueueInvariant(t, e)
}
