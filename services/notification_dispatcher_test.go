package services

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smokeFreeAPI/internal/notification"
)

type fakeDeliveryStore struct {
	mu      stdsync.Mutex
	enabled bool
	tokens  []notification.DeviceToken
	sent    []uuid.UUID
	failed  map[uuid.UUID]string
}

func newFakeDeliveryStore(enabled bool, tokens ...string) *fakeDeliveryStore {
	s := &fakeDeliveryStore{enabled: enabled, failed: map[uuid.UUID]string{}}
	for _, t := range tokens {
		s.tokens = append(s.tokens, notification.DeviceToken{Token: t, Platform: "android"})
	}
	return s
}

func (s *fakeDeliveryStore) PushTargets(context.Context, uuid.UUID) (bool, []notification.DeviceToken, error) {
	return s.enabled, s.tokens, nil
}

func (s *fakeDeliveryStore) MarkSent(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeDeliveryStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = reason
	return nil
}

func (s *fakeDeliveryStore) RetryableFailed(context.Context, int, time.Duration) ([]*notification.Notification, error) {
	return nil, nil
}

func (s *fakeDeliveryStore) Cleanup(context.Context) (int64, error) { return 0, nil }

func (s *fakeDeliveryStore) done() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent) + len(s.failed)
}

type recordingPush struct {
	mu    stdsync.Mutex
	calls int
	err   error
}

func (p *recordingPush) SendPush(context.Context, []notification.DeviceToken, string, string, map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

func dispatchAndWait(t *testing.T, store *fakeDeliveryStore, push PushNotificationProvider) *notification.Notification {
	t.Helper()
	d := NewNotificationDispatcher(store, 2)
	t.Cleanup(d.Stop)
	if push != nil {
		d.SetPushProvider(push)
	}

	n := &notification.Notification{ID: uuid.New(), UserID: uuid.New(), Title: "t", Body: "b"}
	d.DispatchNotification(context.Background(), n)
	require.Eventually(t, func() bool { return store.done() == 1 }, time.Second, 5*time.Millisecond)
	return n
}

func TestDispatcherSendsPush(t *testing.T) {
	store := newFakeDeliveryStore(true, "tok")
	push := &recordingPush{}

	n := dispatchAndWait(t, store, push)

	assert.Equal(t, []uuid.UUID{n.ID}, store.sent)
	assert.Equal(t, 1, push.calls)
}

func TestDispatcherMarksFailedPush(t *testing.T) {
	store := newFakeDeliveryStore(true, "tok")
	push := &recordingPush{err: errors.New("unregistered")}

	n := dispatchAndWait(t, store, push)

	assert.Empty(t, store.sent)
	assert.Equal(t, "unregistered", store.failed[n.ID])
}

func TestDispatcherSkipsPushWhenDisabled(t *testing.T) {
	store := newFakeDeliveryStore(false, "tok")
	push := &recordingPush{}

	n := dispatchAndWait(t, store, push)

	assert.Equal(t, []uuid.UUID{n.ID}, store.sent)
	assert.Zero(t, push.calls)
}

func TestDispatcherStopIsIdempotent(t *testing.T) {
	d := NewNotificationDispatcher(newFakeDeliveryStore(true), 1)
	d.Stop()
	d.Stop()
}
