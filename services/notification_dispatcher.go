package services

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"smokeFreeAPI/internal/logger"
	"smokeFreeAPI/internal/notification"
)

const (
	maxPushRetries = 3
	pushRetryDelay = 5 * time.Minute
)

type PushNotificationProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error
}

// deliveryStore is the part of NotificationService the workers need.
type deliveryStore interface {
	PushTargets(ctx context.Context, userID uuid.UUID) (bool, []notification.DeviceToken, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	RetryableFailed(ctx context.Context, maxRetries int, backoff time.Duration) ([]*notification.Notification, error)
	Cleanup(ctx context.Context) (int64, error)
}

// NotificationDispatcher delivers stored notifications from a fixed worker pool.
type NotificationDispatcher struct {
	store        deliveryStore
	pushProvider PushNotificationProvider
	workers      int
	jobQueue     chan *notification.Notification
	stopChan     chan struct{}
	stopOnce     stdsync.Once
	wg           stdsync.WaitGroup
}

func NewNotificationDispatcher(store deliveryStore, workers int) *NotificationDispatcher {
	if workers < 1 {
		workers = 5
	}
	d := &NotificationDispatcher{
		store:    store,
		workers:  workers,
		jobQueue: make(chan *notification.Notification, 100),
		stopChan: make(chan struct{}),
	}

	d.startWorkers()

	d.wg.Add(2)
	go d.every(time.Minute, d.retryFailed)
	go d.every(24*time.Hour, d.cleanup)

	return d
}

// SetPushProvider injects the FCM provider from main.go. Without one,
// notifications are stored and marked sent without a push.
func (d *NotificationDispatcher) SetPushProvider(provider PushNotificationProvider) {
	d.pushProvider = provider
}

func (d *NotificationDispatcher) startWorkers() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

func (d *NotificationDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case n := <-d.jobQueue:
			d.processJob(n)
		case <-d.stopChan:
			return
		}
	}
}

func (d *NotificationDispatcher) processJob(n *notification.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	enabled, tokens, err := d.store.PushTargets(ctx, n.UserID)
	if err != nil {
		logger.Error("Failed to load push targets", "user", n.UserID, "err", err)
		d.markAsFailed(ctx, n.ID, err)
		return
	}

	if enabled && len(tokens) > 0 && d.pushProvider != nil {
		if err := d.pushProvider.SendPush(ctx, tokens, n.Title, n.Body, n.Data); err != nil {
			logger.Warn("Push failed", "user", n.UserID, "notification", n.ID, "err", err)
			d.markAsFailed(ctx, n.ID, err)
			return
		}
	} else {
		logger.Debug("Skipping push", "enabled", enabled, "tokens", len(tokens), "provider", d.pushProvider != nil)
		notificationsDispatched.WithLabelValues("skipped").Inc()
	}

	d.markAsSent(ctx, n.ID)
}

// DispatchNotification queues n for delivery. A full queue leaves n stored
// as pending.
func (d *NotificationDispatcher) DispatchNotification(ctx context.Context, n *notification.Notification) {
	select {
	case d.jobQueue <- n:
		logger.Debug("Notification queued", "id", n.ID, "type", n.Type)
	case <-ctx.Done():
		notificationsDispatched.WithLabelValues("dropped").Inc()
	case <-time.After(5 * time.Second):
		logger.Warn("Failed to queue notification: queue full", "id", n.ID)
		notificationsDispatched.WithLabelValues("dropped").Inc()
	}
}

func (d *NotificationDispatcher) every(interval time.Duration, fn func()) {
	defer d.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn()
		case <-d.stopChan:
			return
		}
	}
}

func (d *NotificationDispatcher) retryFailed() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	due, err := d.store.RetryableFailed(ctx, maxPushRetries, pushRetryDelay)
	if err != nil {
		logger.Error("Failed to fetch retryable notifications", "err", err)
		return
	}
	for _, n := range due {
		d.DispatchNotification(ctx, n)
	}
	if len(due) > 0 {
		logger.Info("Requeued failed notifications", "count", len(due))
	}
}

func (d *NotificationDispatcher) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := d.store.Cleanup(ctx)
	if err != nil {
		logger.Error("Failed to clean up notifications", "err", err)
		return
	}
	if n > 0 {
		logger.Info("Cleaned up old notifications", "count", n)
	}
}

func (d *NotificationDispatcher) markAsSent(ctx context.Context, id uuid.UUID) {
	notificationsDispatched.WithLabelValues("sent").Inc()
	if err := d.store.MarkSent(ctx, id); err != nil {
		logger.Error("Failed to mark notification as sent", "id", id, "err", err)
	}
}

func (d *NotificationDispatcher) markAsFailed(ctx context.Context, id uuid.UUID, err error) {
	notificationsDispatched.WithLabelValues("failed").Inc()
	if dbErr := d.store.MarkFailed(ctx, id, err.Error()); dbErr != nil {
		logger.Error("Failed to mark notification as failed", "id", id, "err", dbErr)
	}
}

// Stop waits for in-flight jobs. Queued jobs stay pending in the database.
func (d *NotificationDispatcher) Stop() {
	d.stopOnce.Do(func() {
		logger.Info("Stopping notification dispatcher")
		close(d.stopChan)
		d.wg.Wait()
	})
}

// MockPushProvider logs instead of sending. Used when FCM is not configured.
type MockPushProvider struct{}

func (m *MockPushProvider) SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error {
	logger.Info("MOCK PUSH", "devices", len(tokens), "title", title, "body", body)
	return nil
}
