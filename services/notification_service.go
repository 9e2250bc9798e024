package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"smokeFreeAPI/internal/achievement"
	"smokeFreeAPI/internal/evaluator"
	"smokeFreeAPI/internal/notification"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationService stores notifications and hands them to the dispatcher
// for push delivery. It is the Notifier used by ProgressService.
type NotificationService struct {
	db         *pgxpool.Pool
	dispatcher *NotificationDispatcher
}

func NewNotificationService(db *pgxpool.Pool, workers int) *NotificationService {
	service := &NotificationService{db: db}
	service.dispatcher = NewNotificationDispatcher(service, workers)
	return service
}

func (s *NotificationService) Dispatcher() *NotificationDispatcher {
	return s.dispatcher
}

func (s *NotificationService) create(ctx context.Context, n *notification.Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("failed to encode notification data: %w", err)
	}
	query := `
	INSERT INTO notifications (user_id, type, title, body, data, status)
	VALUES ($1, $2, $3, $4, $5, 'pending')
	RETURNING id, created_at
	`
	err = s.db.QueryRow(ctx, query, n.UserID, string(n.Type), n.Title, n.Body, data).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	n.Status = notification.StatusPending
	return nil
}

func (s *NotificationService) NotifyAchievements(ctx context.Context, userID uuid.UUID, defs []achievement.Definition) error {
	var errs []error
	for _, def := range defs {
		n := notification.ForAchievement(userID, def)
		if err := s.create(ctx, n); err != nil {
			errs = append(errs, err)
			continue
		}
		s.dispatcher.DispatchNotification(ctx, n)
	}
	return errors.Join(errs...)
}

// NotifyPunishment creates at most one punishment notification per user
// since dayStart.
func (s *NotificationService) NotifyPunishment(ctx context.Context, userID uuid.UUID, p evaluator.PunishmentStatus, dayStart time.Time) error {
	n := notification.ForPunishment(userID, p)
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("failed to encode notification data: %w", err)
	}

	query := `
	INSERT INTO notifications (user_id, type, title, body, data, status)
	SELECT $1::uuid, $2::text, $3::text, $4::text, $5::jsonb, 'pending'
	WHERE NOT EXISTS (
		SELECT 1 FROM notifications
		WHERE user_id = $1 AND type = $2 AND created_at >= $6::timestamptz
	)
	RETURNING id, created_at
	`
	err = s.db.QueryRow(ctx, query, userID, string(n.Type), n.Title, n.Body, data, dayStart).Scan(&n.ID, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create punishment notification: %w", err)
	}
	s.dispatcher.DispatchNotification(ctx, n)
	return nil
}

func (s *NotificationService) ListNotifications(ctx context.Context, userID uuid.UUID, limit int) (*notification.NotificationListResponse, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	query := `
	SELECT id, user_id, type, title, body, data, status, retry_count, failure_reason, created_at, read_at
	FROM notifications
	WHERE user_id = $1
	ORDER BY created_at DESC
	LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	resp := &notification.NotificationListResponse{Notifications: []*notification.Notification{}}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		resp.Notifications = append(resp.Notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}

	err = s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`, userID,
	).Scan(&resp.UnreadCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return resp, nil
}

func scanNotification(row pgx.Row) (*notification.Notification, error) {
	n := &notification.Notification{}
	var data []byte
	err := row.Scan(
		&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &data,
		&n.Status, &n.RetryCount, &n.FailureReason, &n.CreatedAt, &n.ReadAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("failed to decode notification data: %w", err)
		}
	}
	return n, nil
}

func (s *NotificationService) MarkAsRead(ctx context.Context, userID, id uuid.UUID) error {
	result, err := s.db.Exec(ctx, `
	UPDATE notifications SET read_at = COALESCE(read_at, NOW())
	WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *NotificationService) RegisterDevice(ctx context.Context, userID uuid.UUID, req notification.RegisterDeviceRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	platform := req.Platform
	if platform == "" {
		platform = "android"
	}
	_, err := s.db.Exec(ctx, `
	INSERT INTO device_tokens (user_id, token, platform)
	VALUES ($1, $2, $3)
	ON CONFLICT (user_id, token) DO UPDATE SET platform = EXCLUDED.platform, last_used = NOW()
	`, userID, req.Token, platform)
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

// PushTargets reports whether the user wants pushes and where to send them.
func (s *NotificationService) PushTargets(ctx context.Context, userID uuid.UUID) (bool, []notification.DeviceToken, error) {
	enabled := true
	err := s.db.QueryRow(ctx, `SELECT push_enabled FROM user_settings WHERE user_id = $1`, userID).Scan(&enabled)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, nil, fmt.Errorf("failed to read push preference: %w", err)
	}
	if !enabled {
		return false, nil, nil
	}

	rows, err := s.db.Query(ctx, `
	SELECT token, platform, added_at FROM device_tokens
	WHERE user_id = $1
	ORDER BY last_used DESC
	`, userID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to list device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []notification.DeviceToken
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.Token, &t.Platform, &t.AddedAt); err != nil {
			return false, nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return true, tokens, rows.Err()
}

func (s *NotificationService) MarkSent(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `UPDATE notifications SET status = 'sent', sent_at = NOW() WHERE id = $1`, id)
	return err
}

func (s *NotificationService) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.db.Exec(ctx, `
	UPDATE notifications
	SET status = 'failed', failed_at = NOW(), failure_reason = $2, retry_count = retry_count + 1
	WHERE id = $1
	`, id, reason)
	return err
}

// RetryableFailed claims failed pushes that are due for another attempt by
// moving them back to pending.
func (s *NotificationService) RetryableFailed(ctx context.Context, maxRetries int, backoff time.Duration) ([]*notification.Notification, error) {
	rows, err := s.db.Query(ctx, `
	UPDATE notifications SET status = 'pending'
	WHERE id IN (
		SELECT id FROM notifications
		WHERE status = 'failed' AND retry_count < $1 AND failed_at <= $2
		ORDER BY failed_at
		LIMIT 100
		FOR UPDATE SKIP LOCKED
	)
	RETURNING id, user_id, type, title, body, data, status, retry_count, failure_reason, created_at, read_at
	`, maxRetries, time.Now().Add(-backoff))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch retryable notifications: %w", err)
	}
	defer rows.Close()

	var out []*notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Cleanup removes read notifications older than 90 days.
func (s *NotificationService) Cleanup(ctx context.Context) (int64, error) {
	result, err := s.db.Exec(ctx, `DELETE FROM notifications WHERE read_at < NOW() - INTERVAL '90 days'`)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up notifications: %w", err)
	}
	return result.RowsAffected(), nil
}
