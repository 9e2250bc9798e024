package notification

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"smokeFreeAPI/internal/achievement"
	"smokeFreeAPI/internal/evaluator"
)

type NotificationType string

const (
	NotificationAchievement NotificationType = "achievement"
	NotificationPunishment  NotificationType = "punishment"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
	StatusRead    Status = "read"
)

type Notification struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	UserID        uuid.UUID        `json:"userId" db:"user_id"`
	Type          NotificationType `json:"type" db:"type"`
	Title         string           `json:"title" db:"title"`
	Body          string           `json:"body" db:"body"`
	Data          map[string]any   `json:"data" db:"data"`
	Status        Status           `json:"status" db:"status"`
	RetryCount    int              `json:"retryCount" db:"retry_count"`
	FailureReason *string          `json:"failureReason,omitempty" db:"failure_reason"`
	CreatedAt     time.Time        `json:"createdAt" db:"created_at"`
	ReadAt        *time.Time       `json:"readAt,omitempty" db:"read_at"`
}

type DeviceToken struct {
	Token    string    `json:"token" db:"token"`
	Platform string    `json:"platform" db:"platform"`
	AddedAt  time.Time `json:"addedAt" db:"added_at"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

func (r RegisterDeviceRequest) Validate() error {
	if r.Token == "" {
		return fmt.Errorf("token is required")
	}
	switch r.Platform {
	case "", "android", "ios", "web":
		return nil
	}
	return fmt.Errorf("unsupported platform %q", r.Platform)
}

type NotificationListResponse struct {
	Notifications []*Notification `json:"notifications"`
	UnreadCount   int             `json:"unreadCount"`
}

// ForAchievement renders the push for a freshly earned achievement.
func ForAchievement(userID uuid.UUID, def achievement.Definition) *Notification {
	return &Notification{
		UserID: userID,
		Type:   NotificationAchievement,
		Title:  "Achievement unlocked: " + def.Title,
		Body:   def.Description,
		Data: map[string]any{
			"key":      def.Key,
			"category": string(def.Category),
			"icon":     def.Icon,
		},
		Status: StatusPending,
	}
}

// ForPunishment renders the over-limit prompt. The body is the evaluator's
// message so the push and the in-app prompt read the same.
func ForPunishment(userID uuid.UUID, p evaluator.PunishmentStatus) *Notification {
	return &Notification{
		UserID: userID,
		Type:   NotificationPunishment,
		Title:  fmt.Sprintf("%d over today's target", p.Overage),
		Body:   p.Message,
		Data: map[string]any{
			"overage":        p.Overage,
			"dailyTarget":    p.DailyTarget,
			"dailyCount":     p.DailyCount,
			"donationAmount": p.DonationAmount,
			"charityName":    p.CharityName,
		},
		Status: StatusPending,
	}
}
