package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"smokeFreeAPI/internal/logger"
	"smokeFreeAPI/internal/user"
	"smokeFreeAPI/services"
)

const webhookTolerance = 5 * time.Minute

type userLifecycle interface {
	EnsureUser(ctx context.Context, clerkID string) (uuid.UUID, error)
	DeleteUserByClerkID(ctx context.Context, clerkID string) error
}

type WebhookHandler struct {
	users  userLifecycle
	secret []byte
	now    func() time.Time
}

// NewWebhookHandler takes the Clerk signing secret as shown in the
// dashboard, with or without its whsec_ prefix.
func NewWebhookHandler(users userLifecycle, secret string) (*WebhookHandler, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode webhook secret: %w", err)
	}
	if len(key) == 0 {
		return nil, errors.New("webhook secret is empty")
	}
	return &WebhookHandler{users: users, secret: key, now: time.Now}, nil
}

// POST /webhooks/clerk
func (h *WebhookHandler) HandleClerkWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Error reading body")
		return
	}

	if err := h.verify(r.Header, body); err != nil {
		logger.Warn("Rejected webhook", "err", err)
		respondWithError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var evt user.ClerkWebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		respondWithError(w, http.StatusBadRequest, "Error parsing webhook")
		return
	}
	var data user.ClerkUserData
	if err := json.Unmarshal(evt.Data, &data); err != nil || data.ID == "" {
		respondWithError(w, http.StatusBadRequest, "Webhook has no user id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	switch evt.Type {
	case "user.created":
		if _, err := h.users.EnsureUser(ctx, data.ID); err != nil {
			logger.Error("Error handling user.created", "clerk_id", data.ID, "err", err)
			respondWithError(w, http.StatusInternalServerError, "Error processing webhook")
			return
		}
	case "user.deleted":
		err := h.users.DeleteUserByClerkID(ctx, data.ID)
		if err != nil && !errors.Is(err, services.ErrUserNotFound) {
			logger.Error("Error handling user.deleted", "clerk_id", data.ID, "err", err)
			respondWithError(w, http.StatusInternalServerError, "Error processing webhook")
			return
		}
	default:
		logger.Debug("Unhandled webhook event type", "type", evt.Type)
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// verify checks a svix signature: base64 HMAC-SHA256 over "id.timestamp.body".
// The signature header may carry several space separated "v1,<sig>" values.
func (h *WebhookHandler) verify(header http.Header, body []byte) error {
	id := header.Get("svix-id")
	ts := header.Get("svix-timestamp")
	sigs := header.Get("svix-signature")
	if id == "" || ts == "" || sigs == "" {
		return errors.New("missing signature headers")
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("bad timestamp %q", ts)
	}
	if d := h.now().Sub(time.Unix(unix, 0)); d > webhookTolerance || d < -webhookTolerance {
		return fmt.Errorf("timestamp outside tolerance: %s", d)
	}

	expected := h.sign(id, ts, body)
	for _, sig := range strings.Fields(sigs) {
		version, value, ok := strings.Cut(sig, ",")
		if !ok || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(value), []byte(expected)) {
			return nil
		}
	}
	return errors.New("no matching signature")
}

func (h *WebhookHandler) sign(id, ts string, body []byte) string {
	mac := hmac.New(sha256.New, h.secret)
	fmt.Fprintf(mac, "%s.%s.", id, ts)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
