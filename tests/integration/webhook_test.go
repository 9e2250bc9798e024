package integration

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smokeFreeAPI/handlers"
	"smokeFreeAPI/services"
	"smokeFreeAPI/tests/helpers"
)

func TestWebhookCreatesAndDeletesUser(t *testing.T) {
	s := newTestServer(t)
	key := []byte("integration-webhook-key")
	webhookHandler, err := handlers.NewWebhookHandler(s.users, "whsec_"+base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)

	clerkID := helpers.NewClerkID()
	ctx := context.Background()

	send := func(eventType string) int {
		body := helpers.MockClerkWebhookPayload(eventType, clerkID)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/clerk", bytes.NewReader(body))
		helpers.SignWebhook(req, key, body)
		rr := httptest.NewRecorder()
		webhookHandler.HandleClerkWebhook(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusOK, send("user.created"))
	u, err := s.users.GetUserByClerkID(ctx, clerkID)
	require.NoError(t, err)
	assert.Equal(t, clerkID, u.ClerkID)

	require.Equal(t, http.StatusOK, send("user.deleted"))
	_, err = s.users.GetUserByClerkID(ctx, clerkID)
	assert.ErrorIs(t, err, services.ErrUserNotFound)

	// a replayed delete for a user that is already gone still acks
	assert.Equal(t, http.StatusOK, send("user.deleted"))
}
