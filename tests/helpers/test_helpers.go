package helpers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"smokeFreeAPI/internal/database"
)

// TestJWTSecret signs development tokens accepted by middleware.HS256Verifier.
var TestJWTSecret = []byte("test-secret-key-for-testing-only")

// SetupTestDB connects to TEST_DATABASE_URL and applies the schema. The
// test is skipped when no database is configured.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}
	if err := database.Migrate(ctx, pool); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return pool
}

// NewClerkID returns a subject that CleanupTestDB will remove.
func NewClerkID() string {
	return "user_test_" + uuid.NewString()
}

// CleanupTestDB removes test users; their rows cascade.
func CleanupTestDB(t *testing.T, pool *pgxpool.Pool) {
	_, err := pool.Exec(context.Background(), "DELETE FROM users WHERE clerk_id LIKE 'user_test_%'")
	if err != nil {
		t.Logf("Warning: failed to cleanup test data: %v", err)
	}
	pool.Close()
}

// GenerateMockClerkJWT signs a Clerk-shaped session token with TestJWTSecret.
func GenerateMockClerkJWT(clerkID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": clerkID,
		"iss": "https://clerk.test",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
		"azp": "test-app-id",
		"sid": "sess_test123",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(TestJWTSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// MockClerkWebhookPayload creates a user.created or user.deleted event.
func MockClerkWebhookPayload(eventType, clerkID string) []byte {
	deleted := ""
	if eventType == "user.deleted" {
		deleted = `, "deleted": true`
	}
	return []byte(fmt.Sprintf(`{"data": {"id": %q%s}, "object": "event", "type": %q}`, clerkID, deleted, eventType))
}

// SignWebhook sets svix headers on req for body, signed with key.
func SignWebhook(req *http.Request, key []byte, body []byte) {
	id := "msg_" + uuid.NewString()
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id + "." + ts + "."))
	mac.Write(body)

	req.Header.Set("svix-id", id)
	req.Header.Set("svix-timestamp", ts)
	req.Header.Set("svix-signature", "v1,"+base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}
