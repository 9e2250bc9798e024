package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smokeFreeAPI/internal/achievement"
	"smokeFreeAPI/internal/evaluator"
	"smokeFreeAPI/internal/event"
	"smokeFreeAPI/tests/helpers"
)

type eventResponse struct {
	Event      event.CountEvent `json:"event"`
	Created    bool             `json:"created"`
	Evaluation evaluator.Result `json:"evaluation"`
}

func planBody(now time.Time) []byte {
	return []byte(fmt.Sprintf(`{
		"startDate": %q,
		"quitDate": %q,
		"initialDailyAmount": 10,
		"reductionMethod": "gradual",
		"costPerUnit": 10,
		"unitsPerPack": 20
	}`,
		now.AddDate(0, 0, -5).Format(time.RFC3339),
		now.AddDate(0, 0, 25).Format(time.RFC3339),
	))
}

func eventBody(id uuid.UUID, count int, at time.Time) []byte {
	return []byte(fmt.Sprintf(`{"id": %q, "timestamp": %q, "count": %d}`, id, at.Format(time.RFC3339Nano), count))
}

func keysOf(defs []achievement.Definition) []string {
	keys := []string{}
	for _, d := range defs {
		keys = append(keys, d.Key)
	}
	return keys
}

func TestLogEvaluateDismissFlow(t *testing.T) {
	s := newTestServer(t)
	clerkID := helpers.NewClerkID()
	token, err := helpers.GenerateMockClerkJWT(clerkID)
	require.NoError(t, err)
	now := time.Now().UTC()

	t.Log("Step 1: set up a plan")
	rr := s.do(t, token, http.MethodPut, "/api/v1/plan", planBody(now))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	t.Log("Step 2: first log is created and earns the first log milestone")
	id := uuid.New()
	rr = s.do(t, token, http.MethodPost, "/api/v1/events", eventBody(id, 1, now))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var first eventResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &first))
	assert.True(t, first.Created)
	assert.Contains(t, keysOf(first.Evaluation.NewAchievements), achievement.MilestoneFirstLog)

	t.Log("Step 3: redelivery is accepted without a second row or award")
	rr = s.do(t, token, http.MethodPost, "/api/v1/events", eventBody(id, 1, now))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var again eventResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &again))
	assert.False(t, again.Created)
	assert.NotContains(t, keysOf(again.Evaluation.NewAchievements), achievement.MilestoneFirstLog)

	rr = s.do(t, token, http.MethodGet, "/api/v1/events", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var events []event.CountEvent
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &events))
	assert.Len(t, events, 1)

	t.Log("Step 4: the catalog shows the milestone unlocked")
	rr = s.do(t, token, http.MethodGet, "/api/v1/achievements", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var catalog []achievement.AchievementWithStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &catalog))
	for _, a := range catalog {
		if a.Key == achievement.MilestoneFirstLog {
			assert.True(t, a.Unlocked)
		}
	}

	t.Log("Step 5: a heavy day triggers the punishment prompt")
	rr = s.do(t, token, http.MethodPost, "/api/v1/events", eventBody(uuid.New(), 30, now))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var heavy eventResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &heavy))
	assert.True(t, heavy.Evaluation.Punishment.Triggered)
	assert.Greater(t, heavy.Evaluation.Punishment.DonationAmount, 0.0)

	t.Log("Step 6: dismissing hides it for the rest of the day")
	rr = s.do(t, token, http.MethodPost, "/api/v1/punishment/dismiss", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(t, token, http.MethodGet, "/api/v1/progress", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var progress evaluator.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &progress))
	assert.False(t, progress.Punishment.Triggered)
	assert.True(t, progress.Punishment.Dismissed)
	assert.Equal(t, 31, progress.Stats.TotalLogged)

	userID, err := s.users.EnsureUser(context.Background(), clerkID)
	require.NoError(t, err)
	var punishments int
	err = s.pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND type = 'punishment'`, userID,
	).Scan(&punishments)
	require.NoError(t, err)
	assert.Equal(t, 1, punishments)
}

func TestEventWithoutPlanStillStored(t *testing.T) {
	s := newTestServer(t)
	token, err := helpers.GenerateMockClerkJWT(helpers.NewClerkID())
	require.NoError(t, err)

	rr := s.do(t, token, http.MethodPost, "/api/v1/events", eventBody(uuid.New(), 2, time.Now()))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp eventResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Evaluation.Skipped)
	assert.Empty(t, resp.Evaluation.NewAchievements)

	rr = s.do(t, token, http.MethodGet, "/api/v1/plan", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestEventIDOwnedByAnotherUser(t *testing.T) {
	s := newTestServer(t)
	alice, err := helpers.GenerateMockClerkJWT(helpers.NewClerkID())
	require.NoError(t, err)
	bob, err := helpers.GenerateMockClerkJWT(helpers.NewClerkID())
	require.NoError(t, err)

	id := uuid.New()
	rr := s.do(t, alice, http.MethodPost, "/api/v1/events", eventBody(id, 1, time.Now()))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = s.do(t, bob, http.MethodPost, "/api/v1/events", eventBody(id, 1, time.Now()))
	assert.Equal(t, http.StatusConflict, rr.Code)
}
