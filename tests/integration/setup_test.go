package integration

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"smokeFreeAPI/handlers"
	"smokeFreeAPI/middleware"
	"smokeFreeAPI/services"
	"smokeFreeAPI/tests/helpers"
)

type testServer struct {
	pool     *pgxpool.Pool
	users    *services.UserService
	events   *services.EventService
	progress *services.ProgressService
	notifs   *services.NotificationService
	router   *mux.Router
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	pool := helpers.SetupTestDB(t)

	s := &testServer{pool: pool}
	s.notifs = services.NewNotificationService(pool, 1)
	s.notifs.Dispatcher().SetPushProvider(&services.MockPushProvider{})
	s.users = services.NewUserService(pool)
	s.events = services.NewEventService(pool)
	plans := services.NewPlanService(pool)
	st := services.NewSettingsService(pool)
	s.progress = services.NewProgressService(plans, st, s.events, services.NewAchievementService(pool), s.notifs)

	health := handlers.NewHealthHandler(pool)
	eventHandler := handlers.NewEventHandler(s.users, s.events, s.progress)
	planHandler := handlers.NewPlanHandler(s.users, plans, st)
	progressHandler := handlers.NewProgressHandler(s.users, s.progress, st)

	r := mux.NewRouter()
	r.HandleFunc("/health/live", health.Live).Methods("GET")
	protected := r.PathPrefix("/api/v1").Subrouter()
	protected.Use(middleware.AuthMiddleware(middleware.HS256Verifier(helpers.TestJWTSecret)))
	protected.HandleFunc("/events", eventHandler.CreateCountEvent).Methods("POST")
	protected.HandleFunc("/events", eventHandler.ListCountEvents).Methods("GET")
	protected.HandleFunc("/journal", eventHandler.CreateJournalEntry).Methods("POST")
	protected.HandleFunc("/plan", planHandler.GetPlan).Methods("GET")
	protected.HandleFunc("/plan", planHandler.UpdatePlan).Methods("PUT")
	protected.HandleFunc("/progress", progressHandler.GetProgress).Methods("GET")
	protected.HandleFunc("/achievements", progressHandler.GetAchievements).Methods("GET")
	protected.HandleFunc("/punishment/dismiss", progressHandler.DismissPunishment).Methods("POST")
	s.router = r

	t.Cleanup(func() {
		s.notifs.Dispatcher().Stop()
		helpers.CleanupTestDB(t, pool)
	})
	return s
}

func (s *testServer) do(t *testing.T, token, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}
