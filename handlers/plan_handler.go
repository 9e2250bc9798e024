package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"smokeFreeAPI/internal/logger"
	"smokeFreeAPI/internal/plan"
	"smokeFreeAPI/middleware"
	"smokeFreeAPI/services"
)

const maxScheduleDays = 366

type PlanHandler struct {
	userService     *services.UserService
	planService     *services.PlanService
	settingsService *services.SettingsService
}

func NewPlanHandler(userService *services.UserService, planService *services.PlanService, settingsService *services.SettingsService) *PlanHandler {
	return &PlanHandler{
		userService:     userService,
		planService:     planService,
		settingsService: settingsService,
	}
}

type targetResponse struct {
	Date   string `json:"date"`
	Target int    `json:"target"`
}

func (h *PlanHandler) loadPlan(ctx context.Context, w http.ResponseWriter) (*plan.QuitPlan, *time.Location, bool) {
	userID, ok := currentUser(ctx, w, h.userService)
	if !ok {
		return nil, nil, false
	}
	p, err := h.planService.GetPlan(ctx, userID)
	if errors.Is(err, services.ErrPlanNotFound) {
		respondWithError(w, http.StatusNotFound, "No quit plan yet")
		return nil, nil, false
	}
	if err != nil {
		logger.Error("Failed to get plan", "user", userID, "err", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to get plan")
		return nil, nil, false
	}
	st, err := h.settingsService.GetSettings(ctx, userID)
	if err != nil {
		logger.Error("Failed to get settings", "user", userID, "err", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to get settings")
		return nil, nil, false
	}
	return p, st.Location(), true
}

func (h *PlanHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := middleware.GetClerkID(ctx); !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	p, _, ok := h.loadPlan(ctx, w)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

// PUT /api/v1/plan
// Omitted fields keep their current value; the first PUT must be complete.
func (h *PlanHandler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := middleware.GetClerkID(ctx); !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var update plan.PlanUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, ok := currentUser(ctx, w, h.userService)
	if !ok {
		return
	}

	p, err := h.planService.UpdatePlan(ctx, userID, update)
	var invalid *plan.InvalidPlanError
	if errors.As(err, &invalid) {
		respondWithError(w, http.StatusBadRequest, invalid.Error())
		return
	}
	if err != nil {
		logger.Error("Failed to update plan", "user", userID, "err", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to update plan")
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

// GET /api/v1/plan/target?date=YYYY-MM-DD
// The date defaults to today in the user's timezone.
func (h *PlanHandler) GetTarget(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := middleware.GetClerkID(ctx); !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	if _, _, err := queryDate(r, "date", time.UTC); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, loc, ok := h.loadPlan(ctx, w)
	if !ok {
		return
	}
	day, given, _ := queryDate(r, "date", loc)
	if !given {
		day = time.Now().In(loc)
	}

	target, err := plan.DailyTarget(*p, day)
	if err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, targetResponse{Date: day.Format(time.DateOnly), Target: target})
}

// GET /api/v1/plan/schedule?days=N&from=YYYY-MM-DD
func (h *PlanHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := middleware.GetClerkID(ctx); !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	days, err := queryInt(r, "days", 7)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if days < 1 || days > maxScheduleDays {
		respondWithError(w, http.StatusBadRequest, "days must be between 1 and 366")
		return
	}
	if _, _, err := queryDate(r, "from", time.UTC); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, loc, ok := h.loadPlan(ctx, w)
	if !ok {
		return
	}
	from, given, _ := queryDate(r, "from", loc)
	if !given {
		from = time.Now().In(loc)
	}

	schedule, err := plan.Schedule(*p, from, days)
	if err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, schedule)
}
