package handlers

import (
	"context"
	"net/http"
	"time"

	"smokeFreeAPI/internal/logger"
	"smokeFreeAPI/services"
)

type ProgressHandler struct {
	userService     *services.UserService
	progressService *services.ProgressService
	settingsService *services.SettingsService
}

func NewProgressHandler(userService *services.UserService, progressService *services.ProgressService, settingsService *services.SettingsService) *ProgressHandler {
	return &ProgressHandler{
		userService:     userService,
		progressService: progressService,
		settingsService: settingsService,
	}
}

// GET /api/v1/progress
// Always 200; a failed evaluation comes back with skipped set.
func (h *ProgressHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := currentUser(ctx, w, h.userService)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, h.progressService.Evaluate(ctx, userID, services.TriggerOnDemand))
}

func (h *ProgressHandler) GetAchievements(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := currentUser(ctx, w, h.userService)
	if !ok {
		return
	}
	list, err := h.progressService.Achievements(ctx, userID)
	if err != nil {
		logger.Error("Failed to list achievements", "user", userID, "err", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list achievements")
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

// POST /api/v1/punishment/dismiss
func (h *ProgressHandler) DismissPunishment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := currentUser(ctx, w, h.userService)
	if !ok {
		return
	}
	until, err := h.settingsService.DismissPunishment(ctx, userID, time.Now())
	if err != nil {
		logger.Error("Failed to dismiss punishment", "user", userID, "err", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to dismiss punishment")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]time.Time{"dismissedUntil": until})
}
