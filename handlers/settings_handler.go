package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"smokeFreeAPI/internal/logger"
	"smokeFreeAPI/internal/settings"
	"smokeFreeAPI/middleware"
	"smokeFreeAPI/services"
)

type SettingsHandler struct {
	userService     *services.UserService
	settingsService *services.SettingsService
}

func NewSettingsHandler(userService *services.UserService, settingsService *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{
		userService:     userService,
		settingsService: settingsService,
	}
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := currentUser(ctx, w, h.userService)
	if !ok {
		return
	}
	st, err := h.settingsService.GetSettings(ctx, userID)
	if err != nil {
		logger.Error("Failed to get settings", "user", userID, "err", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to get settings")
		return
	}
	respondWithJSON(w, http.StatusOK, st)
}

func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := middleware.GetClerkID(ctx); !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var update settings.Update
	if err := decodeJSON(w, r, &update); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, ok := currentUser(ctx, w, h.userService)
	if !ok {
		return
	}

	st, err := h.settingsService.UpdateSettings(ctx, userID, update)
	if errors.Is(err, settings.ErrInvalidSettings) {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		logger.Error("Failed to update settings", "user", userID, "err", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to update settings")
		return
	}
	respondWithJSON(w, http.StatusOK, st)
}
