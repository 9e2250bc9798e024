package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"smokeFreeAPI/internal/logger"
	"smokeFreeAPI/internal/notification"
	"smokeFreeAPI/middleware"
	"smokeFreeAPI/services"
)

type NotificationHandler struct {
	userService         *services.UserService
	notificationService *services.NotificationService
}

func NewNotificationHandler(userService *services.UserService, notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		userService:         userService,
		notificationService: notificationService,
	}
}

// GET /api/v1/notifications?limit=
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := middleware.GetClerkID(ctx); !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, ok := currentUser(ctx, w, h.userService)
	if !ok {
		return
	}
	response, err := h.notificationService.ListNotifications(ctx, userID, limit)
	if err != nil {
		logger.Error("Failed to list notifications", "user", userID, "err", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list notifications")
		return
	}
	respondWithJSON(w, http.StatusOK, response)
}

// POST /api/v1/notifications/{id}/read
func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := middleware.GetClerkID(ctx); !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid notification id")
		return
	}

	userID, ok := currentUser(ctx, w, h.userService)
	if !ok {
		return
	}
	err = h.notificationService.MarkAsRead(ctx, userID, id)
	if errors.Is(err, services.ErrNotificationNotFound) {
		respondWithError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		logger.Error("Failed to mark notification read", "id", id, "err", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to mark notification read")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Notification marked as read"})
}

// POST /api/v1/notifications/register-device
func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := middleware.GetClerkID(ctx); !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req notification.RegisterDeviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, ok := currentUser(ctx, w, h.userService)
	if !ok {
		return
	}
	if err := h.notificationService.RegisterDevice(ctx, userID, req); err != nil {
		logger.Error("Failed to register device", "user", userID, "err", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to register device")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Device registered"})
}
