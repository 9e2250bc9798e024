package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"smokeFreeAPI/internal/evaluator"
	"smokeFreeAPI/internal/event"
	"smokeFreeAPI/internal/logger"
	"smokeFreeAPI/middleware"
	"smokeFreeAPI/services"
)

type EventHandler struct {
	userService     *services.UserService
	eventService    *services.EventService
	progressService *services.ProgressService
}

func NewEventHandler(userService *services.UserService, eventService *services.EventService, progressService *services.ProgressService) *EventHandler {
	return &EventHandler{
		userService:     userService,
		eventService:    eventService,
		progressService: progressService,
	}
}

type countEventResponse struct {
	Event      *event.CountEvent `json:"event"`
	Created    bool              `json:"created"`
	Evaluation evaluator.Result  `json:"evaluation"`
}

type journalEntryResponse struct {
	Entry      *event.JournalEntry `json:"entry"`
	Created    bool                `json:"created"`
	Evaluation evaluator.Result    `json:"evaluation"`
}

func isValidationError(err error) bool {
	return errors.Is(err, event.ErrInvalidCount) ||
		errors.Is(err, event.ErrMissingID) ||
		errors.Is(err, event.ErrMissingTime) ||
		errors.Is(err, event.ErrInvalidMood)
}

func writeStoreError(w http.ResponseWriter, err error, what string) {
	switch {
	case isValidationError(err):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrEventConflict):
		respondWithError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("Failed to store "+what, "err", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to store "+what)
	}
}

// POST /api/v1/events
// 201 on first delivery, 200 when the id was already stored.
func (h *EventHandler) CreateCountEvent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if _, ok := middleware.GetClerkID(ctx); !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var ev event.CountEvent
	if err := decodeJSON(w, r, &ev); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := ev.Validate(); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, ok := currentUser(ctx, w, h.userService)
	if !ok {
		return
	}

	created, err := h.eventService.AddCountEvent(ctx, userID, &ev)
	if err != nil {
		writeStoreError(w, err, "event")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondWithJSON(w, status, countEventResponse{
		Event:      &ev,
		Created:    created,
		Evaluation: h.progressService.Evaluate(ctx, userID, services.TriggerEvent),
	})
}

// DELETE /api/v1/events/{id}
func (h *EventHandler) DeleteCountEvent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := middleware.GetClerkID(ctx); !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid event id")
		return
	}

	userID, ok := currentUser(ctx, w, h.userService)
	if !ok {
		return
	}

	err = h.eventService.RemoveCountEvent(ctx, userID, id)
	if errors.Is(err, services.ErrEventNotFound) {
		respondWithError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		logger.Error("Failed to remove event", "id", id, "err", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to remove event")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Event removed"})
}

// GET /api/v1/events?since=RFC3339
func (h *EventHandler) ListCountEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := middleware.GetClerkID(ctx); !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
			return
		}
		since = &t
	}

	userID, ok := currentUser(ctx, w, h.userService)
	if !ok {
		return
	}

	events, err := h.eventService.ListCountEvents(ctx, userID, since)
	if err != nil {
		logger.Error("Failed to list events", "err", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}
	respondWithJSON(w, http.StatusOK, events)
}

// POST /api/v1/journal
func (h *EventHandler) CreateJournalEntry(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if _, ok := middleware.GetClerkID(ctx); !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var entry event.JournalEntry
	if err := decodeJSON(w, r, &entry); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := entry.Validate(); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, ok := currentUser(ctx, w, h.userService)
	if !ok {
		return
	}

	created, err := h.eventService.AddJournalEntry(ctx, userID, &entry)
	if err != nil {
		writeStoreError(w, err, "journal entry")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondWithJSON(w, status, journalEntryResponse{
		Entry:      &entry,
		Created:    created,
		Evaluation: h.progressService.Evaluate(ctx, userID, services.TriggerEvent),
	})
}

// GET /api/v1/journal?limit=
func (h *EventHandler) ListJournalEntries(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := middleware.GetClerkID(ctx); !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, ok := currentUser(ctx, w, h.userService)
	if !ok {
		return
	}

	entries, err := h.eventService.ListJournalEntries(ctx, userID, limit)
	if err != nil {
		logger.Error("Failed to list journal entries", "err", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list journal entries")
		return
	}
	respondWithJSON(w, http.StatusOK, entries)
}
