// -----------------------------------------------------------------------
// Schedule Handler - CRUD and trigger-now over the schedule store
// -----------------------------------------------------------------------

package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/coordinator"
	"github.com/ternarybob/venator/internal/models"
	"github.com/ternarybob/venator/internal/scheduler"
)

type ScheduleHandler struct {
	schedules   *scheduler.Service
	coordinator *coordinator.Coordinator
	logger      arbor.ILogger
}

func NewScheduleHandler(schedules *scheduler.Service, coord *coordinator.Coordinator) *ScheduleHandler {
	return &ScheduleHandler{
		schedules:   schedules,
		coordinator: coord,
		logger:      common.GetLogger(),
	}
}

// ListHandler returns all schedules sorted by next run time.
// GET /api/schedules
func (h *ScheduleHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	schedules, err := h.schedules.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list schedules")
		WriteError(w, http.StatusInternalServerError, "Failed to list schedules")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"schedules": schedules,
		"count":     len(schedules),
	})
}

// CreateHandler creates a new schedule.
// POST /api/schedules
func (h *ScheduleHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var schedule models.Schedule
	if err := DecodeJSON(r, &schedule); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	schedule.ID = ""

	saved, err := h.schedules.Save(r.Context(), &schedule)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info().
		Str("id", saved.ID).
		Str("source", saved.SourceName).
		Str("when", saved.Description()).
		Msg("Schedule created")
	WriteJSON(w, http.StatusCreated, saved)
}

// GetHandler returns a single schedule.
// GET /api/schedules/{id}
func (h *ScheduleHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	id := scheduleID(r)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Schedule id required")
		return
	}

	schedule, err := h.schedules.Get(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to get schedule")
		WriteError(w, http.StatusInternalServerError, "Failed to get schedule")
		return
	}
	if schedule == nil {
		WriteError(w, http.StatusNotFound, "Schedule not found")
		return
	}

	WriteJSON(w, http.StatusOK, schedule)
}

// UpdateHandler updates an existing schedule.
// PUT /api/schedules/{id}
func (h *ScheduleHandler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	id := scheduleID(r)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Schedule id required")
		return
	}

	var schedule models.Schedule
	if err := DecodeJSON(r, &schedule); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	schedule.ID = id

	saved, err := h.schedules.Save(r.Context(), &schedule)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, saved)
}

// DeleteHandler removes a schedule.
// DELETE /api/schedules/{id}
func (h *ScheduleHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	id := scheduleID(r)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Schedule id required")
		return
	}

	deleted, err := h.schedules.Delete(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to delete schedule")
		WriteError(w, http.StatusInternalServerError, "Failed to delete schedule")
		return
	}
	if !deleted {
		WriteError(w, http.StatusNotFound, "Schedule not found")
		return
	}

	WriteSuccess(w, "Schedule deleted")
}

// TriggerHandler runs a schedule immediately, or queues it if a run is
// already active.
// POST /api/schedules/{id}/trigger
func (h *ScheduleHandler) TriggerHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	id := scheduleID(r)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Schedule id required")
		return
	}

	started, err := h.coordinator.TriggerNow(r.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Schedule not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to trigger schedule")
		WriteError(w, http.StatusInternalServerError, "Failed to trigger schedule")
		return
	}

	if started {
		WriteStarted(w, "Run started")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "queued",
		"message": "A run is active; schedule queued for execution",
	})
}

// scheduleID extracts the id segment from /api/schedules/{id}[/action].
func scheduleID(r *http.Request) string {
	path := strings.TrimPrefix(r.URL.Path, "/api/schedules/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	return path
}
