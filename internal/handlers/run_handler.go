// -----------------------------------------------------------------------
// Run Handler - manual run start/stop and live run status
// -----------------------------------------------------------------------

package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/coordinator"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
)

type RunHandler struct {
	coordinator *coordinator.Coordinator
	storage     interfaces.StorageManager
	logger      arbor.ILogger
}

func NewRunHandler(coord *coordinator.Coordinator, storage interfaces.StorageManager) *RunHandler {
	return &RunHandler{
		coordinator: coord,
		storage:     storage,
		logger:      common.GetLogger(),
	}
}

type startRunRequest struct {
	SourceName string `json:"source_name"`
	MaxPages   int    `json:"max_pages,omitempty"`
}

// StartHandler begins a manual run for one source.
// POST /api/run/start
func (h *RunHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req startRunRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.SourceName == "" {
		WriteError(w, http.StatusBadRequest, "source_name is required")
		return
	}

	executionID, err := h.coordinator.StartManualRun(r.Context(), req.SourceName, req.MaxPages)
	if err != nil {
		if errors.Is(err, coordinator.ErrRunActive) {
			WriteError(w, http.StatusConflict, "A run is already active")
			return
		}
		h.logger.Error().Err(err).Str("source", req.SourceName).Msg("Failed to start manual run")
		WriteError(w, http.StatusInternalServerError, "Failed to start run")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status":       "started",
		"execution_id": executionID,
	})
}

// StopHandler aborts the active manual run at its next unit boundary.
// POST /api/run/stop
func (h *RunHandler) StopHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if err := h.coordinator.StopManualRun(r.Context()); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteSuccess(w, "Stop requested; run ends at next search boundary")
}

// StatusHandler reports live run state and the pending queue.
// GET /api/status
func (h *RunHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	ctx := r.Context()
	auto, err := h.storage.RunStateStorage().GetRunState(ctx, models.RunModeAuto)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read scheduled run state")
		WriteError(w, http.StatusInternalServerError, "Failed to read run state")
		return
	}
	manual, err := h.storage.RunStateStorage().GetRunState(ctx, models.RunModeManual)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read manual run state")
		WriteError(w, http.StatusInternalServerError, "Failed to read run state")
		return
	}
	pending, err := h.storage.PendingStorage().List(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list pending queue")
		WriteError(w, http.StatusInternalServerError, "Failed to list pending queue")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"scheduled_run": auto,
		"manual_run":    manual,
		"pending":       pending,
		"pending_count": len(pending),
	})
}
