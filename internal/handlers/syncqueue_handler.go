// -----------------------------------------------------------------------
// Sync Queue Handler - delivery queue status and failed-rows maintenance
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/services/syncqueue"
)

type SyncQueueHandler struct {
	queue   *syncqueue.Service
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

func NewSyncQueueHandler(queue *syncqueue.Service, storage interfaces.StorageManager) *SyncQueueHandler {
	return &SyncQueueHandler{
		queue:   queue,
		storage: storage,
		logger:  common.GetLogger(),
	}
}

// StatusHandler reports queued and dead-lettered row batches.
// GET /api/sync/status
func (h *SyncQueueHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	ctx := r.Context()
	pending, err := h.storage.SyncQueueStorage().List(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list sync queue")
		WriteError(w, http.StatusInternalServerError, "Failed to list sync queue")
		return
	}
	failed, err := h.storage.SyncQueueStorage().ListFailed(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list failed rows")
		WriteError(w, http.StatusInternalServerError, "Failed to list failed rows")
		return
	}

	pendingRows, failedRows := 0, 0
	for _, item := range pending {
		pendingRows += len(item.Rows)
	}
	for _, item := range failed {
		failedRows += len(item.Rows)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"pending_batches": len(pending),
		"pending_rows":    pendingRows,
		"failed_batches":  len(failed),
		"failed_rows":     failedRows,
		"failed":          failed,
	})
}

// ProcessHandler forces an immediate delivery pass.
// POST /api/sync/process
func (h *SyncQueueHandler) ProcessHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	result, err := h.queue.ProcessQueue(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Sync queue processing failed")
		WriteError(w, http.StatusInternalServerError, "Sync queue processing failed")
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// RetryFailedHandler re-queues dead-lettered batches with reset retry
// counters.
// POST /api/sync/failed/retry
func (h *SyncQueueHandler) RetryFailedHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	requeued, err := h.queue.RetryFailed(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to retry failed rows")
		WriteError(w, http.StatusInternalServerError, "Failed to retry failed rows")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "success",
		"requeued": requeued,
	})
}

// ClearFailedHandler discards all dead-lettered batches.
// DELETE /api/sync/failed
func (h *SyncQueueHandler) ClearFailedHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	if err := h.storage.SyncQueueStorage().ClearFailed(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("Failed to clear failed rows")
		WriteError(w, http.StatusInternalServerError, "Failed to clear failed rows")
		return
	}

	WriteSuccess(w, "Failed rows cleared")
}
