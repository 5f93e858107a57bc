// -----------------------------------------------------------------------
// History Handler - execution ledger retrieval with sheet URL decoration
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
)

type HistoryHandler struct {
	storage interfaces.StorageManager
	sheets  interfaces.SheetsService
	logger  arbor.ILogger
}

func NewHistoryHandler(storage interfaces.StorageManager, sheets interfaces.SheetsService) *HistoryHandler {
	return &HistoryHandler{
		storage: storage,
		sheets:  sheets,
		logger:  common.GetLogger(),
	}
}

// ListHandler returns execution records newest-first.
// GET /api/executions?limit=N
func (h *HistoryHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.storage.ExecutionStorage().List(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list executions")
		WriteError(w, http.StatusInternalServerError, "Failed to list executions")
		return
	}

	for _, record := range records {
		h.decorate(r, record)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"executions": records,
		"count":      len(records),
	})
}

// GetHandler returns a single execution record.
// GET /api/executions/{id}
func (h *HistoryHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/executions/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Execution id required")
		return
	}

	record, err := h.storage.ExecutionStorage().Get(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to get execution")
		WriteError(w, http.StatusInternalServerError, "Failed to get execution")
		return
	}
	if record == nil {
		WriteError(w, http.StatusNotFound, "Execution not found")
		return
	}

	h.decorate(r, record)
	WriteJSON(w, http.StatusOK, record)
}

// decorate fills the derived sheet URL on a record that landed rows in a
// destination tab.
func (h *HistoryHandler) decorate(r *http.Request, record *models.ExecutionRecord) {
	if record.WorkbookID == "" || record.TabName == "" {
		return
	}
	record.SheetURL = h.sheets.SheetURL(r.Context(), record.WorkbookID, record.TabName)
}
