package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/services/sheets"
)

// MappingHandler exposes maintenance over the source→workbook mapping
// cache.
type MappingHandler struct {
	mapper *sheets.Mapper
	logger arbor.ILogger
}

func NewMappingHandler(mapper *sheets.Mapper) *MappingHandler {
	return &MappingHandler{
		mapper: mapper,
		logger: common.GetLogger(),
	}
}

// RefreshHandler drops the cached mapping so the next lookup re-reads the
// control spreadsheet.
// POST /api/mapping/refresh
func (h *MappingHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	h.mapper.Invalidate()
	WriteSuccess(w, "Mapping cache invalidated")
}
