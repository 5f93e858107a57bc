// -----------------------------------------------------------------------
// Search resolver - reads the input sheet's Searches tab and groups
// search rows by source
// -----------------------------------------------------------------------

package sheets

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
)

const (
	searchesTabName = "Searches"
	searchesRange   = "A:C"
)

// Resolver reads search definitions from the configured input sheet.
// Rows are source connection, target job title, search URL; the first
// row is a header.
type Resolver struct {
	config *common.SheetsConfig
	sheets interfaces.SheetsService
	logger arbor.ILogger
}

// NewResolver creates a search resolver.
func NewResolver(config *common.SheetsConfig, sheets interfaces.SheetsService, logger arbor.ILogger) *Resolver {
	return &Resolver{
		config: config,
		sheets: sheets,
		logger: logger,
	}
}

var _ interfaces.SearchResolver = (*Resolver)(nil)

// SearchesForSources returns the searches belonging to each source.
func (r *Resolver) SearchesForSources(ctx context.Context, sources []string) (map[string][]models.Search, error) {
	if r.config.InputSheetID == "" {
		return nil, fmt.Errorf("input sheet is not configured")
	}

	all, err := r.readAll(ctx)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(sources))
	for _, source := range sources {
		wanted[strings.ToLower(source)] = true
	}

	grouped := make(map[string][]models.Search)
	for _, search := range all {
		if wanted[strings.ToLower(search.Source)] {
			grouped[search.Source] = append(grouped[search.Source], search)
		}
	}

	r.logger.Debug().
		Int("total", len(all)).
		Int("sources", len(grouped)).
		Msg("Resolved searches from input sheet")
	return grouped, nil
}

// readAll fetches the Searches tab, falling back to Sheet1 when the
// named tab is missing or empty.
func (r *Resolver) readAll(ctx context.Context) ([]models.Search, error) {
	rng := fmt.Sprintf("'%s'!%s", searchesTabName, searchesRange)
	rows, err := r.sheets.ReadRange(ctx, r.config.InputSheetID, rng)
	if err != nil || len(rows) < 2 {
		r.logger.Debug().Msg("Searches tab empty or missing, trying Sheet1 fallback")
		rows, err = r.sheets.ReadRange(ctx, r.config.InputSheetID, "Sheet1!A:C")
		if err != nil {
			return nil, fmt.Errorf("failed to read searches: %w", err)
		}
	}
	if len(rows) < 2 {
		return nil, nil
	}

	var searches []models.Search
	for _, row := range rows[1:] {
		search := models.Search{
			Source: cell(row, 0),
			Title:  cell(row, 1),
			URL:    cell(row, 2),
		}
		// Source and URL are required; the title is cosmetic.
		if search.Source == "" || search.URL == "" {
			continue
		}
		searches = append(searches, search)
	}
	return searches, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}
