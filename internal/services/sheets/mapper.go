// -----------------------------------------------------------------------
// Source mapper - resolves a source's destination workbook from the
// input sheet's mapping tab
// -----------------------------------------------------------------------

package sheets

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/interfaces"
)

const (
	mappingsTabName = "Mapping and Schedules"
	mappingsRange   = "A:H"

	mappingCacheTTL = 5 * time.Minute
)

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)

// Mapper reads the source-to-workbook mapping tab. Column A is the
// source name, column B the destination workbook URL. The mapping is
// cached briefly to keep tick-time lookups cheap.
type Mapper struct {
	config *common.SheetsConfig
	sheets interfaces.SheetsService
	clock  interfaces.Clock
	logger arbor.ILogger

	mu        sync.Mutex
	cache     map[string]string
	fetchedAt time.Time
}

// NewMapper creates a source mapper.
func NewMapper(config *common.SheetsConfig, sheets interfaces.SheetsService, clock interfaces.Clock, logger arbor.ILogger) *Mapper {
	return &Mapper{
		config: config,
		sheets: sheets,
		clock:  clock,
		logger: logger,
	}
}

var _ interfaces.SourceMapper = (*Mapper)(nil)

// WorkbookFor returns the workbook id mapped to the source, or empty
// when no mapping exists.
func (m *Mapper) WorkbookFor(ctx context.Context, sourceName string) (string, error) {
	mapping, err := m.mapping(ctx)
	if err != nil {
		return "", err
	}
	return mapping[strings.ToLower(sourceName)], nil
}

func (m *Mapper) mapping(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if m.cache != nil && now.Sub(m.fetchedAt) < mappingCacheTTL {
		return m.cache, nil
	}

	if m.config.InputSheetID == "" {
		return nil, fmt.Errorf("input sheet is not configured")
	}

	rng := fmt.Sprintf("'%s'!%s", mappingsTabName, mappingsRange)
	rows, err := m.sheets.ReadRange(ctx, m.config.InputSheetID, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping tab: %w", err)
	}

	mapping := make(map[string]string)
	if len(rows) > 1 {
		for _, row := range rows[1:] {
			source := cell(row, 0)
			workbookID := ExtractSpreadsheetID(cell(row, 1))
			if source == "" || workbookID == "" {
				continue
			}
			mapping[strings.ToLower(source)] = workbookID
		}
	}

	m.logger.Debug().Int("mappings", len(mapping)).Msg("Loaded source-to-workbook mapping")
	m.cache = mapping
	m.fetchedAt = now
	return mapping, nil
}

// Invalidate drops the cached mapping so the next lookup re-reads the tab.
func (m *Mapper) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = nil
}

// ExtractSpreadsheetID pulls the spreadsheet id out of a Sheets URL. A
// bare id passes through unchanged.
func ExtractSpreadsheetID(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if match := spreadsheetIDPattern.FindStringSubmatch(value); match != nil {
		return match[1]
	}
	if strings.Contains(value, "/") {
		return ""
	}
	return value
}
