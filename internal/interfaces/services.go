package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/venator/internal/models"
)

// Clock converts real time into the fixed reference zone all schedule math
// is evaluated in, independent of host machine locale.
type Clock interface {
	// Now returns the current time in the reference zone.
	Now() time.Time
}

// Scraper drives the navigate+extract+paginate cycle for one search in the
// single dedicated browser surface. Implementations must be safe to call
// sequentially from one goroutine; the single-flight invariant guarantees
// no two runs' scrapes overlap.
type Scraper interface {
	// ScrapeSearch runs one search to completion or ctx expiry. maxPages
	// caps result pages when > 0. Extracted rows are handed to the sink
	// as each page completes.
	ScrapeSearch(ctx context.Context, search models.Search, maxPages int, sink RowSink) (*models.ScrapeResult, error)

	// Noise visits a random benign page to break up the scrape traffic
	// pattern. Errors are the caller's to ignore.
	Noise(ctx context.Context) error

	// Stop requests early termination of the in-flight search. The search
	// stops at its next page boundary.
	Stop()
}

// SearchResolver reads the configured input sheet and groups its search
// rows by source.
type SearchResolver interface {
	// SearchesForSources returns the searches belonging to each of the
	// given sources. Sources with no searches are absent from the map.
	SearchesForSources(ctx context.Context, sources []string) (map[string][]models.Search, error)
}

// RowSink receives extracted profile rows. The destination workbook and
// tab are bound by the caller before the sink reaches the scraper.
type RowSink interface {
	AddRows(ctx context.Context, rows []models.ProfileRow) error
}

// RowQueue durably queues extracted rows for delivery to a workbook tab.
type RowQueue interface {
	AddRows(ctx context.Context, rows []models.ProfileRow, workbookID, tabName string) error
}

// SheetsService wraps the Google Sheets REST API.
type SheetsService interface {
	// ReadRange reads a range ("Tab!A:C") as rows of strings.
	ReadRange(ctx context.Context, spreadsheetID, readRange string) ([][]string, error)

	// AppendRows appends value rows to a tab.
	AppendRows(ctx context.Context, spreadsheetID, tabName string, rows [][]string) error

	// EnsureWeeklyTab ensures this week's destination tab exists (creating
	// it with the header row when absent) and returns its name.
	EnsureWeeklyTab(ctx context.Context, spreadsheetID string) (string, error)

	// SheetURL derives a browser URL for a tab, including the tab GID
	// when it can be resolved.
	SheetURL(ctx context.Context, spreadsheetID, tabName string) string
}

// TokenService acquires Google API access tokens.
type TokenService interface {
	// AccessToken returns a valid bearer token, refreshing if needed.
	// It returns an error when credentials are unconfigured or invalid.
	AccessToken(ctx context.Context) (string, error)
}

// Notifier delivers fire-and-forget webhook notifications. Failures are
// swallowed; a run never fails because a webhook failed.
type Notifier interface {
	Notify(ctx context.Context, event models.EventType, payload models.NotificationPayload)
}

// SourceMapper resolves the destination workbook for a source.
type SourceMapper interface {
	// WorkbookFor returns the workbook id mapped to the source, or empty
	// when no mapping exists.
	WorkbookFor(ctx context.Context, sourceName string) (string, error)
}
