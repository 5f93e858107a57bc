// -----------------------------------------------------------------------
// Scrape types - Searches, extracted profile rows, and scrape results
// -----------------------------------------------------------------------

package models

import "time"

// Search is one scrape target (a saved LinkedIn search) belonging to a
// source. Searches are read from the input sheet, columns source/title/url.
type Search struct {
	Source string `json:"source"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

// ProfileRow is one extracted profile, in destination-sheet column order.
type ProfileRow struct {
	Date             string   `json:"date"`
	Name             string   `json:"name"`
	Title            string   `json:"title"`
	Location         string   `json:"location"`
	ConnectionSource string   `json:"connection_source"`
	ProfileURL       string   `json:"profile_url"`
	Accreditations   []string `json:"accreditations,omitempty"`
}

// SheetHeaders is the destination-tab header row, written once when a
// weekly tab is created.
var SheetHeaders = []string{
	"Date",
	"Name",
	"Title",
	"Location",
	"Connection Source",
	"LinkedIn URL",
	"Accreditation 1",
	"Accreditation 2",
	"Accreditation 3",
	"Accreditation 4",
	"Accreditation 5",
	"Accreditation 6",
}

// Values flattens the row into the destination-sheet column order.
func (r *ProfileRow) Values() []string {
	values := []string{r.Date, r.Name, r.Title, r.Location, r.ConnectionSource, r.ProfileURL}
	for i := 0; i < 6; i++ {
		if i < len(r.Accreditations) {
			values = append(values, r.Accreditations[i])
		} else {
			values = append(values, "")
		}
	}
	return values
}

// ScrapeResult is the completion signal delivered after one search's
// navigate+extract+paginate cycle.
type ScrapeResult struct {
	TotalProfiles int    `json:"total_profiles"`
	TotalPages    int    `json:"total_pages"`
	Aborted       bool   `json:"aborted,omitempty"`
	Timeout       bool   `json:"timeout,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// QueueItem is one batch of rows awaiting durable delivery to a sheet tab.
type QueueItem struct {
	ID            string       `json:"id"`
	SpreadsheetID string       `json:"spreadsheet_id"`
	TabName       string       `json:"tab_name"`
	Rows          []ProfileRow `json:"rows"`
	RetryCount    int          `json:"retry_count"`
	CreatedAt     time.Time    `json:"created_at"`
	LastAttempt   *time.Time   `json:"last_attempt,omitempty"`
	Error         string       `json:"error,omitempty"`
}
