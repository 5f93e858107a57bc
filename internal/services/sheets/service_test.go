package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/common"
)

type staticClock struct{ now time.Time }

func (c staticClock) Now() time.Time { return c.now }

type staticTokens struct{}

func (staticTokens) AccessToken(ctx context.Context) (string, error) { return "test-token", nil }

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc := NewService(
		&common.SheetsConfig{InputSheetID: "input-sheet", RequestTimeout: 5 * time.Second},
		staticTokens{},
		staticClock{now: time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)},
		arbor.NewLogger(),
	)
	svc.baseURL = server.URL
	return svc
}

func TestWeeklyTabName(t *testing.T) {
	name := WeeklyTabName(time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, "03_04_26", name)
}

func TestFormatTabNameForRange(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Sheet1", "Sheet1"},
		{"03_04_26", "'03_04_26'"},
		{"Mapping and Schedules", "'Mapping and Schedules'"},
		{"Bob's Tab", "'Bob''s Tab'"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatTabNameForRange(tt.in), "formatTabNameForRange(%q)", tt.in)
	}
}

func TestExtractSpreadsheetID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://docs.google.com/spreadsheets/d/1AbC_d-9xyz/edit#gid=0", "1AbC_d-9xyz"},
		{"1AbC_d-9xyz", "1AbC_d-9xyz"},
		{"", ""},
		{"https://example.com/not-a-sheet", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractSpreadsheetID(tt.in), "ExtractSpreadsheetID(%q)", tt.in)
	}
}

func TestReadRangeSendsBearerToken(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"values": [][]interface{}{{"Source", "Title", "URL"}, {"Acme", "CTO", "https://x"}},
		})
	})

	rows, err := svc.ReadRange(context.Background(), "sheet1", "Searches!A:C")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Acme", rows[1][0])
}

func TestEnsureWeeklyTabCreatesMissingTab(t *testing.T) {
	var created, headersWritten bool
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			// Tab listing without this week's tab.
			json.NewEncoder(w).Encode(map[string]interface{}{
				"sheets": []map[string]interface{}{
					{"properties": map[string]interface{}{"sheetId": 0, "title": "Sheet1"}},
				},
			})
		case strings.Contains(r.URL.Path, ":batchUpdate"):
			created = true
			json.NewEncoder(w).Encode(map[string]interface{}{
				"replies": []map[string]interface{}{
					{"addSheet": map[string]interface{}{
						"properties": map[string]interface{}{"sheetId": 77},
					}},
				},
			})
		case r.Method == http.MethodPut:
			headersWritten = true
			var body map[string][][]string
			json.NewDecoder(r.Body).Decode(&body)
			require.Len(t, body["values"], 1, "unexpected header row")
			assert.Equal(t, "Date", body["values"][0][0])
			w.Write([]byte("{}"))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL)
		}
	})

	tabName, err := svc.EnsureWeeklyTab(context.Background(), "wb1")
	require.NoError(t, err)
	assert.Equal(t, "03_04_26", tabName)
	assert.True(t, created, "tab not created")
	assert.True(t, headersWritten, "headers not written")
}

func TestEnsureWeeklyTabReturnsExistingTab(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method, "no mutation expected: %s %s", r.Method, r.URL)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sheets": []map[string]interface{}{
				{"properties": map[string]interface{}{"sheetId": 42, "title": "03_04_26"}},
			},
		})
	})

	tabName, err := svc.EnsureWeeklyTab(context.Background(), "wb1")
	require.NoError(t, err)
	assert.Equal(t, "03_04_26", tabName)
}

func TestSheetURLIncludesGID(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sheets": []map[string]interface{}{
				{"properties": map[string]interface{}{"sheetId": 42, "title": "03_04_26"}},
			},
		})
	})

	url := svc.SheetURL(context.Background(), "wb1", "03_04_26")
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/wb1/edit?gid=42#gid=42", url)

	// Unknown tab degrades to the bare spreadsheet URL.
	url = svc.SheetURL(context.Background(), "wb1", "missing")
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/wb1/edit", url)
}

func TestResolverGroupsBySource(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"values": [][]interface{}{
				{"Source Connection", "Target Job Title", "LinkedIn URL"},
				{"Acme", "CTO", "https://linkedin.com/search/1"},
				{"Acme", "VP Eng", "https://linkedin.com/search/2"},
				{"Globex", "CFO", "https://linkedin.com/search/3"},
				{"", "orphan", "https://linkedin.com/search/4"},
				{"NoURL", "skipped", ""},
			},
		})
	})
	resolver := NewResolver(&common.SheetsConfig{InputSheetID: "input-sheet"}, svc, arbor.NewLogger())

	grouped, err := resolver.SearchesForSources(context.Background(), []string{"Acme"})
	require.NoError(t, err)
	require.Len(t, grouped, 1)
	require.Len(t, grouped["Acme"], 2)
	assert.Equal(t, "VP Eng", grouped["Acme"][1].Title, "row order not preserved")
}

func TestMapperResolvesWorkbookFromURL(t *testing.T) {
	var calls int
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"values": [][]interface{}{
				{"Name", "Sheet URL"},
				{"Acme", "https://docs.google.com/spreadsheets/d/wb-acme-id/edit"},
			},
		})
	})
	clock := staticClock{now: time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)}
	mapper := NewMapper(&common.SheetsConfig{InputSheetID: "input-sheet"}, svc, clock, arbor.NewLogger())

	ctx := context.Background()
	workbook, err := mapper.WorkbookFor(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "wb-acme-id", workbook)

	// Second lookup inside the TTL hits the cache.
	_, err = mapper.WorkbookFor(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "expected 1 API call")

	// Unknown source maps to empty, not an error.
	workbook, err = mapper.WorkbookFor(ctx, "Unknown")
	require.NoError(t, err)
	assert.Empty(t, workbook)
}
