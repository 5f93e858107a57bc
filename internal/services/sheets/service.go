// -----------------------------------------------------------------------
// Sheets service - Google Sheets REST wrapper (read, append, tab
// management, sheet URLs)
// -----------------------------------------------------------------------

package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
)

const baseURL = "https://sheets.googleapis.com/v4/spreadsheets"

// Service wraps the Google Sheets v4 REST API.
type Service struct {
	config  *common.SheetsConfig
	tokens  interfaces.TokenService
	clock   interfaces.Clock
	logger  arbor.ILogger
	client  *http.Client
	baseURL string // overridden in tests
}

// NewService creates a sheets service.
func NewService(config *common.SheetsConfig, tokens interfaces.TokenService, clock interfaces.Clock, logger arbor.ILogger) *Service {
	return &Service{
		config:  config,
		tokens:  tokens,
		clock:   clock,
		logger:  logger,
		client:  &http.Client{Timeout: config.RequestTimeout},
		baseURL: baseURL,
	}
}

var _ interfaces.SheetsService = (*Service)(nil)

// apiCall performs an authenticated request against the spreadsheets API.
// path starts with "/<spreadsheetId>...". A nil body means GET semantics
// unless method says otherwise.
func (s *Service) apiCall(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sheets API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sheets API returned %d: %s", resp.StatusCode, truncate(string(data), 300))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// ReadRange reads a range as rows of strings.
func (s *Service) ReadRange(ctx context.Context, spreadsheetID, readRange string) ([][]string, error) {
	var result struct {
		Values [][]interface{} `json:"values"`
	}
	path := fmt.Sprintf("/%s/values/%s", spreadsheetID, url.PathEscape(readRange))
	if err := s.apiCall(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}

	rows := make([][]string, len(result.Values))
	for i, raw := range result.Values {
		row := make([]string, len(raw))
		for j, cell := range raw {
			row[j] = fmt.Sprintf("%v", cell)
		}
		rows[i] = row
	}
	return rows, nil
}

// AppendRows appends value rows to a tab, creating the tab (with headers)
// if a stale handle pointed at a tab that no longer exists.
func (s *Service) AppendRows(ctx context.Context, spreadsheetID, tabName string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	rng := formatTabNameForRange(tabName) + "!A1"
	path := fmt.Sprintf("/%s/values/%s:append?valueInputOption=USER_ENTERED&insertDataOption=INSERT_ROWS",
		spreadsheetID, url.PathEscape(rng))
	body := map[string]interface{}{"values": rows}

	err := s.apiCall(ctx, http.MethodPost, path, body, nil)
	if err != nil && strings.Contains(err.Error(), "Unable to parse range") {
		// The tab may have been deleted since it was ensured.
		if _, cerr := s.createTab(ctx, spreadsheetID, tabName); cerr != nil {
			return fmt.Errorf("failed to recreate tab %q: %w", tabName, cerr)
		}
		if herr := s.writeHeaders(ctx, spreadsheetID, tabName); herr != nil {
			return herr
		}
		err = s.apiCall(ctx, http.MethodPost, path, body, nil)
	}
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("tab", tabName).
		Int("rows", len(rows)).
		Msg("Appended rows to sheet")
	return nil
}

// tabInfo is one sheet tab's identity within a spreadsheet.
type tabInfo struct {
	SheetID int64
	Title   string
}

func (s *Service) listTabs(ctx context.Context, spreadsheetID string) ([]tabInfo, error) {
	var result struct {
		Sheets []struct {
			Properties struct {
				SheetID int64  `json:"sheetId"`
				Title   string `json:"title"`
			} `json:"properties"`
		} `json:"sheets"`
	}
	path := fmt.Sprintf("/%s?fields=sheets.properties", spreadsheetID)
	if err := s.apiCall(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}

	tabs := make([]tabInfo, len(result.Sheets))
	for i, sheet := range result.Sheets {
		tabs[i] = tabInfo{SheetID: sheet.Properties.SheetID, Title: sheet.Properties.Title}
	}
	return tabs, nil
}

func (s *Service) createTab(ctx context.Context, spreadsheetID, tabName string) (int64, error) {
	var result struct {
		Replies []struct {
			AddSheet struct {
				Properties struct {
					SheetID int64 `json:"sheetId"`
				} `json:"properties"`
			} `json:"addSheet"`
		} `json:"replies"`
	}
	body := map[string]interface{}{
		"requests": []map[string]interface{}{
			{"addSheet": map[string]interface{}{
				"properties": map[string]interface{}{"title": tabName},
			}},
		},
	}
	path := fmt.Sprintf("/%s:batchUpdate", spreadsheetID)
	if err := s.apiCall(ctx, http.MethodPost, path, body, &result); err != nil {
		return 0, err
	}
	if len(result.Replies) == 0 {
		return 0, fmt.Errorf("batchUpdate returned no replies")
	}
	return result.Replies[0].AddSheet.Properties.SheetID, nil
}

func (s *Service) writeHeaders(ctx context.Context, spreadsheetID, tabName string) error {
	rng := formatTabNameForRange(tabName) + "!A1:L1"
	path := fmt.Sprintf("/%s/values/%s?valueInputOption=USER_ENTERED", spreadsheetID, url.PathEscape(rng))
	body := map[string]interface{}{"values": [][]string{models.SheetHeaders}}
	return s.apiCall(ctx, http.MethodPut, path, body, nil)
}

// EnsureWeeklyTab ensures this week's destination tab exists, creating it
// with the header row when absent, and returns its name.
func (s *Service) EnsureWeeklyTab(ctx context.Context, spreadsheetID string) (string, error) {
	tabName := WeeklyTabName(s.clock.Now())

	tabs, err := s.listTabs(ctx, spreadsheetID)
	if err != nil {
		return "", err
	}
	for _, tab := range tabs {
		if tab.Title == tabName {
			return tabName, nil
		}
	}

	if _, err := s.createTab(ctx, spreadsheetID, tabName); err != nil {
		return "", fmt.Errorf("failed to create tab %q: %w", tabName, err)
	}
	if err := s.writeHeaders(ctx, spreadsheetID, tabName); err != nil {
		return "", fmt.Errorf("failed to write headers to %q: %w", tabName, err)
	}

	s.logger.Info().Str("tab", tabName).Str("spreadsheet", spreadsheetID).Msg("✅ Created weekly tab")
	return tabName, nil
}

// SheetURL derives a browser URL for a tab, including the tab GID when it
// can be resolved. Lookup failures degrade to the bare spreadsheet URL.
func (s *Service) SheetURL(ctx context.Context, spreadsheetID, tabName string) string {
	plain := fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/edit", spreadsheetID)
	if spreadsheetID == "" || tabName == "" {
		return plain
	}

	tabs, err := s.listTabs(ctx, spreadsheetID)
	if err != nil {
		s.logger.Debug().Err(err).Str("spreadsheet", spreadsheetID).Msg("Failed to resolve tab GID")
		return plain
	}
	for _, tab := range tabs {
		if tab.Title == tabName {
			return fmt.Sprintf("%s?gid=%d#gid=%d", plain, tab.SheetID, tab.SheetID)
		}
	}
	return plain
}

// WeeklyTabName formats the destination tab name for a date: MM_DD_YY.
func WeeklyTabName(now time.Time) string {
	return now.Format("01_02_06")
}

var rangeSpecialChars = regexp.MustCompile(`[ _\-'!]`)

// formatTabNameForRange quotes tab names containing characters the A1
// range syntax treats specially.
func formatTabNameForRange(tabName string) string {
	if rangeSpecialChars.MatchString(tabName) {
		return "'" + strings.ReplaceAll(tabName, "'", "''") + "'"
	}
	return tabName
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
