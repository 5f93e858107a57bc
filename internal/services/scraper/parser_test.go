package scraper

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var parseNow = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

func resultCard(name, href, title, location string) string {
	return fmt.Sprintf(`
<li class="reusable-search__result-container">
  <a href="%s">
    <span aria-hidden="true">%s</span>
    <span class="visually-hidden">View profile</span>
  </a>
  <div class="entity-result__primary-subtitle">%s</div>
  <div class="entity-result__secondary-subtitle">%s</div>
</li>`, href, name, title, location)
}

func resultsPage(cards ...string) string {
	return `<html><body><ul>` + strings.Join(cards, "\n") + `</ul>` +
		`<button aria-label="Next">Next</button></body></html>`
}

func TestParseResultsExtractsProfileCards(t *testing.T) {
	html := resultsPage(
		resultCard("Jane Doe", "https://www.linkedin.com/in/janedoe?miniProfileUrn=abc", "Forensic Accountant", "Sydney, Australia"),
		resultCard("John Smith, CPA, CFE", "/in/jsmith/", "Partner", "Melbourne"),
	)

	rows, err := parseResults(html, "Acme Referrals", parseNow)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, "Jane Doe", first.Name)
	assert.Equal(t, "https://www.linkedin.com/in/janedoe", first.ProfileURL, "expected query-stripped URL")
	assert.Equal(t, "Forensic Accountant", first.Title)
	assert.Equal(t, "Sydney, Australia", first.Location)
	assert.Equal(t, "Acme Referrals", first.ConnectionSource)
	assert.Equal(t, "03/04/2026", first.Date)

	second := rows[1]
	assert.Equal(t, "John Smith", second.Name, "expected credentials stripped from name")
	assert.Equal(t, []string{"CPA", "CFE"}, second.Accreditations)
	assert.Equal(t, "https://www.linkedin.com/in/jsmith", second.ProfileURL, "expected relative href resolved")
}

func TestParseResultsSkipsCardsWithoutProfileLink(t *testing.T) {
	html := resultsPage(
		`<li class="reusable-search__result-container"><span>Promoted result</span></li>`,
		resultCard("Jane Doe", "/in/janedoe", "Director", "Brisbane"),
	)

	rows, err := parseResults(html, "Acme", parseNow)
	require.NoError(t, err)
	require.Len(t, rows, 1, "expected only the linked card")
	assert.Equal(t, "Jane Doe", rows[0].Name)
}

func TestParseResultsFallsBackToNewMarkup(t *testing.T) {
	html := `<html><body>
<div data-view-name="search-entity-result-universal-template">
  <a href="https://www.linkedin.com/in/newstyle">
    <span aria-hidden="true">New Style</span>
  </a>
  <div class="t-14 t-black t-normal">Analyst</div>
  <div class="t-14 t-normal">Perth</div>
</div>
</body></html>`

	rows, err := parseResults(html, "Acme", parseNow)
	require.NoError(t, err)
	require.Len(t, rows, 1, "expected 1 row from fallback selector")
	assert.Equal(t, "New Style", rows[0].Name)
	assert.Equal(t, "Analyst", rows[0].Title)
}

func TestParseResultsEmptyPage(t *testing.T) {
	rows, err := parseResults("<html><body><p>No results found</p></body></html>", "Acme", parseNow)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSplitAccreditationsCapsList(t *testing.T) {
	name, accs := splitAccreditations("Jane Doe, A, B, C, D, E, F, G, H")
	assert.Equal(t, "Jane Doe", name)
	assert.Len(t, accs, maxAccreditations)
}

func TestNormalizeProfileURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://www.linkedin.com/in/jane?trk=search", "https://www.linkedin.com/in/jane"},
		{"http://www.linkedin.com/in/jane/", "https://www.linkedin.com/in/jane"},
		{"/in/jane", "https://www.linkedin.com/in/jane"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, normalizeProfileURL(tc.in), "normalizeProfileURL(%q)", tc.in)
	}
}

func TestHasNextPage(t *testing.T) {
	assert.True(t, hasNextPage(resultsPage(resultCard("Jane", "/in/jane", "x", "y"))), "expected next page when button enabled")
	assert.False(t, hasNextPage(`<html><body><button aria-label="Next" disabled>Next</button></body></html>`), "expected no next page when button disabled")
	assert.False(t, hasNextPage(`<html><body></body></html>`), "expected no next page when button absent")
}

func TestWithPageParam(t *testing.T) {
	url, err := withPageParam("https://www.linkedin.com/search/results/people/?keywords=cpa", 3)
	require.NoError(t, err)
	assert.Contains(t, url, "page=3")
	assert.Contains(t, url, "keywords=cpa")

	url, err = withPageParam("https://www.linkedin.com/search/results/people/?keywords=cpa", 1)
	require.NoError(t, err)
	assert.NotContains(t, url, "page=", "page 1 should not carry a page param")
}
