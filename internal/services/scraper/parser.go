// -----------------------------------------------------------------------
// Result parsing - extract profile rows from search result markup
// -----------------------------------------------------------------------

package scraper

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/venator/internal/models"
)

// resultSelectors are tried in order; the markup shifts between rollouts
// so each generation's container selector is kept as a fallback.
var resultSelectors = []string{
	"li.reusable-search__result-container",
	"div[data-view-name='search-entity-result-universal-template']",
	"li.search-result",
}

const maxAccreditations = 6

// parseResults extracts profile rows from a search results page.
// sourceName is stamped into each row's connection-source column.
func parseResults(html, sourceName string, now time.Time) ([]models.ProfileRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var cards *goquery.Selection
	for _, selector := range resultSelectors {
		cards = doc.Find(selector)
		if cards.Length() > 0 {
			break
		}
	}
	if cards == nil || cards.Length() == 0 {
		return nil, nil
	}

	date := now.Format("01/02/2006")
	var rows []models.ProfileRow
	cards.Each(func(_ int, card *goquery.Selection) {
		row := parseCard(card, sourceName, date)
		if row.Name != "" && row.ProfileURL != "" {
			rows = append(rows, row)
		}
	})
	return rows, nil
}

func parseCard(card *goquery.Selection, sourceName, date string) models.ProfileRow {
	row := models.ProfileRow{
		Date:             date,
		ConnectionSource: sourceName,
	}

	link := card.Find("a[href*='/in/']").First()
	if href, ok := link.Attr("href"); ok {
		row.ProfileURL = normalizeProfileURL(href)
	}

	name := link.Find("span[aria-hidden='true']").First().Text()
	if name == "" {
		name = link.Text()
	}
	row.Name, row.Accreditations = splitAccreditations(cleanText(name))

	title := card.Find(".entity-result__primary-subtitle").First().Text()
	if title == "" {
		title = card.Find("div.t-14.t-black.t-normal").First().Text()
	}
	row.Title = cleanText(title)

	location := card.Find(".entity-result__secondary-subtitle").First().Text()
	if location == "" {
		location = card.Find("div.t-14.t-normal:not(.t-black)").First().Text()
	}
	row.Location = cleanText(location)

	return row
}

// splitAccreditations separates credential suffixes ("Jane Doe, CPA,
// CFE") from the display name.
func splitAccreditations(name string) (string, []string) {
	parts := strings.Split(name, ",")
	if len(parts) == 1 {
		return name, nil
	}

	var accreditations []string
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if len(accreditations) < maxAccreditations {
			accreditations = append(accreditations, part)
		}
	}
	return strings.TrimSpace(parts[0]), accreditations
}

// normalizeProfileURL strips query params and tracking from a profile
// link and forces https.
func normalizeProfileURL(href string) string {
	if href == "" {
		return ""
	}
	if i := strings.Index(href, "?"); i >= 0 {
		href = href[:i]
	}
	href = strings.TrimRight(href, "/")
	if strings.HasPrefix(href, "http://") {
		href = "https://" + strings.TrimPrefix(href, "http://")
	}
	if strings.HasPrefix(href, "/in/") {
		href = "https://www.linkedin.com" + href
	}
	return href
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// hasNextPage reports whether the results page advertises another page.
func hasNextPage(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	next := doc.Find("button[aria-label='Next']").First()
	if next.Length() == 0 {
		return false
	}
	_, disabled := next.Attr("disabled")
	return !disabled
}
