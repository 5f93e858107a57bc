// -----------------------------------------------------------------------
// Scraper service - chromedp-driven navigate+extract+paginate cycle
//
// One browser surface serves all scraping; the coordinator's
// single-flight guard guarantees searches never overlap.
// -----------------------------------------------------------------------

package scraper

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
	"golang.org/x/time/rate"
)

const resultsPerPage = 10

// Service drives a headless Chrome surface through search result pages.
type Service struct {
	config *common.ScraperConfig
	clock  interfaces.Clock
	logger arbor.ILogger

	// limiter paces page navigations independently of the randomized
	// waits, as a floor under burst navigation.
	limiter *rate.Limiter

	mu        sync.Mutex
	allocCtx  context.Context
	allocStop context.CancelFunc

	stopFlag atomic.Bool
}

// NewService creates a scraper. The browser starts lazily on first use.
func NewService(config *common.ScraperConfig, clock interfaces.Clock, logger arbor.ILogger) *Service {
	return &Service{
		config:  config,
		clock:   clock,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

var _ interfaces.Scraper = (*Service)(nil)

// browserContext returns the shared allocator, starting Chrome if needed.
func (s *Service) browserContext() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.allocCtx != nil && s.allocCtx.Err() == nil {
		return s.allocCtx, nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.config.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(s.config.UserAgent),
	)
	s.allocCtx, s.allocStop = chromedp.NewExecAllocator(context.Background(), opts...)
	s.logger.Info().Bool("headless", s.config.Headless).Msg("Browser allocator started")
	return s.allocCtx, nil
}

// ScrapeSearch runs one search to completion or ctx expiry, handing each
// page's rows to the sink as it is extracted.
func (s *Service) ScrapeSearch(ctx context.Context, search models.Search, maxPages int, sink interfaces.RowSink) (*models.ScrapeResult, error) {
	s.stopFlag.Store(false)

	allocCtx, err := s.browserContext()
	if err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	// Tie the tab to the caller's deadline.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cancelTab()
		case <-done:
		}
	}()

	if maxPages <= 0 || maxPages > s.config.MaxPages {
		maxPages = s.config.MaxPages
	}

	result := &models.ScrapeResult{}
	for page := 1; page <= maxPages; page++ {
		if s.stopFlag.Load() {
			result.Aborted = true
			result.Reason = "stopped"
			break
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return result, err
		}

		html, err := s.loadPage(tabCtx, search.URL, page)
		if err != nil {
			if ctx.Err() != nil {
				result.Timeout = ctx.Err() == context.DeadlineExceeded
				return result, ctx.Err()
			}
			return result, fmt.Errorf("failed to load page %d: %w", page, err)
		}

		rows, err := parseResults(html, search.Source, s.clock.Now())
		if err != nil {
			return result, fmt.Errorf("failed to parse page %d: %w", page, err)
		}
		result.TotalPages = page

		if len(rows) > 0 {
			if err := sink.AddRows(ctx, rows); err != nil {
				return result, fmt.Errorf("failed to queue rows: %w", err)
			}
			result.TotalProfiles += len(rows)
		}

		s.logger.Debug().
			Str("search", search.Title).
			Int("page", page).
			Int("profiles", len(rows)).
			Msg("Page scraped")

		// An empty or final page ends the search.
		if len(rows) < resultsPerPage || !hasNextPage(html) {
			break
		}

		s.pageWait(ctx)
	}

	return result, nil
}

// loadPage navigates to one result page and returns its rendered markup.
func (s *Service) loadPage(tabCtx context.Context, searchURL string, page int) (string, error) {
	pageURL, err := withPageParam(searchURL, page)
	if err != nil {
		return "", err
	}

	var html string
	err = chromedp.Run(tabCtx,
		emulation.SetUserAgentOverride(s.config.UserAgent),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", err
	}
	return html, nil
}

// withPageParam sets the result-page query parameter on a search URL.
func withPageParam(searchURL string, page int) (string, error) {
	parsed, err := url.Parse(searchURL)
	if err != nil {
		return "", fmt.Errorf("invalid search URL: %w", err)
	}
	if page > 1 {
		query := parsed.Query()
		query.Set("page", strconv.Itoa(page))
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}

// pageWait sleeps a randomized interval between result pages.
func (s *Service) pageWait(ctx context.Context) {
	min, max := s.config.PageWaitMin, s.config.PageWaitMax
	wait := min
	if max > min {
		wait = min + time.Duration(rand.Int63n(int64(max-min)))
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Noise visits a random benign page to break up the traffic pattern.
func (s *Service) Noise(ctx context.Context) error {
	if len(s.config.NoiseURLs) == 0 {
		return nil
	}

	allocCtx, err := s.browserContext()
	if err != nil {
		return err
	}
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	target := s.config.NoiseURLs[rand.Intn(len(s.config.NoiseURLs))]
	duration := s.config.NoiseDurationMin
	if s.config.NoiseDurationMax > duration {
		duration += time.Duration(rand.Int63n(int64(s.config.NoiseDurationMax - duration)))
	}

	s.logger.Debug().Str("url", target).Dur("duration", duration).Msg("Noise detour")
	return chromedp.Run(tabCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body"),
		chromedp.Sleep(duration),
	)
}

// Stop requests early termination of the in-flight search. The search
// stops at its next page boundary.
func (s *Service) Stop() {
	s.stopFlag.Store(true)
}

// Close shuts the browser down.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allocStop != nil {
		s.allocStop()
		s.allocCtx = nil
		s.allocStop = nil
	}
}
