// -----------------------------------------------------------------------
// Run execution - scheduled-run sequence and the resumable unit-of-work
// loop shared by scheduled, manual, and recovery paths
// -----------------------------------------------------------------------

package coordinator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
)

// claimAutoRun atomically takes the single-flight slot for a scheduled
// run. Returns nil when another run is active.
func (c *Coordinator) claimAutoRun(ctx context.Context, schedule *models.Schedule) (*models.RunState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	active, err := c.activeState(ctx)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, nil
	}

	state := &models.RunState{
		Mode:        models.RunModeAuto,
		IsRunning:   true,
		ExecutionID: common.NewExecutionID(),
		Config: &models.RunConfig{
			Sources: []string{schedule.SourceName},
		},
		Progress: &models.RunProgress{},
	}
	if err := c.storage.RunStateStorage().SaveRunState(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to claim run state: %w", err)
	}
	return state, nil
}

// executeScheduledRun runs one schedule end to end, synchronously. Used
// by the drain loop, which must await each execution before continuing.
// A schedule that cannot claim the slot is deferred, not failed.
func (c *Coordinator) executeScheduledRun(ctx context.Context, schedule *models.Schedule) error {
	state, err := c.claimAutoRun(ctx, schedule)
	if err != nil {
		return err
	}
	if state == nil {
		c.enqueuePending(ctx, schedule)
		return nil
	}
	return c.runScheduled(ctx, schedule, state)
}

// runScheduled is the scheduled-run body; the caller has already claimed
// the slot. Whatever happens, the RunState is cleared and the pending
// queue drained before returning: a failure must never leave the
// single-flight slot occupied.
func (c *Coordinator) runScheduled(ctx context.Context, schedule *models.Schedule, state *models.RunState) (err error) {
	executionID := state.ExecutionID

	c.logger.Info().
		Str("schedule_id", schedule.ID).
		Str("source", schedule.SourceName).
		Str("execution_id", executionID).
		Msg("🚀 Starting scheduled run")

	record := &models.ExecutionRecord{
		ID:         executionID,
		ScheduleID: schedule.ID,
		SourceName: schedule.SourceName,
		StartedAt:  c.clock.Now(),
		Status:     models.ExecutionStatusRunning,
	}

	defer func() {
		// Recover panics from the run body so cleanup always happens.
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in scheduled run: %v", r)
			c.logger.Error().Str("execution_id", executionID).Msgf("Recovered from panic: %v", r)
		}
		if err != nil {
			c.failExecution(ctx, record, err)
		}
		c.clearRunState(ctx, models.RunModeAuto)
		// Inside an active drain loop the guard makes this a no-op and
		// the outer loop continues instead.
		c.DrainPending(ctx)
	}()

	// Verify credentials before any mutation; an expired token fails the
	// run before it is marked as having happened.
	if _, err = c.tokens.AccessToken(ctx); err != nil {
		c.notifyAuthExpired(ctx, schedule.SourceName)
		return fmt.Errorf("access token check failed: %w", err)
	}
	state.TokenChecked = true

	if err = c.storage.ExecutionStorage().Append(ctx, record); err != nil {
		return fmt.Errorf("failed to create execution record: %w", err)
	}

	// Mark the trigger before doing the work: the cooldown starts now,
	// so a crashed run cannot retrigger every tick.
	if err = c.schedules.MarkRun(ctx, schedule.ID, executionID); err != nil {
		return fmt.Errorf("failed to mark schedule run: %w", err)
	}

	c.notifier.Notify(ctx, models.EventRunStarted, models.NotificationPayload{
		"source":       schedule.SourceName,
		"execution_id": executionID,
		"schedule":     schedule.Description(),
	})

	var config *models.RunConfig
	config, err = c.resolveRunConfig(ctx, schedule)
	if err != nil {
		return err
	}

	state.Config = config
	state.Progress.TotalSearches = countSearches(config)
	record.TotalSearches = state.Progress.TotalSearches
	record.WorkbookID = config.WorkbookID
	record.TabName = config.TabName
	if err = c.storage.ExecutionStorage().Update(ctx, record); err != nil {
		c.logger.Warn().Err(err).Str("execution_id", executionID).Msg("Failed to update execution record")
	}
	if err = c.storage.RunStateStorage().SaveRunState(ctx, state); err != nil {
		return fmt.Errorf("failed to persist run config: %w", err)
	}

	if err = c.runUnits(ctx, state); err != nil {
		return err
	}

	c.completeExecution(ctx, record, state)
	return nil
}

// resolveRunConfig builds the immutable work snapshot for a schedule:
// destination workbook, this week's tab, and the search list (a single
// search in test mode).
func (c *Coordinator) resolveRunConfig(ctx context.Context, schedule *models.Schedule) (*models.RunConfig, error) {
	workbookID, err := c.mapper.WorkbookFor(ctx, schedule.SourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workbook for %s: %w", schedule.SourceName, err)
	}
	if workbookID == "" {
		return nil, fmt.Errorf("no workbook mapped for source %s", schedule.SourceName)
	}

	tabName, err := c.sheets.EnsureWeeklyTab(ctx, workbookID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure weekly tab: %w", err)
	}

	config := &models.RunConfig{
		Sources:    []string{schedule.SourceName},
		WorkbookID: workbookID,
		TabName:    tabName,
	}

	if schedule.TestEnabled {
		// Test mode narrows the run to exactly one unit and caps its pages.
		config.MaxPages = schedule.TestMaxPages
		if schedule.TestSearchURL != "" {
			title := schedule.TestSearchTitle
			if title == "" {
				title = "Test search"
			}
			config.GroupedSearches = map[string][]models.Search{
				schedule.SourceName: {{
					Source: schedule.SourceName,
					Title:  title,
					URL:    schedule.TestSearchURL,
				}},
			}
			return config, nil
		}
	}

	grouped, err := c.searches.SearchesForSources(ctx, config.Sources)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve searches: %w", err)
	}
	if len(grouped[schedule.SourceName]) == 0 {
		return nil, fmt.Errorf("no searches configured for source %s", schedule.SourceName)
	}
	if schedule.TestEnabled {
		// No designated test search: fall back to the first configured one.
		config.GroupedSearches = map[string][]models.Search{
			schedule.SourceName: grouped[schedule.SourceName][:1],
		}
		return config, nil
	}
	config.GroupedSearches = grouped
	return config, nil
}

func countSearches(config *models.RunConfig) int {
	total := 0
	for _, source := range config.Sources {
		total += len(config.GroupedSearches[source])
	}
	return total
}

// runUnits walks the run's searches from the persisted cursor, persisting
// progress before each unit so a crash resumes at the current unit. A
// unit timeout advances the cursor; only infrastructure errors abort.
func (c *Coordinator) runUnits(ctx context.Context, state *models.RunState) error {
	config := state.Config
	progress := state.Progress

	for ; progress.CurrentSourceIndex < len(config.Sources); progress.CurrentSourceIndex++ {
		source := config.Sources[progress.CurrentSourceIndex]
		progress.CurrentSource = source
		searches := config.GroupedSearches[source]

		for ; progress.CurrentSearchIndex < len(searches); progress.CurrentSearchIndex++ {
			if aborted, err := c.runAborted(ctx, state.Mode); err != nil {
				return err
			} else if aborted {
				c.logger.Info().Str("execution_id", state.ExecutionID).Msg("Run aborted, stopping unit loop")
				return nil
			}

			search := searches[progress.CurrentSearchIndex]

			// Persist the cursor before attempting the unit.
			if err := c.storage.RunStateStorage().SaveRunState(ctx, state); err != nil {
				return fmt.Errorf("failed to persist run progress: %w", err)
			}

			c.logger.Info().
				Str("source", source).
				Str("search", search.Title).
				Int("unit", progress.CompletedSearches+1).
				Int("total", progress.TotalSearches).
				Msg("Scraping search")

			c.scrapeUnit(ctx, state, search)

			progress.CompletedSearches++
			c.updateLiveCounters(ctx, state)

			// Anti-throttling gap before the next unit.
			if progress.CompletedSearches < progress.TotalSearches {
				c.noiseFn(ctx)
				c.delayFn(ctx)
			}
		}
		progress.CurrentSearchIndex = 0
	}
	return nil
}

// scrapeUnit runs one search under the unit timeout. Timeouts and scrape
// errors are logged and absorbed: the remote page may be stuck on its
// last page, so the run moves on.
func (c *Coordinator) scrapeUnit(ctx context.Context, state *models.RunState, search models.Search) {
	unitCtx, cancel := context.WithTimeout(ctx, c.scraperCfg.SearchTimeout)
	defer cancel()

	sink := &boundSink{
		queue:      c.sink,
		workbookID: state.Config.WorkbookID,
		tabName:    state.Config.TabName,
	}
	result, err := c.scraper.ScrapeSearch(unitCtx, search, c.maxPages(state.Config), sink)
	if err != nil {
		if unitCtx.Err() == context.DeadlineExceeded {
			c.logger.Warn().
				Str("search", search.Title).
				Dur("timeout", c.scraperCfg.SearchTimeout).
				Msg("Search timed out, moving to next unit")
		} else {
			c.logger.Warn().Err(err).Str("search", search.Title).Msg("Search failed, moving to next unit")
			c.notifier.Notify(ctx, models.EventUnitFailed, models.NotificationPayload{
				"source": search.Source,
				"search": search.Title,
				"error":  err.Error(),
			})
		}
		return
	}

	state.Progress.TotalProfiles += result.TotalProfiles
	c.logger.Info().
		Str("search", search.Title).
		Int("profiles", result.TotalProfiles).
		Int("pages", result.TotalPages).
		Msg("Search complete")
}

func (c *Coordinator) maxPages(config *models.RunConfig) int {
	if config.MaxPages > 0 {
		return config.MaxPages
	}
	return c.scraperCfg.MaxPages
}

// updateLiveCounters pushes progress into the ledger so history reflects
// the run mid-flight. A missing record (trimmed) is logged and skipped.
func (c *Coordinator) updateLiveCounters(ctx context.Context, state *models.RunState) {
	record, err := c.storage.ExecutionStorage().Get(ctx, state.ExecutionID)
	if err != nil {
		c.logger.Warn().Err(err).Str("execution_id", state.ExecutionID).Msg("Failed to read execution record")
		return
	}
	if record == nil {
		c.logger.Warn().Str("execution_id", state.ExecutionID).Msg("Execution record missing (trimmed), skipping counter update")
		return
	}

	record.SearchesCompleted = state.Progress.CompletedSearches
	record.ProfilesScraped = state.Progress.TotalProfiles
	if err := c.storage.ExecutionStorage().Update(ctx, record); err != nil {
		c.logger.Warn().Err(err).Str("execution_id", state.ExecutionID).Msg("Failed to update live counters")
	}
}

func (c *Coordinator) runAborted(ctx context.Context, mode models.RunMode) (bool, error) {
	state, err := c.storage.RunStateStorage().GetRunState(ctx, mode)
	if err != nil {
		return false, fmt.Errorf("failed to read run state: %w", err)
	}
	return state.IsAborted, nil
}

// completeExecution finalizes the ledger record and notifies.
func (c *Coordinator) completeExecution(ctx context.Context, record *models.ExecutionRecord, state *models.RunState) {
	stored, err := c.storage.ExecutionStorage().Get(ctx, record.ID)
	if err == nil && stored != nil {
		record = stored
	}

	now := c.clock.Now()
	record.CompletedAt = &now
	record.Status = models.ExecutionStatusCompleted
	record.SearchesCompleted = state.Progress.CompletedSearches
	record.ProfilesScraped = state.Progress.TotalProfiles
	if err := c.storage.ExecutionStorage().Update(ctx, record); err != nil {
		c.logger.Warn().Err(err).Str("execution_id", record.ID).Msg("Failed to finalize execution record")
	}

	c.logger.Info().
		Str("execution_id", record.ID).
		Str("source", record.SourceName).
		Int("profiles", record.ProfilesScraped).
		Int("searches", record.SearchesCompleted).
		Msg("✅ Run completed")

	c.notifier.Notify(ctx, models.EventRunCompleted, models.NotificationPayload{
		"source":       record.SourceName,
		"execution_id": record.ID,
		"profiles":     record.ProfilesScraped,
		"searches":     record.SearchesCompleted,
	})
}

// failExecution marks the ledger record failed. A missing record is
// non-fatal: the ledger may have trimmed it.
func (c *Coordinator) failExecution(ctx context.Context, record *models.ExecutionRecord, runErr error) {
	stored, err := c.storage.ExecutionStorage().Get(ctx, record.ID)
	if err != nil {
		c.logger.Warn().Err(err).Str("execution_id", record.ID).Msg("Failed to read execution record")
	}
	if stored != nil {
		record = stored
	}

	now := c.clock.Now()
	record.CompletedAt = &now
	record.Status = models.ExecutionStatusFailed
	record.Error = runErr.Error()
	if err := c.storage.ExecutionStorage().Update(ctx, record); err != nil {
		c.logger.Warn().Err(err).Str("execution_id", record.ID).Msg("Failed to record execution failure")
	}

	c.notifier.Notify(ctx, models.EventRunFailed, models.NotificationPayload{
		"source":       record.SourceName,
		"execution_id": record.ID,
		"error":        runErr.Error(),
	})
}

// clearRunState resets a mode's state to idle.
func (c *Coordinator) clearRunState(ctx context.Context, mode models.RunMode) {
	if err := c.storage.RunStateStorage().SaveRunState(ctx, models.NewIdleRunState(mode)); err != nil {
		c.logger.Error().Err(err).Str("mode", string(mode)).Msg("Failed to clear run state")
	}
}

func (c *Coordinator) notifyAuthExpired(ctx context.Context, source string) {
	c.notifier.Notify(ctx, models.EventAuthExpired, models.NotificationPayload{
		"source": source,
	})
}

// interUnitDelay sleeps a randomized gap between searches.
func (c *Coordinator) interUnitDelay(ctx context.Context) {
	min := c.scraperCfg.SearchDelayMin
	max := c.scraperCfg.SearchDelayMax
	if max <= min {
		sleepCtx(ctx, min)
		return
	}
	delay := min + time.Duration(rand.Int63n(int64(max-min)))
	c.logger.Debug().Dur("delay", delay).Msg("Waiting before next search")
	sleepCtx(ctx, delay)
}

// noiseDetour sometimes wanders to a benign page between searches.
func (c *Coordinator) noiseDetour(ctx context.Context) {
	if !c.scraperCfg.NoiseEnabled || rand.Float64() >= c.scraperCfg.NoiseChance {
		return
	}
	if err := c.scraper.Noise(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("Noise detour failed")
	}
}

// boundSink fixes the destination workbook and tab for one run, so the
// scraper never needs to know where rows land.
type boundSink struct {
	queue      interfaces.RowQueue
	workbookID string
	tabName    string
}

func (b *boundSink) AddRows(ctx context.Context, rows []models.ProfileRow) error {
	return b.queue.AddRows(ctx, rows, b.workbookID, b.tabName)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
