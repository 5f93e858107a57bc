// -----------------------------------------------------------------------
// Manual runs - user-triggered execution with explicit stop
// -----------------------------------------------------------------------

package coordinator

import (
	"context"
	"fmt"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/models"
)

// ErrRunActive is returned when a start is refused because the
// single-flight slot is taken.
var ErrRunActive = fmt.Errorf("a run is already active")

// errManuallyAborted finalizes an explicitly stopped run, so the ledger
// never records an abort as a clean success.
var errManuallyAborted = fmt.Errorf("manually aborted")

// StartManualRun starts an immediate run for one source, bypassing the
// schedule. maxPages > 0 caps result pages per search.
func (c *Coordinator) StartManualRun(ctx context.Context, sourceName string, maxPages int) (executionID string, err error) {
	if sourceName == "" {
		return "", fmt.Errorf("source name is required")
	}

	c.mu.Lock()
	active, aerr := c.activeState(ctx)
	if aerr != nil {
		c.mu.Unlock()
		return "", aerr
	}
	if active != nil {
		c.mu.Unlock()
		return "", ErrRunActive
	}

	executionID = common.NewExecutionID()
	state := &models.RunState{
		Mode:        models.RunModeManual,
		IsRunning:   true,
		ExecutionID: executionID,
		Config: &models.RunConfig{
			Sources:  []string{sourceName},
			MaxPages: maxPages,
		},
		Progress: &models.RunProgress{},
	}
	if serr := c.storage.RunStateStorage().SaveRunState(ctx, state); serr != nil {
		c.mu.Unlock()
		return "", fmt.Errorf("failed to claim run state: %w", serr)
	}
	c.mu.Unlock()

	c.logger.Info().
		Str("source", sourceName).
		Str("execution_id", executionID).
		Msg("🚀 Starting manual run")

	if c.syncRuns {
		c.runManual(ctx, state)
	} else {
		go c.runManual(context.WithoutCancel(ctx), state)
	}
	return executionID, nil
}

// runManual is the manual-run body. Like the scheduled path, cleanup and
// drain always happen.
func (c *Coordinator) runManual(ctx context.Context, state *models.RunState) {
	sourceName := state.Config.Sources[0]
	record := &models.ExecutionRecord{
		ID:         state.ExecutionID,
		SourceName: sourceName,
		StartedAt:  c.clock.Now(),
		Status:     models.ExecutionStatusRunning,
	}

	var runErr error
	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("panic in manual run: %v", r)
			c.logger.Error().Str("execution_id", state.ExecutionID).Msgf("Recovered from panic: %v", r)
		}
		if runErr != nil {
			c.failExecution(ctx, record, runErr)
		}
		c.clearRunState(ctx, models.RunModeManual)
		c.DrainPending(ctx)
	}()

	if _, runErr = c.tokens.AccessToken(ctx); runErr != nil {
		c.notifyAuthExpired(ctx, sourceName)
		runErr = fmt.Errorf("access token check failed: %w", runErr)
		return
	}
	state.TokenChecked = true

	if runErr = c.storage.ExecutionStorage().Append(ctx, record); runErr != nil {
		return
	}

	c.notifier.Notify(ctx, models.EventRunStarted, models.NotificationPayload{
		"source":       sourceName,
		"execution_id": state.ExecutionID,
		"manual":       true,
	})

	schedule := &models.Schedule{SourceName: sourceName, TestMaxPages: state.Config.MaxPages}
	var config *models.RunConfig
	config, runErr = c.resolveRunConfig(ctx, schedule)
	if runErr != nil {
		return
	}
	config.MaxPages = state.Config.MaxPages

	state.Config = config
	state.Progress.TotalSearches = countSearches(config)
	record.TotalSearches = state.Progress.TotalSearches
	record.WorkbookID = config.WorkbookID
	record.TabName = config.TabName
	if err := c.storage.ExecutionStorage().Update(ctx, record); err != nil {
		c.logger.Warn().Err(err).Str("execution_id", record.ID).Msg("Failed to update execution record")
	}
	if runErr = c.storage.RunStateStorage().SaveRunState(ctx, state); runErr != nil {
		return
	}

	if runErr = c.runUnits(ctx, state); runErr != nil {
		return
	}

	if aborted, aerr := c.runAborted(ctx, models.RunModeManual); aerr != nil {
		runErr = aerr
		return
	} else if aborted {
		runErr = errManuallyAborted
		return
	}

	c.completeExecution(ctx, record, state)
}

// StopManualRun requests abort of the active manual run. The unit loop
// observes IsAborted at its next unit boundary; the scraper is told to
// stop its in-flight search immediately.
func (c *Coordinator) StopManualRun(ctx context.Context) error {
	state, err := c.storage.RunStateStorage().GetRunState(ctx, models.RunModeManual)
	if err != nil {
		return err
	}
	if !state.Active() {
		return fmt.Errorf("no manual run is active")
	}

	state.IsAborted = true
	if err := c.storage.RunStateStorage().SaveRunState(ctx, state); err != nil {
		return fmt.Errorf("failed to persist abort: %w", err)
	}

	c.scraper.Stop()
	c.logger.Info().Str("execution_id", state.ExecutionID).Msg("Manual run abort requested")
	return nil
}
