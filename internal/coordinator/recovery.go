// -----------------------------------------------------------------------
// Crash recovery - reconstruct in-flight state after an unplanned restart
// -----------------------------------------------------------------------

package coordinator

import (
	"context"
	"fmt"

	"github.com/ternarybob/venator/internal/models"
)

// RecoverOnStartup inspects the persisted run states and finishes
// whatever a previous process left behind. An automatic run found
// mid-flight is resumed from its persisted cursor and then force
// finalized; an interrupted manual abort is reset to idle. Either way
// the pending queue is drained afterwards so nothing stays stuck.
func (c *Coordinator) RecoverOnStartup(ctx context.Context) error {
	auto, err := c.storage.RunStateStorage().GetRunState(ctx, models.RunModeAuto)
	if err != nil {
		return fmt.Errorf("failed to read automatic run state: %w", err)
	}
	if auto.IsRunning && !auto.IsAborted {
		c.resumeAutoRun(ctx, auto)
	}

	manual, err := c.storage.RunStateStorage().GetRunState(ctx, models.RunModeManual)
	if err != nil {
		return fmt.Errorf("failed to read manual run state: %w", err)
	}
	if manual.IsRunning {
		// Manual runs never legitimately survive a restart. An aborted-
		// while-running combination is an interrupted abort; either way,
		// reset to idle.
		c.logger.Warn().
			Str("execution_id", manual.ExecutionID).
			Bool("is_aborted", manual.IsAborted).
			Msg("Resetting interrupted manual run state")
		c.clearRunState(ctx, models.RunModeManual)
		if manual.ExecutionID != "" {
			c.failExecution(ctx, &models.ExecutionRecord{ID: manual.ExecutionID, SourceName: manual.SourceName()},
				fmt.Errorf("manual run interrupted by restart"))
		}
	}

	c.DrainPending(ctx)
	return nil
}

// resumeAutoRun re-invokes the unit-of-work loop from the persisted
// cursor, then unconditionally finalizes: no execution may be left
// "running" forever after a restart.
func (c *Coordinator) resumeAutoRun(ctx context.Context, state *models.RunState) {
	c.logger.Info().
		Str("execution_id", state.ExecutionID).
		Str("source", state.SourceName()).
		Int("completed", progressCompleted(state)).
		Msg("Resuming interrupted run from persisted cursor")

	defer c.clearRunState(ctx, models.RunModeAuto)

	if state.Config == nil || state.Progress == nil || len(state.Config.Sources) == 0 {
		// State was claimed but never configured; nothing to resume.
		c.finalizeRecovered(ctx, state, fmt.Errorf("run interrupted before configuration"))
		return
	}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("panic during resume: %v", r)
			}
		}()
		runErr = c.runUnits(ctx, state)
	}()

	if runErr != nil {
		c.logger.Warn().Err(runErr).Str("execution_id", state.ExecutionID).Msg("Resume loop returned early")
	}
	c.finalizeRecovered(ctx, state, runErr)
}

// finalizeRecovered force completes the recovered execution with whatever
// progress accumulated.
func (c *Coordinator) finalizeRecovered(ctx context.Context, state *models.RunState, runErr error) {
	record, err := c.storage.ExecutionStorage().Get(ctx, state.ExecutionID)
	if err != nil {
		c.logger.Warn().Err(err).Str("execution_id", state.ExecutionID).Msg("Failed to read execution record during recovery")
	}
	if record == nil {
		record = &models.ExecutionRecord{
			ID:         state.ExecutionID,
			SourceName: state.SourceName(),
			StartedAt:  c.clock.Now(),
		}
	}

	if runErr != nil {
		c.failExecution(ctx, record, runErr)
		return
	}
	if state.Progress == nil {
		state.Progress = &models.RunProgress{}
	}
	c.completeExecution(ctx, record, state)
}

func progressCompleted(state *models.RunState) int {
	if state.Progress == nil {
		return 0
	}
	return state.Progress.CompletedSearches
}
