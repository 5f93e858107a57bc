// -----------------------------------------------------------------------
// Coordinator - Single-flight execution guard, tick handler, and
// pending-queue drain
//
// At most one run (automatic or manual) is active system-wide at any
// instant. Every start decision is a check-then-act under c.mu; the
// persisted RunState records are the source of truth across restarts.
// -----------------------------------------------------------------------

package coordinator

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
	"github.com/ternarybob/venator/internal/scheduler"
)

// Coordinator owns run-start decisions and the pending-schedule queue.
type Coordinator struct {
	schedules *scheduler.Service
	storage   interfaces.StorageManager
	clock     interfaces.Clock
	logger    arbor.ILogger

	scraper  interfaces.Scraper
	searches interfaces.SearchResolver
	sheets   interfaces.SheetsService
	tokens   interfaces.TokenService
	notifier interfaces.Notifier
	mapper   interfaces.SourceMapper
	sink     interfaces.RowQueue

	scraperCfg *common.ScraperConfig

	// mu serializes every single-flight check-then-act.
	mu sync.Mutex
	// draining is the re-entrancy guard for the drain loop.
	draining bool

	// delayFn and noiseFn are swapped out in tests to avoid real sleeps;
	// syncRuns makes triggered runs execute inline for deterministic tests.
	delayFn  func(ctx context.Context)
	noiseFn  func(ctx context.Context)
	syncRuns bool
}

// Deps carries the coordinator's collaborators.
type Deps struct {
	Schedules *scheduler.Service
	Storage   interfaces.StorageManager
	Clock     interfaces.Clock
	Logger    arbor.ILogger
	Scraper   interfaces.Scraper
	Searches  interfaces.SearchResolver
	Sheets    interfaces.SheetsService
	Tokens    interfaces.TokenService
	Notifier  interfaces.Notifier
	Mapper    interfaces.SourceMapper
	Sink      interfaces.RowQueue
	Scraping  *common.ScraperConfig
}

// New creates a coordinator.
func New(deps Deps) *Coordinator {
	c := &Coordinator{
		schedules:  deps.Schedules,
		storage:    deps.Storage,
		clock:      deps.Clock,
		logger:     deps.Logger,
		scraper:    deps.Scraper,
		searches:   deps.Searches,
		sheets:     deps.Sheets,
		tokens:     deps.Tokens,
		notifier:   deps.Notifier,
		mapper:     deps.Mapper,
		sink:       deps.Sink,
		scraperCfg: deps.Scraping,
	}
	c.delayFn = c.interUnitDelay
	c.noiseFn = c.noiseDetour
	return c
}

// activeState returns whichever RunState currently holds the single-flight
// slot, or nil when idle. Callers that act on the answer must hold c.mu.
func (c *Coordinator) activeState(ctx context.Context) (*models.RunState, error) {
	for _, mode := range []models.RunMode{models.RunModeAuto, models.RunModeManual} {
		state, err := c.storage.RunStateStorage().GetRunState(ctx, mode)
		if err != nil {
			return nil, err
		}
		if state.Active() {
			return state, nil
		}
	}
	return nil, nil
}

// Tick is the periodic scheduling pass.
func (c *Coordinator) Tick(ctx context.Context) {
	active, err := c.activeState(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Tick: failed to read run state")
		return
	}

	if active != nil {
		// A run is in flight: defer everything else that comes due,
		// skipping the source that is already executing. Existing
		// pending entries are left untouched this tick.
		due, err := c.schedules.DueSchedules(ctx, active.SourceName())
		if err != nil {
			c.logger.Error().Err(err).Msg("Tick: failed to compute due schedules")
			return
		}
		for _, schedule := range due {
			c.enqueuePending(ctx, schedule)
		}
		return
	}

	pending, err := c.storage.PendingStorage().List(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Tick: failed to read pending queue")
		return
	}
	if len(pending) > 0 {
		c.DrainPending(ctx)
		return
	}

	due, err := c.schedules.DueSchedules(ctx, "")
	if err != nil {
		c.logger.Error().Err(err).Msg("Tick: failed to compute due schedules")
		return
	}
	for i, schedule := range due {
		// A previous schedule in this batch may have started a run; the
		// claim re-checks under the mutex before each trigger.
		state, err := c.claimAutoRun(ctx, schedule)
		if err != nil {
			c.logger.Error().Err(err).Msg("Tick: failed to claim run state")
			return
		}
		if state == nil {
			for _, remaining := range due[i:] {
				c.enqueuePending(ctx, remaining)
			}
			return
		}

		c.runAsync(ctx, schedule, state)
	}
}

// runAsync runs a claimed scheduled run in the background so the tick
// returns promptly. Tests replace the goroutine with a synchronous call.
func (c *Coordinator) runAsync(ctx context.Context, schedule *models.Schedule, state *models.RunState) {
	run := func() {
		if err := c.runScheduled(context.WithoutCancel(ctx), schedule, state); err != nil {
			c.logger.Error().Err(err).
				Str("schedule_id", schedule.ID).
				Str("source", schedule.SourceName).
				Msg("Scheduled run failed")
		}
	}
	if c.syncRuns {
		run()
		return
	}
	go run()
}

// TriggerNow runs a schedule immediately, or defers it when a run is
// already active. Used by the trigger-now API.
func (c *Coordinator) TriggerNow(ctx context.Context, scheduleID string) (started bool, err error) {
	schedule, err := c.schedules.Get(ctx, scheduleID)
	if err != nil {
		return false, err
	}
	if schedule == nil {
		return false, common.ErrNotFound
	}

	state, err := c.claimAutoRun(ctx, schedule)
	if err != nil {
		return false, err
	}
	if state == nil {
		c.enqueuePending(ctx, schedule)
		return false, nil
	}

	c.runAsync(ctx, schedule, state)
	return true, nil
}

func (c *Coordinator) enqueuePending(ctx context.Context, schedule *models.Schedule) {
	entry := &models.PendingSchedule{
		Schedule: *schedule,
		QueuedAt: c.clock.Now(),
	}
	if err := c.storage.PendingStorage().Enqueue(ctx, entry); err != nil {
		c.logger.Error().Err(err).
			Str("schedule_id", schedule.ID).
			Msg("Failed to enqueue pending schedule")
		return
	}
	c.logger.Info().
		Str("schedule_id", schedule.ID).
		Str("source", schedule.SourceName).
		Msg("Schedule deferred to pending queue")
}

// DrainPending works the pending queue oldest-first until a run becomes
// active, the queue empties, or an execution fails. A failed execution
// stops the whole loop; the next tick retries.
func (c *Coordinator) DrainPending(ctx context.Context) {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.draining = false
		c.mu.Unlock()
	}()

	for {
		active, err := c.activeState(ctx)
		if err != nil {
			c.logger.Error().Err(err).Msg("Drain: failed to read run state")
			return
		}
		if active != nil {
			return
		}

		pending, err := c.storage.PendingStorage().List(ctx)
		if err != nil {
			c.logger.Error().Err(err).Msg("Drain: failed to read pending queue")
			return
		}
		if len(pending) == 0 {
			return
		}

		entry := pending[0]
		live, stale, err := c.checkStale(ctx, entry)
		if err != nil {
			// Transient storage failure: leave the entry queued for the
			// next tick rather than guessing at staleness.
			c.logger.Error().Err(err).Str("schedule_id", entry.ID).Msg("Drain: failed to re-fetch pending schedule")
			return
		}
		if stale {
			if err := c.storage.PendingStorage().Remove(ctx, entry.ID); err != nil {
				c.logger.Error().Err(err).Str("schedule_id", entry.ID).Msg("Drain: failed to remove stale entry")
				return
			}
			continue
		}

		if err := c.storage.PendingStorage().Remove(ctx, entry.ID); err != nil {
			c.logger.Error().Err(err).Str("schedule_id", entry.ID).Msg("Drain: failed to remove entry")
			return
		}
		if err := c.executeScheduledRun(ctx, live); err != nil {
			c.logger.Error().Err(err).
				Str("schedule_id", live.ID).
				Str("source", live.SourceName).
				Msg("Drain: execution failed, stopping drain until next tick")
			return
		}
	}
}

// checkStale re-validates a pending entry against the live schedule store.
// An entry is stale when its schedule is gone, disabled, or has already
// run since it was queued.
func (c *Coordinator) checkStale(ctx context.Context, entry *models.PendingSchedule) (*models.Schedule, bool, error) {
	live, err := c.schedules.Get(ctx, entry.ID)
	if err != nil {
		return nil, false, err
	}
	if live == nil {
		c.logger.Info().Str("schedule_id", entry.ID).Msg("Dropping pending entry: schedule deleted")
		return nil, true, nil
	}
	if !live.Enabled {
		c.logger.Info().Str("schedule_id", entry.ID).Msg("Dropping pending entry: schedule disabled")
		return nil, true, nil
	}
	if live.LastRun != nil && live.LastRun.After(entry.QueuedAt) {
		c.logger.Info().
			Str("schedule_id", entry.ID).
			Str("source", live.SourceName).
			Msg("Dropping pending entry: schedule already ran since queuing")
		return nil, true, nil
	}
	return live, false, nil
}
