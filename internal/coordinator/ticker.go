// -----------------------------------------------------------------------
// Ticker - cron-driven minute tick feeding the coordinator
// -----------------------------------------------------------------------

package coordinator

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Ticker drives the coordinator's Tick on a cron cadence.
type Ticker struct {
	cron        *cron.Cron
	coordinator *Coordinator
	logger      arbor.ILogger
	running     bool
}

func NewTicker(coord *Coordinator, logger arbor.ILogger) *Ticker {
	return &Ticker{
		cron:        cron.New(),
		coordinator: coord,
		logger:      logger,
	}
}

// Start begins ticking on the given cron expression.
func (t *Ticker) Start(cronExpr string) error {
	if t.running {
		return fmt.Errorf("ticker already running")
	}

	if cronExpr == "" {
		cronExpr = "*/1 * * * *" // Default: every 1 minute
	}

	if _, err := t.cron.AddFunc(cronExpr, t.tick); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	t.cron.Start()
	t.running = true
	t.logger.Info().Str("cron_expr", cronExpr).Msg("Schedule ticker started")
	return nil
}

// Stop halts ticking. In-flight runs continue to completion.
func (t *Ticker) Stop() {
	if !t.running {
		return
	}
	t.cron.Stop()
	t.running = false
	t.logger.Info().Msg("Schedule ticker stopped")
}

// tick wraps the coordinator tick with panic recovery to prevent a bad
// tick from crashing the service.
func (t *Ticker) tick() {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Tick panicked")
		}
	}()

	t.coordinator.Tick(context.Background())
}
