// -----------------------------------------------------------------------
// Sync queue - durable delivery of scraped rows to Google Sheets with
// exponential-backoff retry and a dead-letter bin
// -----------------------------------------------------------------------

package syncqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
)

// Service queues scraped row batches and delivers them to their
// destination tabs. Rows survive process restarts; delivery failures
// retry with exponential backoff until the retry budget is spent.
type Service struct {
	config  *common.SyncQueueConfig
	storage interfaces.SyncQueueStorage
	sheets  interfaces.SheetsService
	clock   interfaces.Clock
	logger  arbor.ILogger
}

// NewService creates a sync queue service.
func NewService(config *common.SyncQueueConfig, storage interfaces.SyncQueueStorage, sheets interfaces.SheetsService, clock interfaces.Clock, logger arbor.ILogger) *Service {
	return &Service{
		config:  config,
		storage: storage,
		sheets:  sheets,
		clock:   clock,
		logger:  logger,
	}
}

var _ interfaces.RowQueue = (*Service)(nil)

// AddRows queues a batch of extracted profile rows for delivery.
func (s *Service) AddRows(ctx context.Context, rows []models.ProfileRow, workbookID, tabName string) error {
	if len(rows) == 0 {
		return nil
	}

	item := &models.QueueItem{
		ID:            common.NewQueueItemID(),
		SpreadsheetID: workbookID,
		TabName:       tabName,
		Rows:          rows,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.storage.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("failed to queue rows: %w", err)
	}

	s.logger.Debug().
		Str("item_id", item.ID).
		Int("rows", len(rows)).
		Str("tab", tabName).
		Msg("Rows queued for sheet delivery")
	return nil
}

// Run processes the queue on the configured interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	interval := s.config.ProcessInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Msg("Sync queue processor started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Sync queue processor stopped")
			return
		case <-ticker.C:
			if _, err := s.ProcessQueue(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Queue processing pass failed")
			}
		}
	}
}

// Result summarizes one processing pass.
type Result struct {
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

// ProcessQueue attempts delivery of every eligible queued item. Items in
// backoff are skipped until their delay elapses; items that exhaust the
// retry budget move to the dead-letter bin.
func (s *Service) ProcessQueue(ctx context.Context) (*Result, error) {
	items, err := s.storage.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}
	if len(items) == 0 {
		return &Result{}, nil
	}

	s.logger.Debug().Int("items", len(items)).Msg("Processing sync queue")

	result := &Result{}
	now := s.clock.Now()
	for _, item := range items {
		if !s.eligible(item, now) {
			result.Pending++
			continue
		}

		if err := s.sheets.AppendRows(ctx, item.SpreadsheetID, item.TabName, rowValues(item.Rows)); err != nil {
			s.handleFailure(ctx, item, err, result)
			continue
		}

		if err := s.storage.Remove(ctx, item.ID); err != nil {
			s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Failed to remove delivered item")
		}
		result.Synced++
		s.logger.Info().
			Str("item_id", item.ID).
			Int("rows", len(item.Rows)).
			Str("tab", item.TabName).
			Msg("✅ Rows delivered to sheet")
	}

	return result, nil
}

// eligible reports whether an item's backoff delay has elapsed.
func (s *Service) eligible(item *models.QueueItem, now time.Time) bool {
	if item.LastAttempt == nil {
		return true
	}
	backoff := s.config.BaseDelay * time.Duration(1<<item.RetryCount)
	return now.Sub(*item.LastAttempt) >= backoff
}

func (s *Service) handleFailure(ctx context.Context, item *models.QueueItem, deliveryErr error, result *Result) {
	item.RetryCount++
	now := s.clock.Now()
	item.LastAttempt = &now
	item.Error = deliveryErr.Error()

	if item.RetryCount >= s.config.MaxRetries {
		s.logger.Warn().
			Str("item_id", item.ID).
			Int("retries", item.RetryCount).
			Str("error", item.Error).
			Msg("Retry budget exhausted, moving rows to failed bin")
		if err := s.storage.AddFailed(ctx, item); err != nil {
			s.logger.Error().Err(err).Str("item_id", item.ID).Msg("Failed to dead-letter item")
			return
		}
		if err := s.storage.Remove(ctx, item.ID); err != nil {
			s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Failed to remove dead-lettered item")
		}
		result.Failed++
		return
	}

	backoff := s.config.BaseDelay * time.Duration(1<<item.RetryCount)
	s.logger.Debug().
		Str("item_id", item.ID).
		Int("attempt", item.RetryCount).
		Dur("next_retry_in", backoff).
		Msg("Delivery failed, will retry")
	if err := s.storage.Update(ctx, item); err != nil {
		s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Failed to persist retry state")
	}
	result.Pending++
}

// RetryFailed moves dead-lettered items back into the active queue with a
// fresh retry budget.
func (s *Service) RetryFailed(ctx context.Context) (int, error) {
	failed, err := s.storage.ListFailed(ctx)
	if err != nil {
		return 0, err
	}
	if len(failed) == 0 {
		return 0, nil
	}

	for _, item := range failed {
		item.RetryCount = 0
		item.LastAttempt = nil
		item.Error = ""
		if err := s.storage.Enqueue(ctx, item); err != nil {
			return 0, fmt.Errorf("failed to re-queue item %s: %w", item.ID, err)
		}
	}
	if err := s.storage.ClearFailed(ctx); err != nil {
		return 0, err
	}

	s.logger.Info().Int("items", len(failed)).Msg("Failed rows re-queued for delivery")
	return len(failed), nil
}

func rowValues(rows []models.ProfileRow) [][]string {
	values := make([][]string, len(rows))
	for i := range rows {
		values[i] = rows[i].Values()
	}
	return values
}
