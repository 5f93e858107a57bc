package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// PendingStorage implements the PendingStorage interface for Badger.
// Entries are keyed by schedule id, which gives the at-most-one-per-schedule
// property for free; FIFO ordering comes from sorting on QueuedAt.
type PendingStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPendingStorage creates a new PendingStorage instance
func NewPendingStorage(db *BadgerDB, logger arbor.ILogger) *PendingStorage {
	return &PendingStorage{
		db:     db,
		logger: logger,
	}
}

var _ interfaces.PendingStorage = (*PendingStorage)(nil)

func (s *PendingStorage) Enqueue(ctx context.Context, entry *models.PendingSchedule) error {
	if entry.ID == "" {
		return fmt.Errorf("pending schedule ID is required")
	}

	var existing models.PendingSchedule
	err := s.db.Store().Get(entry.ID, &existing)
	if err == nil {
		s.logger.Debug().Str("schedule_id", entry.ID).Msg("Schedule already pending, skipping enqueue")
		return nil
	}
	if err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to check pending queue: %w", err)
	}

	if err := s.db.Store().Insert(entry.ID, entry); err != nil {
		return fmt.Errorf("failed to enqueue pending schedule: %w", err)
	}
	return nil
}

func (s *PendingStorage) List(ctx context.Context) ([]*models.PendingSchedule, error) {
	var entries []models.PendingSchedule
	if err := s.db.Store().Find(&entries, badgerhold.Where("ID").Ne("").SortBy("QueuedAt")); err != nil {
		return nil, fmt.Errorf("failed to list pending schedules: %w", err)
	}

	result := make([]*models.PendingSchedule, len(entries))
	for i := range entries {
		result[i] = &entries[i]
	}
	return result, nil
}

func (s *PendingStorage) Remove(ctx context.Context, scheduleID string) error {
	err := s.db.Store().Delete(scheduleID, &models.PendingSchedule{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to remove pending schedule: %w", err)
	}
	return nil
}
