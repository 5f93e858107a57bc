package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// failedQueueItem gives the dead-letter bin its own badgerhold type so
// failed batches never reappear in the active queue scan.
type failedQueueItem struct {
	models.QueueItem
}

// SyncQueueStorage implements the SyncQueueStorage interface for Badger
type SyncQueueStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSyncQueueStorage creates a new SyncQueueStorage instance
func NewSyncQueueStorage(db *BadgerDB, logger arbor.ILogger) *SyncQueueStorage {
	return &SyncQueueStorage{
		db:     db,
		logger: logger,
	}
}

var _ interfaces.SyncQueueStorage = (*SyncQueueStorage)(nil)

func (s *SyncQueueStorage) Enqueue(ctx context.Context, item *models.QueueItem) error {
	if item.ID == "" {
		return fmt.Errorf("queue item ID is required")
	}
	if err := s.db.Store().Upsert(item.ID, item); err != nil {
		return fmt.Errorf("failed to enqueue rows: %w", err)
	}
	return nil
}

func (s *SyncQueueStorage) List(ctx context.Context) ([]*models.QueueItem, error) {
	var items []models.QueueItem
	if err := s.db.Store().Find(&items, badgerhold.Where("ID").Ne("").SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}

	result := make([]*models.QueueItem, len(items))
	for i := range items {
		result[i] = &items[i]
	}
	return result, nil
}

func (s *SyncQueueStorage) Remove(ctx context.Context, id string) error {
	err := s.db.Store().Delete(id, &models.QueueItem{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to remove queue item: %w", err)
	}
	return nil
}

func (s *SyncQueueStorage) Update(ctx context.Context, item *models.QueueItem) error {
	if item.ID == "" {
		return fmt.Errorf("queue item ID is required")
	}
	if err := s.db.Store().Upsert(item.ID, item); err != nil {
		return fmt.Errorf("failed to update queue item: %w", err)
	}
	return nil
}

func (s *SyncQueueStorage) AddFailed(ctx context.Context, item *models.QueueItem) error {
	if item.ID == "" {
		return fmt.Errorf("queue item ID is required")
	}
	failed := failedQueueItem{QueueItem: *item}
	if err := s.db.Store().Upsert("failed:"+item.ID, &failed); err != nil {
		return fmt.Errorf("failed to save dead-letter item: %w", err)
	}
	return nil
}

func (s *SyncQueueStorage) ListFailed(ctx context.Context) ([]*models.QueueItem, error) {
	var items []failedQueueItem
	if err := s.db.Store().Find(&items, badgerhold.Where("ID").Ne("").SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list dead-letter items: %w", err)
	}

	result := make([]*models.QueueItem, len(items))
	for i := range items {
		result[i] = &items[i].QueueItem
	}
	return result, nil
}

func (s *SyncQueueStorage) ClearFailed(ctx context.Context) error {
	if err := s.db.Store().DeleteMatching(&failedQueueItem{}, badgerhold.Where("ID").Ne("")); err != nil {
		return fmt.Errorf("failed to clear dead-letter items: %w", err)
	}
	return nil
}
