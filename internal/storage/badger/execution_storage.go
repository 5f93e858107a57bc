package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ExecutionStorage implements the ExecutionStorage interface for Badger.
// The history is a bounded ring: Append trims the oldest records past
// models.MaxExecutionHistory, so a Get for a trimmed id returns nil.
type ExecutionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewExecutionStorage creates a new ExecutionStorage instance
func NewExecutionStorage(db *BadgerDB, logger arbor.ILogger) *ExecutionStorage {
	return &ExecutionStorage{
		db:     db,
		logger: logger,
	}
}

var _ interfaces.ExecutionStorage = (*ExecutionStorage)(nil)

func (s *ExecutionStorage) Append(ctx context.Context, record *models.ExecutionRecord) error {
	if record.ID == "" {
		return fmt.Errorf("execution ID is required")
	}

	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save execution record: %w", err)
	}

	return s.trim(ctx)
}

// trim drops the oldest records beyond the retention cap.
func (s *ExecutionStorage) trim(ctx context.Context) error {
	var records []models.ExecutionRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("ID").Ne("").SortBy("StartedAt").Reverse()); err != nil {
		return fmt.Errorf("failed to scan execution history: %w", err)
	}

	if len(records) <= models.MaxExecutionHistory {
		return nil
	}

	for _, old := range records[models.MaxExecutionHistory:] {
		if err := s.db.Store().Delete(old.ID, &models.ExecutionRecord{}); err != nil && err != badgerhold.ErrNotFound {
			s.logger.Warn().Err(err).Str("execution_id", old.ID).Msg("Failed to trim execution record")
		}
	}
	s.logger.Debug().Int("trimmed", len(records)-models.MaxExecutionHistory).Msg("Trimmed execution history")
	return nil
}

func (s *ExecutionStorage) Get(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	var record models.ExecutionRecord
	if err := s.db.Store().Get(id, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get execution record: %w", err)
	}
	return &record, nil
}

func (s *ExecutionStorage) Update(ctx context.Context, record *models.ExecutionRecord) error {
	if record.ID == "" {
		return fmt.Errorf("execution ID is required")
	}
	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to update execution record: %w", err)
	}
	return nil
}

func (s *ExecutionStorage) List(ctx context.Context, limit int) ([]*models.ExecutionRecord, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []models.ExecutionRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list execution records: %w", err)
	}

	result := make([]*models.ExecutionRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}
