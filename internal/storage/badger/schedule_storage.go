package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ScheduleStorage implements the ScheduleStorage interface for Badger
type ScheduleStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewScheduleStorage creates a new ScheduleStorage instance
func NewScheduleStorage(db *BadgerDB, logger arbor.ILogger) *ScheduleStorage {
	return &ScheduleStorage{
		db:     db,
		logger: logger,
	}
}

var _ interfaces.ScheduleStorage = (*ScheduleStorage)(nil)

func (s *ScheduleStorage) SaveSchedule(ctx context.Context, schedule *models.Schedule) error {
	if schedule.ID == "" {
		return fmt.Errorf("schedule ID is required")
	}

	if err := s.db.Store().Upsert(schedule.ID, schedule); err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

func (s *ScheduleStorage) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	var schedule models.Schedule
	if err := s.db.Store().Get(id, &schedule); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &schedule, nil
}

func (s *ScheduleStorage) GetScheduleBySource(ctx context.Context, sourceName string) (*models.Schedule, error) {
	var schedules []models.Schedule
	if err := s.db.Store().Find(&schedules, badgerhold.Where("SourceName").Eq(sourceName).Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to query schedules by source: %w", err)
	}
	if len(schedules) == 0 {
		return nil, nil
	}
	return &schedules[0], nil
}

func (s *ScheduleStorage) ListSchedules(ctx context.Context) ([]*models.Schedule, error) {
	var schedules []models.Schedule
	if err := s.db.Store().Find(&schedules, badgerhold.Where("ID").Ne("").SortBy("NextRun")); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	result := make([]*models.Schedule, len(schedules))
	for i := range schedules {
		result[i] = &schedules[i]
	}
	return result, nil
}

func (s *ScheduleStorage) DeleteSchedule(ctx context.Context, id string) (bool, error) {
	err := s.db.Store().Delete(id, &models.Schedule{})
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete schedule: %w", err)
	}
	return true, nil
}
