// -----------------------------------------------------------------------
// Schedule service - validated CRUD over the schedule store plus the
// due-schedule computation used by the coordinator tick
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
)

// Service owns schedule definitions. All writes pass validation here;
// invalid schedules are never persisted.
type Service struct {
	storage  interfaces.ScheduleStorage
	clock    interfaces.Clock
	logger   arbor.ILogger
	validate *validator.Validate
}

// NewService creates a schedule service.
func NewService(storage interfaces.ScheduleStorage, clock interfaces.Clock, logger arbor.ILogger) *Service {
	return &Service{
		storage:  storage,
		clock:    clock,
		logger:   logger,
		validate: validator.New(),
	}
}

// Save validates and upserts a schedule, recomputing NextRun. New
// schedules get an id and CreatedAt.
func (s *Service) Save(ctx context.Context, schedule *models.Schedule) (*models.Schedule, error) {
	if schedule.Frequency == "" {
		schedule.Frequency = models.FrequencyWeekly
	}

	if err := s.validate.Struct(schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}
	if schedule.IsBiweekly() && !schedule.HasValidWeekPattern() {
		return nil, fmt.Errorf("invalid schedule: biweekly frequency requires week_pattern odd or even")
	}

	now := s.clock.Now()
	if schedule.ID == "" {
		schedule.ID = common.NewScheduleID()
		schedule.CreatedAt = now
	} else if existing, err := s.storage.GetSchedule(ctx, schedule.ID); err != nil {
		return nil, err
	} else if existing != nil {
		schedule.CreatedAt = existing.CreatedAt
		if schedule.LastRun == nil {
			schedule.LastRun = existing.LastRun
		}
		if schedule.LastExecutionID == "" {
			schedule.LastExecutionID = existing.LastExecutionID
		}
	}
	schedule.UpdatedAt = now
	schedule.NextRun = ComputeNextRun(schedule, now, s.logger)

	if err := s.storage.SaveSchedule(ctx, schedule); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("schedule_id", schedule.ID).
		Str("source", schedule.SourceName).
		Str("when", schedule.Description()).
		Str("frequency", string(schedule.Frequency)).
		Msg("Schedule saved")
	return schedule, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Schedule, error) {
	return s.storage.GetSchedule(ctx, id)
}

func (s *Service) GetBySource(ctx context.Context, sourceName string) (*models.Schedule, error) {
	return s.storage.GetScheduleBySource(ctx, sourceName)
}

func (s *Service) List(ctx context.Context) ([]*models.Schedule, error) {
	return s.storage.ListSchedules(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := s.storage.DeleteSchedule(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info().Str("schedule_id", id).Msg("Schedule deleted")
	}
	return deleted, nil
}

// MarkRun records a successful trigger: stamps LastRun, links the
// execution, and recomputes NextRun from the trigger time.
func (s *Service) MarkRun(ctx context.Context, id, executionID string) error {
	schedule, err := s.storage.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if schedule == nil {
		return fmt.Errorf("schedule not found: %s", id)
	}

	now := s.clock.Now()
	schedule.LastRun = &now
	schedule.LastExecutionID = executionID
	schedule.UpdatedAt = now
	schedule.NextRun = ComputeNextRun(schedule, now, s.logger)

	return s.storage.SaveSchedule(ctx, schedule)
}

// DueSchedules returns the enabled schedules due at this tick, in list
// order, excluding the named source (the one already executing).
func (s *Service) DueSchedules(ctx context.Context, excludeSource string) ([]*models.Schedule, error) {
	schedules, err := s.storage.ListSchedules(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var due []*models.Schedule
	for _, schedule := range schedules {
		if excludeSource != "" && schedule.SourceName == excludeSource {
			continue
		}
		if IsDueNow(schedule, now, s.logger) {
			due = append(due, schedule)
		}
	}
	return due, nil
}
