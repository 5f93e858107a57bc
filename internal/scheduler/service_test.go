package scheduler

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/models"
)

// memScheduleStorage is an in-memory ScheduleStorage for service tests.
type memScheduleStorage struct {
	schedules map[string]*models.Schedule
}

func newMemScheduleStorage() *memScheduleStorage {
	return &memScheduleStorage{schedules: make(map[string]*models.Schedule)}
}

func (m *memScheduleStorage) SaveSchedule(ctx context.Context, schedule *models.Schedule) error {
	copied := *schedule
	m.schedules[schedule.ID] = &copied
	return nil
}

func (m *memScheduleStorage) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	if s, ok := m.schedules[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, nil
}

func (m *memScheduleStorage) GetScheduleBySource(ctx context.Context, sourceName string) (*models.Schedule, error) {
	for _, s := range m.schedules {
		if s.SourceName == sourceName {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memScheduleStorage) ListSchedules(ctx context.Context) ([]*models.Schedule, error) {
	var result []*models.Schedule
	for _, s := range m.schedules {
		copied := *s
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].NextRun.Before(result[j].NextRun) })
	return result, nil
}

func (m *memScheduleStorage) DeleteSchedule(ctx context.Context, id string) (bool, error) {
	if _, ok := m.schedules[id]; !ok {
		return false, nil
	}
	delete(m.schedules, id)
	return true, nil
}

func newTestService(now time.Time) (*Service, *memScheduleStorage) {
	storage := newMemScheduleStorage()
	return NewService(storage, &fixedClock{now: now}, arbor.NewLogger()), storage
}

func TestSaveRejectsInvalidSchedules(t *testing.T) {
	svc, storage := newTestService(wednesday(8, 0, 0))
	ctx := context.Background()

	invalid := []*models.Schedule{
		{DayOfWeek: 3, Hour: 9},                                        // missing source
		{SourceName: "Acme", DayOfWeek: 7, Hour: 9},                    // day out of range
		{SourceName: "Acme", DayOfWeek: 3, Hour: 24},                   // hour out of range
		{SourceName: "Acme", DayOfWeek: 3, Hour: 9, Minute: 60},        // minute out of range
		{SourceName: "Acme", DayOfWeek: 3, Frequency: "biweekly"},      // biweekly without pattern
		{SourceName: "Acme", DayOfWeek: 3, TestMaxPages: 2000},         // test pages out of range
		{SourceName: "Acme", DayOfWeek: 3, TestSearchURL: "not-a-url"}, // malformed test url
	}
	for i, schedule := range invalid {
		_, err := svc.Save(ctx, schedule)
		assert.Error(t, err, "case %d: expected validation error", i)
	}
	assert.Empty(t, storage.schedules, "invalid schedules must never be persisted")
}

func TestSaveAssignsIDAndComputesNextRun(t *testing.T) {
	// Wednesday 08:00: a Wednesday 09:00 schedule is due later today.
	svc, _ := newTestService(wednesday(8, 0, 0))
	ctx := context.Background()

	saved, err := svc.Save(ctx, &models.Schedule{
		SourceName: "Acme",
		DayOfWeek:  3,
		Hour:       9,
		Minute:     0,
		Enabled:    true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID, "expected generated schedule id")
	assert.Equal(t, models.FrequencyWeekly, saved.Frequency, "expected weekly default")
	want := wednesday(9, 0, 0)
	assert.True(t, saved.NextRun.Equal(want), "NextRun = %v, want %v", saved.NextRun, want)
}

func TestSavePreservesRunHistoryOnUpdate(t *testing.T) {
	svc, _ := newTestService(wednesday(8, 0, 0))
	ctx := context.Background()

	saved, err := svc.Save(ctx, &models.Schedule{
		SourceName: "Acme", DayOfWeek: 3, Hour: 9, Enabled: true,
	})
	require.NoError(t, err)
	require.NoError(t, svc.MarkRun(ctx, saved.ID, "exec_1"))

	// An update that doesn't carry run history keeps the stored values.
	updated, err := svc.Save(ctx, &models.Schedule{
		ID: saved.ID, SourceName: "Acme", DayOfWeek: 3, Hour: 10, Enabled: true,
	})
	require.NoError(t, err)
	assert.NotNil(t, updated.LastRun, "update dropped LastRun")
	assert.Equal(t, "exec_1", updated.LastExecutionID, "update dropped LastExecutionID")
}

func TestMarkRunAdvancesNextRun(t *testing.T) {
	now := wednesday(9, 2, 0)
	svc, storage := newTestService(now)
	ctx := context.Background()

	saved, err := svc.Save(ctx, &models.Schedule{
		SourceName: "Acme", DayOfWeek: 3, Hour: 9, Minute: 0, Enabled: true,
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkRun(ctx, saved.ID, "exec_42"))

	stored := storage.schedules[saved.ID]
	require.NotNil(t, stored.LastRun)
	assert.True(t, stored.LastRun.Equal(now), "LastRun = %v, want %v", stored.LastRun, now)
	assert.Equal(t, "exec_42", stored.LastExecutionID)
	// 09:02 is past 09:00, so the next run is the following Wednesday.
	want := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	assert.True(t, stored.NextRun.Equal(want), "NextRun = %v, want %v", stored.NextRun, want)
}

func TestDueSchedulesExcludesActiveSource(t *testing.T) {
	svc, _ := newTestService(wednesday(9, 3, 0))
	ctx := context.Background()

	for _, source := range []string{"Acme", "Globex"} {
		_, err := svc.Save(ctx, &models.Schedule{
			SourceName: source, DayOfWeek: 3, Hour: 9, Minute: 0, Enabled: true,
		})
		require.NoError(t, err, "Save %s failed", source)
	}

	due, err := svc.DueSchedules(ctx, "")
	require.NoError(t, err)
	assert.Len(t, due, 2)

	due, err = svc.DueSchedules(ctx, "Acme")
	require.NoError(t, err)
	require.Len(t, due, 1, "expected only Globex due")
	assert.Equal(t, "Globex", due[0].SourceName)
}
