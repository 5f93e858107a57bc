package interfaces

import (
	"context"

	"github.com/ternarybob/venator/internal/models"
)

// ScheduleStorage persists schedule definitions.
type ScheduleStorage interface {
	// SaveSchedule upserts a schedule by id.
	SaveSchedule(ctx context.Context, schedule *models.Schedule) error

	// GetSchedule returns the schedule with the given id, or nil if absent.
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)

	// GetScheduleBySource returns the schedule for a source, or nil.
	GetScheduleBySource(ctx context.Context, sourceName string) (*models.Schedule, error)

	// ListSchedules returns all schedules.
	ListSchedules(ctx context.Context) ([]*models.Schedule, error)

	// DeleteSchedule removes a schedule by id; returns false if not found.
	DeleteSchedule(ctx context.Context, id string) (bool, error)
}

// PendingStorage persists the FIFO queue of deferred schedules.
type PendingStorage interface {
	// Enqueue appends a pending entry. No-op if an entry with the same
	// schedule id already exists.
	Enqueue(ctx context.Context, entry *models.PendingSchedule) error

	// List returns all pending entries, oldest queued first.
	List(ctx context.Context) ([]*models.PendingSchedule, error)

	// Remove deletes the entry with the given schedule id.
	Remove(ctx context.Context, scheduleID string) error
}

// ExecutionStorage persists the capped execution-history ledger.
type ExecutionStorage interface {
	// Append creates a new record, prepends it to the history, and trims
	// to the retention cap.
	Append(ctx context.Context, record *models.ExecutionRecord) error

	// Get returns the record with the given id, or nil if absent (which
	// is expected after a ledger trim and must be tolerated by callers).
	Get(ctx context.Context, id string) (*models.ExecutionRecord, error)

	// Update replaces an existing record in place.
	Update(ctx context.Context, record *models.ExecutionRecord) error

	// List returns records sorted newest-first by start time, truncated
	// to limit (0 means all, up to the retention cap).
	List(ctx context.Context, limit int) ([]*models.ExecutionRecord, error)
}

// RunStateStorage persists the two RunState instances.
type RunStateStorage interface {
	// SaveRunState persists the state for its mode.
	SaveRunState(ctx context.Context, state *models.RunState) error

	// GetRunState returns the persisted state for the mode, or an idle
	// state if none was ever saved.
	GetRunState(ctx context.Context, mode models.RunMode) (*models.RunState, error)
}

// SyncQueueStorage persists row batches awaiting delivery to Sheets.
type SyncQueueStorage interface {
	Enqueue(ctx context.Context, item *models.QueueItem) error
	List(ctx context.Context) ([]*models.QueueItem, error)
	Remove(ctx context.Context, id string) error
	Update(ctx context.Context, item *models.QueueItem) error

	// Failed-rows bin for items that exhausted their retries.
	AddFailed(ctx context.Context, item *models.QueueItem) error
	ListFailed(ctx context.Context) ([]*models.QueueItem, error)
	ClearFailed(ctx context.Context) error
}

// KeyValueStorage is generic string key/value persistence (webhook URL,
// source mapping, notification cooldowns).
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	ScheduleStorage() ScheduleStorage
	PendingStorage() PendingStorage
	ExecutionStorage() ExecutionStorage
	RunStateStorage() RunStateStorage
	SyncQueueStorage() SyncQueueStorage
	KeyValueStorage() KeyValueStorage

	Close() error
}
