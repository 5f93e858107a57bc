package badger

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/interfaces"
)

// Manager wires the Badger-backed storage implementations together
type Manager struct {
	db        *BadgerDB
	logger    arbor.ILogger
	schedules *ScheduleStorage
	pending   *PendingStorage
	execs     *ExecutionStorage
	runstate  *RunStateStorage
	syncQueue *SyncQueueStorage
	kv        *KeyValueStorage
}

// NewManager creates a storage manager with all Badger-backed storages
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize badger database: %w", err)
	}

	return &Manager{
		db:        db,
		logger:    logger,
		schedules: NewScheduleStorage(db, logger),
		pending:   NewPendingStorage(db, logger),
		execs:     NewExecutionStorage(db, logger),
		runstate:  NewRunStateStorage(db, logger),
		syncQueue: NewSyncQueueStorage(db, logger),
		kv:        NewKeyValueStorage(db, logger),
	}, nil
}

func (m *Manager) ScheduleStorage() interfaces.ScheduleStorage {
	return m.schedules
}

func (m *Manager) PendingStorage() interfaces.PendingStorage {
	return m.pending
}

func (m *Manager) ExecutionStorage() interfaces.ExecutionStorage {
	return m.execs
}

func (m *Manager) RunStateStorage() interfaces.RunStateStorage {
	return m.runstate
}

func (m *Manager) SyncQueueStorage() interfaces.SyncQueueStorage {
	return m.syncQueue
}

func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// Close closes the underlying database connection
func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing storage manager")
	return m.db.Close()
}
