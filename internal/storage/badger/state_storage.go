package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// RunStateStorage implements the RunStateStorage interface for Badger.
// One record per run mode, keyed "runstate:<mode>".
type RunStateStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunStateStorage creates a new RunStateStorage instance
func NewRunStateStorage(db *BadgerDB, logger arbor.ILogger) *RunStateStorage {
	return &RunStateStorage{
		db:     db,
		logger: logger,
	}
}

var _ interfaces.RunStateStorage = (*RunStateStorage)(nil)

func stateKey(mode models.RunMode) string {
	return "runstate:" + string(mode)
}

func (s *RunStateStorage) SaveRunState(ctx context.Context, state *models.RunState) error {
	if state.Mode != models.RunModeAuto && state.Mode != models.RunModeManual {
		return fmt.Errorf("invalid run mode: %q", state.Mode)
	}

	if err := s.db.Store().Upsert(stateKey(state.Mode), state); err != nil {
		return fmt.Errorf("failed to save run state: %w", err)
	}
	return nil
}

func (s *RunStateStorage) GetRunState(ctx context.Context, mode models.RunMode) (*models.RunState, error) {
	var state models.RunState
	if err := s.db.Store().Get(stateKey(mode), &state); err != nil {
		if err == badgerhold.ErrNotFound {
			return models.NewIdleRunState(mode), nil
		}
		return nil, fmt.Errorf("failed to get run state: %w", err)
	}
	return &state, nil
}
