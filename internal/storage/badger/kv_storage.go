package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// kvEntry wraps a string value so badgerhold gives it its own type bucket.
type kvEntry struct {
	Key   string
	Value string
}

// KeyValueStorage implements the KeyValueStorage interface for Badger
type KeyValueStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewKeyValueStorage creates a new KeyValueStorage instance
func NewKeyValueStorage(db *BadgerDB, logger arbor.ILogger) *KeyValueStorage {
	return &KeyValueStorage{
		db:     db,
		logger: logger,
	}
}

var _ interfaces.KeyValueStorage = (*KeyValueStorage)(nil)

func (s *KeyValueStorage) Get(ctx context.Context, key string) (string, error) {
	var entry kvEntry
	if err := s.db.Store().Get(key, &entry); err != nil {
		if err == badgerhold.ErrNotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to get key %q: %w", key, err)
	}
	return entry.Value, nil
}

func (s *KeyValueStorage) Set(ctx context.Context, key, value string) error {
	entry := kvEntry{Key: key, Value: value}
	if err := s.db.Store().Upsert(key, &entry); err != nil {
		return fmt.Errorf("failed to set key %q: %w", key, err)
	}
	return nil
}

func (s *KeyValueStorage) Delete(ctx context.Context, key string) error {
	err := s.db.Store().Delete(key, &kvEntry{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}
