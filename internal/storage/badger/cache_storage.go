package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/interfaces"
)

const cachePrefix = "cache:"

// CacheStorage implements the CacheStorage interface with native Badger TTLs
type CacheStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCacheStorage creates a new CacheStorage instance
func NewCacheStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CacheStorage {
	return &CacheStorage{
		db:     db,
		logger: logger,
	}
}

// normalizeKey converts a key to lowercase for case-insensitive storage
func (s *CacheStorage) normalizeKey(key string) []byte {
	return []byte(cachePrefix + strings.ToLower(strings.TrimSpace(key)))
}

// Get returns the cached value, or ErrNotFound when absent or expired
func (s *CacheStorage) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.Store().Badger().View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.normalizeKey(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return value, nil
}

// Set stores value until ttl elapses; ttl <= 0 stores without expiry
func (s *CacheStorage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := badger.NewEntry(s.normalizeKey(key), value)
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	if err := s.db.Store().Badger().Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	}); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// Delete removes a cache entry; deleting a missing key is not an error
func (s *CacheStorage) Delete(ctx context.Context, key string) error {
	if err := s.db.Store().Badger().Update(func(txn *badger.Txn) error {
		return txn.Delete(s.normalizeKey(key))
	}); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}
