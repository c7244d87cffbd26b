package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/common"
	"github.com/ternarybob/salonpress/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db         *BadgerDB
	post       interfaces.PostStorage
	attempt    interfaces.AttemptLogStorage
	credential interfaces.CredentialStorage
	cache      interfaces.CacheStorage
	logger     arbor.ILogger
}

// NewManager creates a new Badger storage manager. sealKey seals portal passwords at rest.
func NewManager(logger arbor.ILogger, config *common.BadgerConfig, sealKey [32]byte) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:         db,
		post:       NewPostStorage(db, logger),
		attempt:    NewAttemptLogStorage(db, logger),
		credential: NewCredentialStorage(db, sealKey, logger),
		cache:      NewCacheStorage(db, logger),
		logger:     logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// PostStorage returns the Post storage interface
func (m *Manager) PostStorage() interfaces.PostStorage {
	return m.post
}

// AttemptLogStorage returns the AttemptLog storage interface
func (m *Manager) AttemptLogStorage() interfaces.AttemptLogStorage {
	return m.attempt
}

// CredentialStorage returns the Credential storage interface
func (m *Manager) CredentialStorage() interfaces.CredentialStorage {
	return m.credential
}

// CacheStorage returns the Cache storage interface
func (m *Manager) CacheStorage() interfaces.CacheStorage {
	return m.cache
}

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
