package storage

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/common"
	"github.com/ternarybob/salonpress/internal/interfaces"
	"github.com/ternarybob/salonpress/internal/storage/badger"
)

// NewStorageManager opens the Badger store. The seal key comes from
// config and is warned about when it is only valid for this process.
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	key, ephemeral, err := config.SealKey()
	if err != nil {
		return nil, err
	}
	if ephemeral {
		logger.Warn().Msg("No credentials key configured; stored portal passwords will be unreadable after restart")
	}
	return badger.NewManager(logger, &config.Storage.Badger, key)
}
