package common

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// SealKey resolves the 32-byte key that seals portal passwords at rest.
// An empty key is an error in production; elsewhere a random key is generated
// and ephemeral is true, so stored accounts do not survive a restart.
func (c *Config) SealKey() (key [32]byte, ephemeral bool, err error) {
	raw := strings.TrimSpace(c.Credentials.SecretKey)
	if raw == "" {
		if c.IsProduction() {
			return key, false, fmt.Errorf("credentials.secret_key is required in production")
		}
		if _, err := rand.Read(key[:]); err != nil {
			return key, false, fmt.Errorf("failed to generate seal key: %w", err)
		}
		return key, true, nil
	}

	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return key, false, fmt.Errorf("credentials.secret_key must be hex: %w", err)
	}
	if len(decoded) != len(key) {
		return key, false, fmt.Errorf("credentials.secret_key must be %d bytes, got %d", len(key), len(decoded))
	}
	copy(key[:], decoded)
	return key, false, nil
}
