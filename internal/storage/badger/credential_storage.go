package badger

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/interfaces"
	"github.com/ternarybob/salonpress/internal/models"
	"github.com/timshannon/badgerhold/v4"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24


// CredentialStorage implements the CredentialStorage interface for Badger.
// Secrets are sealed with NaCl secretbox; plaintext never reaches the database.
type CredentialStorage struct {
	db     *BadgerDB
	key    [32]byte
	logger arbor.ILogger
}

// NewCredentialStorage creates a new CredentialStorage instance
func NewCredentialStorage(db *BadgerDB, key [32]byte, logger arbor.ILogger) interfaces.CredentialStorage {
	return &CredentialStorage{
		db:     db,
		key:    key,
		logger: logger,
	}
}

// SaveAccount seals secret and stores the account. The caller keeps ownership of secret.
func (s *CredentialStorage) SaveAccount(ctx context.Context, userID, loginID string, secret []byte, salonID string) error {
	if userID == "" || loginID == "" || len(secret) == 0 {
		return fmt.Errorf("user ID, login ID and secret are required")
	}
	sealed, err := seal(secret, &s.key)
	if err != nil {
		return err
	}

	account := &models.PortalAccount{
		UserID:       userID,
		LoginID:      loginID,
		SealedSecret: sealed,
		SalonID:      salonID,
		UpdatedAt:    time.Now(),
	}
	if err := s.db.Store().Upsert(userID, account); err != nil {
		return fmt.Errorf("failed to save portal account: %w", err)
	}

	s.logger.Info().Str("user_id", userID).Msg("Portal account saved")
	return nil
}

// GetAccount returns the stored account with the secret still sealed
func (s *CredentialStorage) GetAccount(ctx context.Context, userID string) (*models.PortalAccount, error) {
	var account models.PortalAccount
	if err := s.db.Store().Get(userID, &account); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get portal account: %w", err)
	}
	return &account, nil
}

// OpenCredential returns the decrypted login for one browser session
func (s *CredentialStorage) OpenCredential(ctx context.Context, userID string) (*models.Credential, error) {
	account, err := s.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	secret, err := open(account.SealedSecret, &s.key)
	if err != nil {
		return nil, fmt.Errorf("portal account %s: %w", userID, err)
	}
	return &models.Credential{LoginID: account.LoginID, Secret: secret}, nil
}

// DeleteAccount removes a stored account
func (s *CredentialStorage) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.db.Store().Delete(userID, &models.PortalAccount{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to delete portal account: %w", err)
	}
	return nil
}

// seal prefixes the ciphertext with its random nonce
func seal(plaintext []byte, key *[32]byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

func open(sealed []byte, key *[32]byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, interfaces.ErrCredentialUnreadable
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return nil, interfaces.ErrCredentialUnreadable
	}
	return plaintext, nil
}
