package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/salonpress/internal/models"
)

// ErrNotFound is returned by every storage lookup that finds nothing
var ErrNotFound = errors.New("not found")

// ErrAttemptFinalized is returned when an attempt outcome is written twice
var ErrAttemptFinalized = errors.New("attempt already finalized")

// ErrCredentialUnreadable is returned when a stored secret cannot be decrypted,
// usually because the encryption key changed
var ErrCredentialUnreadable = errors.New("sealed secret cannot be opened")

// PostStorage - interface for blog post persistence
type PostStorage interface {
	SavePost(ctx context.Context, post *models.BlogPost) error
	GetPost(ctx context.Context, id string) (*models.BlogPost, error)
	// UpdateStatus sets status and returns the previous one
	UpdateStatus(ctx context.Context, id string, status models.PostStatus, errorMessage string) (models.PostStatus, error)
	// TransitionStatus is a compare-and-set: check sees the stored post inside the
	// write transaction and can veto the move. It returns the post before the move.
	TransitionStatus(ctx context.Context, id string, status models.PostStatus, errorMessage string, check func(*models.BlogPost) error) (*models.BlogPost, error)
	ListByUser(ctx context.Context, userID string) ([]*models.BlogPost, error)
	ListFailedBefore(ctx context.Context, cutoff time.Time) ([]*models.BlogPost, error)
	DeletePost(ctx context.Context, id string) error
}

// AttemptLogStorage - interface for publish attempt records
type AttemptLogStorage interface {
	// StartAttempt creates the chain's row or resets it to in_progress for a new attempt
	StartAttempt(ctx context.Context, log *models.AttemptLog) error
	// FinalizeAttempt writes the terminal state; a row is finalized at most once per attempt
	FinalizeAttempt(ctx context.Context, log *models.AttemptLog) error
	GetAttempt(ctx context.Context, chainID string) (*models.AttemptLog, error)
	ListByPost(ctx context.Context, postID string) ([]*models.AttemptLog, error)
	DeleteByPost(ctx context.Context, postID string) error
}

// CredentialStorage - interface for sealed portal credentials
type CredentialStorage interface {
	SaveAccount(ctx context.Context, userID, loginID string, secret []byte, salonID string) error
	GetAccount(ctx context.Context, userID string) (*models.PortalAccount, error)
	// OpenCredential decrypts the secret; callers must Wipe it when done
	OpenCredential(ctx context.Context, userID string) (*models.Credential, error)
	DeleteAccount(ctx context.Context, userID string) error
}

// CacheStorage - interface for expiring cached values
type CacheStorage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	PostStorage() PostStorage
	AttemptLogStorage() AttemptLogStorage
	CredentialStorage() CredentialStorage
	CacheStorage() CacheStorage
	DB() interface{}
	Close() error
}
