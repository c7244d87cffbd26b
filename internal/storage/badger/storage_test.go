package badger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/common"
	"github.com/ternarybob/salonpress/internal/interfaces"
	"github.com/ternarybob/salonpress/internal/models"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()
	db, err := NewBadgerDB(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testKey(b byte) [32]byte {
	var key [32]byte
	for i := range key {
		key[i] = b
	}
	return key
}

func TestPostStatusTransitions(t *testing.T) {
	ctx := context.Background()
	storage := NewPostStorage(newTestDB(t), arbor.NewLogger())

	post := &models.BlogPost{ID: "post-1", UserID: "user-1", Status: models.PostStatusReady, SelectedVariation: -1}
	require.NoError(t, storage.SavePost(ctx, post))

	old, err := storage.UpdateStatus(ctx, "post-1", models.PostStatusFailed, "login failed")
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusReady, old)

	got, err := storage.GetPost(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusFailed, got.Status)
	assert.Equal(t, "login failed", got.ErrorMessage)
	assert.Equal(t, -1, got.SelectedVariation)

	old, err = storage.UpdateStatus(ctx, "post-1", models.PostStatusPublishing, "")
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusFailed, old)

	got, err = storage.GetPost(ctx, "post-1")
	require.NoError(t, err)
	assert.Empty(t, got.ErrorMessage)

	_, err = storage.UpdateStatus(ctx, "missing", models.PostStatusFailed, "")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestTransitionStatusCheckVetoesWrite(t *testing.T) {
	ctx := context.Background()
	storage := NewPostStorage(newTestDB(t), arbor.NewLogger())
	require.NoError(t, storage.SavePost(ctx, &models.BlogPost{ID: "post-1", Status: models.PostStatusPublishing, SelectedVariation: -1}))

	busy := errors.New("busy")
	notPublishing := func(post *models.BlogPost) error {
		if post.Status == models.PostStatusPublishing {
			return busy
		}
		return nil
	}

	_, err := storage.TransitionStatus(ctx, "post-1", models.PostStatusPublishing, "", notPublishing)
	assert.ErrorIs(t, err, busy)

	_, err = storage.UpdateStatus(ctx, "post-1", models.PostStatusReady, "")
	require.NoError(t, err)

	before, err := storage.TransitionStatus(ctx, "post-1", models.PostStatusPublishing, "", notPublishing)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusReady, before.Status)

	got, err := storage.GetPost(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublishing, got.Status)
}

func TestPostListing(t *testing.T) {
	ctx := context.Background()
	storage := NewPostStorage(newTestDB(t), arbor.NewLogger())

	for i, status := range []models.PostStatus{models.PostStatusFailed, models.PostStatusPublished, models.PostStatusFailed} {
		require.NoError(t, storage.SavePost(ctx, &models.BlogPost{
			ID:     fmt.Sprintf("post-%d", i),
			UserID: "user-1",
			Status: status,
		}))
	}
	require.NoError(t, storage.SavePost(ctx, &models.BlogPost{ID: "other", UserID: "user-2", Status: models.PostStatusFailed}))

	posts, err := storage.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, posts, 3)

	failed, err := storage.ListFailedBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, failed, 3)

	failed, err = storage.ListFailedBefore(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, failed)

	require.NoError(t, storage.DeletePost(ctx, "other"))
	assert.ErrorIs(t, storage.DeletePost(ctx, "other"), interfaces.ErrNotFound)
}

func TestAttemptFinalizedOnce(t *testing.T) {
	ctx := context.Background()
	storage := NewAttemptLogStorage(newTestDB(t), arbor.NewLogger())

	log := &models.AttemptLog{ID: "chain-1", PostID: "post-1", Attempt: 1, MaxAttempts: 3}
	require.NoError(t, storage.StartAttempt(ctx, log))

	failed := &models.AttemptLog{ID: "chain-1", PostID: "post-1", Attempt: 1, MaxAttempts: 3,
		Status: models.AttemptFailed, ErrorKind: "upload", ErrorMessage: "image 1 failed"}
	require.NoError(t, storage.FinalizeAttempt(ctx, failed))

	again := &models.AttemptLog{ID: "chain-1", PostID: "post-1", Attempt: 1, Status: models.AttemptSuccess}
	assert.ErrorIs(t, storage.FinalizeAttempt(ctx, again), interfaces.ErrAttemptFinalized)

	got, err := storage.GetAttempt(ctx, "chain-1")
	require.NoError(t, err)
	assert.Equal(t, models.AttemptFailed, got.Status)
	require.NotNil(t, got.CompletedAt)

	// A retry resets the same row
	retry := &models.AttemptLog{ID: "chain-1", PostID: "post-1", Attempt: 2, MaxAttempts: 3}
	require.NoError(t, storage.StartAttempt(ctx, retry))
	got, err = storage.GetAttempt(ctx, "chain-1")
	require.NoError(t, err)
	assert.Equal(t, models.AttemptInProgress, got.Status)
	assert.Empty(t, got.ErrorMessage)
	assert.Nil(t, got.CompletedAt)

	stale := &models.AttemptLog{ID: "chain-1", PostID: "post-1", Attempt: 1, Status: models.AttemptSuccess}
	assert.ErrorIs(t, storage.FinalizeAttempt(ctx, stale), interfaces.ErrAttemptFinalized)

	success := &models.AttemptLog{ID: "chain-1", PostID: "post-1", Attempt: 2, Status: models.AttemptSuccess}
	require.NoError(t, storage.FinalizeAttempt(ctx, success))

	assert.ErrorIs(t, storage.FinalizeAttempt(ctx, &models.AttemptLog{ID: "nope"}), interfaces.ErrNotFound)
}

func TestAttemptListAndDelete(t *testing.T) {
	ctx := context.Background()
	storage := NewAttemptLogStorage(newTestDB(t), arbor.NewLogger())

	base := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, storage.StartAttempt(ctx, &models.AttemptLog{
			ID:        fmt.Sprintf("chain-%d", i),
			PostID:    "post-1",
			Attempt:   1,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, storage.StartAttempt(ctx, &models.AttemptLog{ID: "chain-x", PostID: "post-2", Attempt: 1}))

	logs, err := storage.ListByPost(ctx, "post-1")
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "chain-2", logs[0].ID)

	require.NoError(t, storage.DeleteByPost(ctx, "post-1"))
	logs, err = storage.ListByPost(ctx, "post-1")
	require.NoError(t, err)
	assert.Empty(t, logs)

	_, err = storage.GetAttempt(ctx, "chain-x")
	assert.NoError(t, err)
}

func TestCredentialSealing(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	storage := NewCredentialStorage(db, testKey(7), arbor.NewLogger())

	require.NoError(t, storage.SaveAccount(ctx, "user-1", "salon-login", []byte("hunter2"), "H000123"))

	account, err := storage.GetAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "salon-login", account.LoginID)
	assert.NotContains(t, string(account.SealedSecret), "hunter2")

	cred, err := storage.OpenCredential(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(cred.Secret))
	assert.NotContains(t, cred.String(), "hunter2")
	assert.NotContains(t, fmt.Sprintf("%+v", *cred), "hunter2")

	cred.Wipe()
	assert.Empty(t, cred.Secret)

	// A different key cannot open the stored secret
	other := NewCredentialStorage(db, testKey(9), arbor.NewLogger())
	_, err = other.OpenCredential(ctx, "user-1")
	assert.ErrorIs(t, err, interfaces.ErrCredentialUnreadable)

	_, err = storage.OpenCredential(ctx, "user-2")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	assert.Error(t, storage.SaveAccount(ctx, "user-1", "salon-login", nil, ""))

	require.NoError(t, storage.DeleteAccount(ctx, "user-1"))
	_, err = storage.GetAccount(ctx, "user-1")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestCacheExpiry(t *testing.T) {
	ctx := context.Background()
	cache := NewCacheStorage(newTestDB(t), arbor.NewLogger())

	require.NoError(t, cache.Set(ctx, "HPB:Stylists:x", []byte("value"), time.Hour))
	got, err := cache.Get(ctx, "hpb:stylists:x")
	require.NoError(t, err)
	assert.Equal(t, "value", string(got))

	require.NoError(t, cache.Set(ctx, "short", []byte("gone"), time.Second))
	require.Eventually(t, func() bool {
		_, err := cache.Get(ctx, "short")
		return err == interfaces.ErrNotFound
	}, 5*time.Second, 100*time.Millisecond)

	require.NoError(t, cache.Delete(ctx, "hpb:stylists:x"))
	_, err = cache.Get(ctx, "hpb:stylists:x")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	assert.NoError(t, cache.Delete(ctx, "never-set"))
}

func TestNewBadgerDBResetOnStartup(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := NewBadgerDB(arbor.NewLogger(), &common.BadgerConfig{Path: dir})
	require.NoError(t, err)
	posts := NewPostStorage(db, arbor.NewLogger())
	require.NoError(t, posts.SavePost(ctx, &models.BlogPost{ID: "p1", UserID: "u1", Status: models.PostStatusDraft}))
	require.NoError(t, db.Close())

	db, err = NewBadgerDB(arbor.NewLogger(), &common.BadgerConfig{Path: dir})
	require.NoError(t, err)
	_, err = NewPostStorage(db, arbor.NewLogger()).GetPost(ctx, "p1")
	assert.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewBadgerDB(arbor.NewLogger(), &common.BadgerConfig{Path: dir, ResetOnStartup: true})
	require.NoError(t, err)
	defer db.Close()
	_, err = NewPostStorage(db, arbor.NewLogger()).GetPost(ctx, "p1")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestNewBadgerDBRequiresPath(t *testing.T) {
	_, err := NewBadgerDB(arbor.NewLogger(), &common.BadgerConfig{})
	assert.Error(t, err)
}
