package queue

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/models"
)

func newTestQueue(t *testing.T, visibility time.Duration, maxReceive int) *BadgerManager {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	config := NewDefaultConfig()
	config.QueueName = "test"
	config.VisibilityTimeout = visibility
	config.MaxReceive = maxReceive

	mgr, err := NewBadgerManager(db, config, arbor.NewLogger())
	require.NoError(t, err)
	return mgr
}

func TestReceiveInVisibilityOrder(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Minute, 1)

	require.NoError(t, q.Enqueue(ctx, models.QueueMessage{Type: models.TaskPublish, PostID: "a", Attempt: 1}))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, models.QueueMessage{Type: models.TaskGenerate, PostID: "b", Attempt: 1}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	msg, done, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", msg.PostID)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.EnqueuedAt.IsZero())
	require.NoError(t, done())

	msg, done, err = q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", msg.PostID)
	assert.Equal(t, models.TaskGenerate, msg.Type)
	require.NoError(t, done())
	require.NoError(t, done())

	_, _, err = q.Receive(ctx)
	assert.ErrorIs(t, err, ErrNoMessage)

	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDelayedMessageBecomesVisible(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Minute, 1)

	require.NoError(t, q.EnqueueWithDelay(ctx, models.QueueMessage{Type: models.TaskPublish, PostID: "p", ChainID: "c", Attempt: 2}, 300*time.Millisecond))

	_, _, err := q.Receive(ctx)
	assert.ErrorIs(t, err, ErrNoMessage)

	var msg *models.QueueMessage
	require.Eventually(t, func() bool {
		m, done, err := q.Receive(ctx)
		if err != nil {
			return false
		}
		msg = m
		return done() == nil
	}, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, "c", msg.ChainID)
	assert.Equal(t, 2, msg.Attempt)
}

func TestUnfinishedMessageIsNotRedelivered(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, 50*time.Millisecond, 1)

	require.NoError(t, q.Enqueue(ctx, models.QueueMessage{Type: models.TaskPublish, PostID: "p"}))

	// Received but never deleted, as when a worker dies mid-job
	_, _, err := q.Receive(ctx)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	_, _, err = q.Receive(ctx)
	assert.ErrorIs(t, err, ErrNoMessage)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDroppedMessageIsGoneAfterEmptyPoll(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, 50*time.Millisecond, 1)

	require.NoError(t, q.Enqueue(ctx, models.QueueMessage{Type: models.TaskPublish, PostID: "stale"}))
	_, _, err := q.Receive(ctx)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	// The poll that drops the message claims nothing, and the drop still commits
	_, _, err = q.Receive(ctx)
	require.ErrorIs(t, err, ErrNoMessage)
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// A later message is delivered normally
	require.NoError(t, q.Enqueue(ctx, models.QueueMessage{Type: models.TaskPublish, PostID: "fresh"}))
	msg, done, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fresh", msg.PostID)
	require.NoError(t, done())
}

func TestRedeliveryWithinMaxReceive(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, 50*time.Millisecond, 2)

	require.NoError(t, q.Enqueue(ctx, models.QueueMessage{Type: models.TaskGenerate, PostID: "p"}))
	first, _, err := q.Receive(ctx)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	second, done, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	require.NoError(t, done())
}

func TestExtendHidesMessage(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, 50*time.Millisecond, 2)

	require.NoError(t, q.Enqueue(ctx, models.QueueMessage{Type: models.TaskPublish, PostID: "p"}))
	msg, _, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Extend(ctx, msg.ID, time.Minute))

	time.Sleep(100 * time.Millisecond)
	_, _, err = q.Receive(ctx)
	assert.ErrorIs(t, err, ErrNoMessage)

	assert.Error(t, q.Extend(ctx, "missing", time.Minute))
}

func TestNewBadgerManagerValidation(t *testing.T) {
	_, err := NewBadgerManager(nil, NewDefaultConfig(), arbor.NewLogger())
	assert.Error(t, err)
}
