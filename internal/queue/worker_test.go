package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/common"
	"github.com/ternarybob/salonpress/internal/models"
)

func TestWorkerPoolRoutesByTaskType(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Minute, 1)

	config := NewDefaultConfig()
	config.Concurrency = 2
	config.PollInterval = 50 * time.Millisecond
	pool := NewWorkerPool(q, config, arbor.NewLogger())

	var mu sync.Mutex
	seen := map[models.TaskType][]string{}
	record := func(ctx context.Context, msg *models.QueueMessage) error {
		mu.Lock()
		defer mu.Unlock()
		seen[msg.Type] = append(seen[msg.Type], msg.PostID)
		return nil
	}
	pool.RegisterHandler(models.TaskPublish, record)
	pool.RegisterHandler(models.TaskGenerate, func(ctx context.Context, msg *models.QueueMessage) error {
		if msg.PostID == "boom" {
			panic("handler bug")
		}
		return record(ctx, msg)
	})

	require.NoError(t, q.Enqueue(ctx, models.QueueMessage{Type: models.TaskPublish, PostID: "p1"}))
	require.NoError(t, q.Enqueue(ctx, models.QueueMessage{Type: models.TaskGenerate, PostID: "boom"}))
	require.NoError(t, q.Enqueue(ctx, models.QueueMessage{Type: models.TaskGenerate, PostID: "g1"}))
	require.NoError(t, q.Enqueue(ctx, models.QueueMessage{Type: "unknown", PostID: "x"}))

	pool.Start(ctx)
	defer pool.Stop()

	require.Eventually(t, func() bool {
		n, err := q.Len(ctx)
		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"p1"}, seen[models.TaskPublish])
	assert.Equal(t, []string{"g1"}, seen[models.TaskGenerate])
}

func TestWorkerPoolStopWaitsForJobs(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Minute, 1)

	config := NewDefaultConfig()
	config.Concurrency = 1
	config.PollInterval = 20 * time.Millisecond
	pool := NewWorkerPool(q, config, arbor.NewLogger())

	started := make(chan struct{})
	finished := false
	pool.RegisterHandler(models.TaskPublish, func(ctx context.Context, msg *models.QueueMessage) error {
		close(started)
		<-ctx.Done()
		finished = true
		return ctx.Err()
	})

	require.NoError(t, q.Enqueue(ctx, models.QueueMessage{Type: models.TaskPublish, PostID: "p"}))
	pool.Start(ctx)
	<-started
	pool.Stop()
	assert.True(t, finished)

	// Stopping twice is harmless
	pool.Stop()
}

func TestWorkerPoolKeepsLongJobHidden(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, 100*time.Millisecond, 2)

	config := NewDefaultConfig()
	config.Concurrency = 2
	config.PollInterval = 10 * time.Millisecond
	config.VisibilityTimeout = 100 * time.Millisecond
	pool := NewWorkerPool(q, config, arbor.NewLogger())

	var mu sync.Mutex
	runs := 0
	pool.RegisterHandler(models.TaskPublish, func(ctx context.Context, msg *models.QueueMessage) error {
		mu.Lock()
		runs++
		mu.Unlock()
		// Several visibility timeouts long
		time.Sleep(400 * time.Millisecond)
		return nil
	})

	require.NoError(t, q.Enqueue(ctx, models.QueueMessage{Type: models.TaskPublish, PostID: "p"}))
	pool.Start(ctx)
	defer pool.Stop()

	require.Eventually(t, func() bool {
		n, err := q.Len(ctx)
		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, runs)
}

func TestNewConfigFromServiceConfig(t *testing.T) {
	config := NewConfig(common.QueueConfig{PollInterval: "250ms", Concurrency: 3, VisibilityTimeout: "bogus"})
	assert.Equal(t, 250*time.Millisecond, config.PollInterval)
	assert.Equal(t, 3, config.Concurrency)
	assert.Equal(t, 20*time.Minute, config.VisibilityTimeout)
	assert.Equal(t, 1, config.MaxReceive)
	assert.Equal(t, "salonpress_jobs", config.QueueName)
}
