package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/interfaces"
	"github.com/ternarybob/salonpress/internal/models"
	"github.com/ternarybob/salonpress/internal/services/events"
)

type recorder struct {
	mu  sync.Mutex
	got []*models.ProgressEvent
}

func (r *recorder) handle(ctx context.Context, event interfaces.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, event.Payload.(*models.ProgressEvent))
	return nil
}

func (r *recorder) events() []*models.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.ProgressEvent(nil), r.got...)
}

func newDispatcher(t *testing.T, service interfaces.EventService, size int) *Dispatcher {
	t.Helper()
	d := NewDispatcher(service, arbor.NewLogger(), size)
	t.Cleanup(func() { d.Close(time.Second) })
	return d
}

func collect(t *testing.T) (*Dispatcher, *recorder) {
	t.Helper()
	service := events.NewService(arbor.NewLogger())
	rec := &recorder{}
	require.NoError(t, service.Subscribe(interfaces.EventProgress, rec.handle))
	require.NoError(t, service.Subscribe(interfaces.EventPostStatus, rec.handle))
	return newDispatcher(t, service, 0), rec
}

func TestProgressIsClampedAndMonotonic(t *testing.T) {
	d, rec := collect(t)

	n := NewNotifier(d, "post-1", "user-1", models.TaskPublish)
	n.Started("starting")
	n.Progress(-5, "negative")
	n.Progress(40, "forty")
	n.Progress(30, "regress")
	n.Progress(250, "overflow")
	n.Completed("done", map[string]string{"url": "https://example.com/blog/1"})
	n.Progress(10, "after the end")

	require.True(t, d.Flush(time.Second))
	got := rec.events()

	var percents []int
	for _, e := range got {
		percents = append(percents, e.Progress)
		assert.Equal(t, "post-1", e.PostID)
		assert.Equal(t, models.TaskPublish, e.TaskType)
	}
	assert.Equal(t, []int{0, 0, 40, 40, 100, 100}, percents)
	assert.Equal(t, models.ProgressStarted, got[0].Type)
	assert.Equal(t, models.ProgressCompleted, got[5].Type)

	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Sequence, got[i-1].Sequence)
	}
}

func TestFailedKeepsLastProgress(t *testing.T) {
	d, rec := collect(t)

	n := NewNotifier(d, "post-1", "", models.TaskGenerate)
	n.Started("")
	n.Progress(35, "writing")
	n.Failed("generator unavailable", 2, "retrying in 2m0s")

	require.True(t, d.Flush(time.Second))
	got := rec.events()
	last := got[len(got)-1]
	assert.Equal(t, models.ProgressFailed, last.Type)
	assert.Equal(t, 35, last.Progress)
	assert.Equal(t, 2, last.RetryCount)
	assert.Equal(t, "generator unavailable", last.Error)
	assert.True(t, last.Type.IsTerminal())

	// A new run starts from zero again
	n.Started("")
	n.Progress(10, "")
	require.True(t, d.Flush(time.Second))
	got = rec.events()
	assert.Equal(t, 10, got[len(got)-1].Progress)
}

func TestStatusUpdate(t *testing.T) {
	d, rec := collect(t)

	NewNotifier(d, "post-1", "", models.TaskPublish).
		StatusUpdate(models.PostStatusReady, models.PostStatusPublishing)

	require.True(t, d.Flush(time.Second))
	got := rec.events()
	require.Len(t, got, 1)
	assert.Equal(t, models.ProgressStatusUpdate, got[0].Type)
	assert.Equal(t, models.PostStatusReady, got[0].OldStatus)
	assert.Equal(t, models.PostStatusPublishing, got[0].NewStatus)
}

func TestNotifiersSharingDispatcherKeepOrder(t *testing.T) {
	d, rec := collect(t)

	NewNotifier(d, "post-1", "", models.TaskPublish).StatusUpdate(models.PostStatusReady, models.PostStatusPublishing)
	run := NewNotifier(d, "post-1", "", models.TaskPublish)
	run.Started("")
	run.Completed("", nil)

	require.True(t, d.Flush(time.Second))
	var types []models.ProgressType
	for _, e := range rec.events() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []models.ProgressType{models.ProgressStatusUpdate, models.ProgressStarted, models.ProgressCompleted}, types)
}

func TestSinkFailuresNeverReachCaller(t *testing.T) {
	service := events.NewService(arbor.NewLogger())
	require.NoError(t, service.Subscribe(interfaces.EventProgress, func(ctx context.Context, event interfaces.Event) error {
		return errors.New("socket closed")
	}))
	require.NoError(t, service.Subscribe(interfaces.EventProgress, func(ctx context.Context, event interfaces.Event) error {
		panic("broken sink")
	}))
	d := newDispatcher(t, service, 0)

	n := NewNotifier(d, "post-1", "", models.TaskPublish)
	assert.NotPanics(t, func() {
		n.Started("")
		n.Progress(50, "")
		n.Failed("x", 1, "")
	})
	assert.True(t, d.Flush(time.Second))
}

func TestBlockedSinkDoesNotStallCaller(t *testing.T) {
	service := events.NewService(arbor.NewLogger())
	release := make(chan struct{})
	require.NoError(t, service.Subscribe(interfaces.EventProgress, func(ctx context.Context, event interfaces.Event) error {
		<-release
		return nil
	}))
	d := newDispatcher(t, service, 4)
	defer close(release)

	n := NewNotifier(d, "post-1", "", models.TaskPublish)
	start := time.Now()
	n.Started("")
	for i := 1; i <= 20; i++ {
		n.Progress(i*5, "")
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	// One event is held by the blocked sink, four wait in the buffer, the rest are dropped
	assert.GreaterOrEqual(t, d.Dropped(), int64(16))
	assert.False(t, d.Flush(20*time.Millisecond))
}

func TestClosedDispatcherDropsEvents(t *testing.T) {
	d, rec := collect(t)
	d.Close(time.Second)

	NewNotifier(d, "post-1", "", models.TaskPublish).Started("")

	assert.Empty(t, rec.events())
	assert.Equal(t, int64(1), d.Dropped())
}

func TestNilDispatcherDiscards(t *testing.T) {
	n := NewNotifier(nil, "post-1", "", models.TaskPublish)
	assert.NotPanics(t, func() {
		n.Started("")
		n.Progress(10, "")
		n.Completed("", nil)
	})
}
