package status

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/interfaces"
	"github.com/ternarybob/salonpress/internal/models"
)

// AppState represents the application state
type AppState string

const (
	StateIdle AppState = "idle"
	StateBusy AppState = "busy"
)

// Snapshot is the job activity reported by the health endpoint
type Snapshot struct {
	State      AppState                `json:"state"`
	Running    map[models.TaskType]int `json:"running"`
	Completed  int64                   `json:"completed"`
	Failed     int64                   `json:"failed"`
	LastChange time.Time               `json:"last_change"`
}

// Service tracks running jobs from progress events
type Service struct {
	mu         sync.RWMutex
	running    map[string]models.TaskType
	completed  int64
	failed     int64
	lastChange time.Time
	logger     arbor.ILogger
}

// NewService creates a status service and subscribes it to progress events
func NewService(eventService interfaces.EventService, logger arbor.ILogger) (*Service, error) {
	s := &Service{
		running:    make(map[string]models.TaskType),
		lastChange: time.Now(),
		logger:     logger,
	}
	if eventService != nil {
		if err := eventService.Subscribe(interfaces.EventProgress, s.handleEvent); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Service) handleEvent(ctx context.Context, event interfaces.Event) error {
	ev, ok := event.Payload.(*models.ProgressEvent)
	if !ok || ev.PostID == "" {
		return nil
	}
	s.Observe(ev)
	return nil
}

// Observe applies one progress event
func (s *Service) Observe(ev *models.ProgressEvent) {
	key := string(ev.TaskType) + ":" + ev.PostID

	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.running)
	switch ev.Type {
	case models.ProgressStarted:
		s.running[key] = ev.TaskType
	case models.ProgressCompleted:
		delete(s.running, key)
		s.completed++
	case models.ProgressFailed:
		delete(s.running, key)
		s.failed++
	default:
		return
	}
	s.lastChange = time.Now()

	if (before == 0) != (len(s.running) == 0) {
		s.logger.Debug().
			Str("state", string(s.stateLocked())).
			Int("running", len(s.running)).
			Msg("Application state changed")
	}
}

// GetState returns idle when no job is running
func (s *Service) GetState() AppState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Service) stateLocked() AppState {
	if len(s.running) == 0 {
		return StateIdle
	}
	return StateBusy
}

// Snapshot returns a copy of the current counters
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	running := make(map[models.TaskType]int)
	for _, taskType := range s.running {
		running[taskType]++
	}
	return Snapshot{
		State:      s.stateLocked(),
		Running:    running,
		Completed:  s.completed,
		Failed:     s.failed,
		LastChange: s.lastChange,
	}
}
