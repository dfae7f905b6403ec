package progress

import (
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/interfaces"
	"github.com/ternarybob/gazette/internal/models"
)

// Broadcaster implements the ProgressService interface with a per-task
// listener registry. Notify iterates a snapshot of the current listeners so
// concurrent add/remove never interleaves with a delivery; a listener failure
// is logged and does not interrupt siblings.
type Broadcaster struct {
	listeners map[string][]interfaces.ProgressListener
	mu        sync.Mutex
	logger    arbor.ILogger
}

// NewBroadcaster creates a new progress broadcaster
func NewBroadcaster(logger arbor.ILogger) *Broadcaster {
	return &Broadcaster{
		listeners: make(map[string][]interfaces.ProgressListener),
		logger:    logger,
	}
}

// Add registers a listener for a task
func (b *Broadcaster) Add(taskID string, listener interfaces.ProgressListener) {
	if listener == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.listeners[taskID] = append(b.listeners[taskID], listener)

	b.logger.Debug().
		Str("task_id", taskID).
		Int("listener_count", len(b.listeners[taskID])).
		Msg("Progress listener added")
}

// Remove unregisters a listener from a task
func (b *Broadcaster) Remove(taskID string, listener interfaces.ProgressListener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.listeners[taskID]
	for i, l := range current {
		if l == listener {
			b.listeners[taskID] = append(current[:i], current[i+1:]...)
			break
		}
	}
	if len(b.listeners[taskID]) == 0 {
		delete(b.listeners, taskID)
	}
}

// Clear removes every listener registered for a task
func (b *Broadcaster) Clear(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.listeners, taskID)
}

// Notify delivers a payload to every listener registered for the task.
// Delivery order within a notification is unspecified.
func (b *Broadcaster) Notify(taskID string, payload *models.ProgressPayload) {
	b.mu.Lock()
	snapshot := make([]interfaces.ProgressListener, len(b.listeners[taskID]))
	copy(snapshot, b.listeners[taskID])
	b.mu.Unlock()

	for _, listener := range snapshot {
		if err := listener.OnProgress(payload); err != nil {
			b.logger.Warn().
				Err(err).
				Str("task_id", taskID).
				Str("phase", string(payload.ScrapePhase)).
				Msg("Progress listener failed")
		}
	}
}
