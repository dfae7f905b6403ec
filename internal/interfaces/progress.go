package interfaces

import "github.com/ternarybob/gazette/internal/models"

// ProgressListener receives progress payloads for a task. A listener failure
// is logged and never interrupts sibling listeners.
type ProgressListener interface {
	OnProgress(payload *models.ProgressPayload) error
}

// ProgressListenerFunc adapts a function to the ProgressListener interface
type ProgressListenerFunc func(payload *models.ProgressPayload) error

func (f ProgressListenerFunc) OnProgress(payload *models.ProgressPayload) error {
	return f(payload)
}

// ProgressService is the per-task listener registry and notification fan-out
type ProgressService interface {
	Add(taskID string, listener ProgressListener)
	Remove(taskID string, listener ProgressListener)
	Clear(taskID string)
	Notify(taskID string, payload *models.ProgressPayload)
}
