package runner

import (
	"sync"
	"time"

	"github.com/ternarybob/gazette/internal/models"
)

// TaskState is a snapshot of a running task's control block
type TaskState struct {
	TaskID      string             `json:"task_id"`
	Cancelled   bool               `json:"cancelled"`
	ScrapePhase models.ScrapePhase `json:"scrape_phase"`
	Progress    int                `json:"progress"`
	Message     string             `json:"message"`
	StartTime   time.Time          `json:"start_time"`
}

// taskControl is the per-run control block. It is created when a run starts
// and removed when the run finishes; its lifecycle is tied to exactly one
// execution, never shared across runs.
type taskControl struct {
	mu        sync.Mutex
	taskID    string
	cancelled bool
	phase     models.ScrapePhase
	progress  int
	message   string
	startTime time.Time
}

// Cancelled implements interfaces.CancelToken
func (c *taskControl) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

func (c *taskControl) set(phase models.ScrapePhase, progress int, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = phase
	c.progress = progress
	c.message = message
}

func (c *taskControl) snapshot() *TaskState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &TaskState{
		TaskID:      c.taskID,
		Cancelled:   c.cancelled,
		ScrapePhase: c.phase,
		Progress:    c.progress,
		Message:     c.message,
		StartTime:   c.startTime,
	}
}

// Controller tracks the control blocks of in-flight task runs. Cancel flags
// are set through here and observed by runners at phase boundaries and
// between retry attempts.
type Controller struct {
	mu    sync.Mutex
	tasks map[string]*taskControl
	clock func() time.Time
}

// NewController creates a task run controller
func NewController() *Controller {
	return &Controller{
		tasks: make(map[string]*taskControl),
		clock: time.Now,
	}
}

// Begin registers a control block for a task run. It fails when the task is
// already running.
func (c *Controller) Begin(taskID string) (*taskControl, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tasks[taskID]; exists {
		return nil, ErrTaskAlreadyRunning
	}

	control := &taskControl{
		taskID:    taskID,
		phase:     models.PhaseInit,
		startTime: c.clock().UTC(),
	}
	c.tasks[taskID] = control
	return control, nil
}

// Finish removes the control block after a run terminates
func (c *Controller) Finish(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tasks, taskID)
}

// Cancel sets the cancel flag on a running task. It is idempotent and
// returns false when the task is not running (already completed, failed,
// or never started).
func (c *Controller) Cancel(taskID string) bool {
	c.mu.Lock()
	control, exists := c.tasks[taskID]
	c.mu.Unlock()

	if !exists {
		return false
	}

	control.mu.Lock()
	defer control.mu.Unlock()
	if control.cancelled {
		return true
	}
	control.cancelled = true
	return true
}

// IsRunning reports whether a run is in flight for the task
func (c *Controller) IsRunning(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.tasks[taskID]
	return exists
}

// RunningTaskIDs returns the IDs of every in-flight run
func (c *Controller) RunningTaskIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.tasks))
	for id := range c.tasks {
		ids = append(ids, id)
	}
	return ids
}

// State returns a snapshot of a running task's control block, or nil when
// the task is not running
func (c *Controller) State(taskID string) *TaskState {
	c.mu.Lock()
	control, exists := c.tasks[taskID]
	c.mu.Unlock()

	if !exists {
		return nil
	}
	return control.snapshot()
}
