package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/gazette/internal/models"
)

// TaskLauncher hands a due task over for execution. Implemented by the task
// service facade; the scheduler never drives the runner directly.
type TaskLauncher interface {
	ExecuteTask(ctx context.Context, taskID string) (*models.RunResult, error)
}

// SchedulerService polls for due tasks and launches them
type SchedulerService interface {
	Start() error
	Stop() error
	IsRunning() bool
	FindDueTasks(ctx context.Context, cronExpr string, now time.Time) ([]*models.Task, error)
	FindFailedTasks(ctx context.Context, days int) ([]*models.Task, error)
}
