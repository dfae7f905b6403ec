package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/common"
	"github.com/ternarybob/gazette/internal/interfaces"
	"github.com/ternarybob/gazette/internal/models"
	"github.com/ternarybob/gazette/internal/services/runner"
	"github.com/ternarybob/gazette/internal/services/validation"
)

// Service is the task facade: CRUD, status and history writes, retry-count
// bookkeeping, and execution hand-off to the runner. Every entry point
// returns an envelope; errors never escape.
type Service struct {
	tasks    interfaces.TaskStorage
	history  interfaces.TaskHistoryStorage
	crawlers interfaces.CrawlerStorage
	runner   *runner.Runner
	fetchers interfaces.FetcherResolver
	progress interfaces.ProgressService
	logger   arbor.ILogger
	clock    func() time.Time

	// bounds simultaneous task executions
	slots chan struct{}
}

// NewService creates a task service
func NewService(
	tasks interfaces.TaskStorage,
	history interfaces.TaskHistoryStorage,
	crawlers interfaces.CrawlerStorage,
	taskRunner *runner.Runner,
	fetchers interfaces.FetcherResolver,
	progress interfaces.ProgressService,
	maxConcurrent int,
	logger arbor.ILogger,
) *Service {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Service{
		tasks:    tasks,
		history:  history,
		crawlers: crawlers,
		runner:   taskRunner,
		fetchers: fetchers,
		progress: progress,
		logger:   logger,
		clock:    time.Now,
		slots:    make(chan struct{}, maxConcurrent),
	}
}

func failure(format string, args ...interface{}) *models.ServiceResult {
	return &models.ServiceResult{Success: false, Message: fmt.Sprintf(format, args...)}
}

func success(message string, payload interface{}) *models.ServiceResult {
	return &models.ServiceResult{Success: true, Message: message, Payload: payload}
}

// CreateTask validates and persists a new task
func (s *Service) CreateTask(ctx context.Context, data map[string]interface{}) *models.ServiceResult {
	create, err := validation.ValidateTaskCreate(data)
	if err != nil {
		return failure("%s: %v", msgValidationFailed, err)
	}

	crawler, err := s.crawlers.GetCrawler(ctx, create.CrawlerID)
	if err != nil {
		return failure("failed to look up crawler: %v", err)
	}
	if crawler == nil {
		return failure("%s: %s", msgCrawlerNotFound, create.CrawlerID)
	}

	now := s.clock().UTC()
	task := &models.Task{
		ID:             common.NewTaskID(),
		Name:           create.Name,
		CrawlerID:      create.CrawlerID,
		IsAuto:         create.IsAuto,
		IsActive:       create.IsActive,
		CronExpression: create.CronExpression,
		Args:           create.Args,
		ScrapePhase:    models.PhaseInit,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.tasks.SaveTask(ctx, task); err != nil {
		return failure("failed to save task: %v", err)
	}

	s.logger.Info().
		Str("task_id", task.ID).
		Str("task_name", task.Name).
		Str("crawler_id", task.CrawlerID).
		Msg("Task created")

	return success(msgTaskCreated, task)
}

// UpdateTask applies a patch to a task. task_args are deep-merged so nested
// keys absent from the patch survive; immutable fields are rejected before
// anything is written.
func (s *Service) UpdateTask(ctx context.Context, taskID string, patch map[string]interface{}) *models.ServiceResult {
	update, err := validation.ValidateTaskUpdate(patch)
	if err != nil {
		return failure("%s: %v", msgValidationFailed, err)
	}

	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return failure("failed to load task: %v", err)
	}
	if task == nil {
		return failure("%s: %s", msgTaskNotFound, taskID)
	}

	if update.Name != nil {
		task.Name = *update.Name
	}
	if update.IsAuto != nil {
		task.IsAuto = *update.IsAuto
	}
	if update.IsActive != nil {
		task.IsActive = *update.IsActive
	}
	if update.CronExpression != nil {
		task.CronExpression = *update.CronExpression
	}
	if update.Args != nil {
		merged := models.DeepMergeArgs(task.Args, update.Args)
		if err := validation.ValidateMergedTaskArgs(merged); err != nil {
			return failure("%s: %v", msgValidationFailed, err)
		}
		task.Args = merged
	}

	if task.IsAuto && task.CronExpression == "" {
		return failure("%s: cron_expression is required when is_auto is true", msgValidationFailed)
	}

	task.UpdatedAt = s.clock().UTC()
	if err := s.tasks.SaveTask(ctx, task); err != nil {
		return failure("failed to save task: %v", err)
	}

	s.logger.Info().Str("task_id", task.ID).Msg("Task updated")
	return success(msgTaskUpdated, task)
}

// GetTaskByID returns a task. A nil isActive matches regardless of the
// active flag.
func (s *Service) GetTaskByID(ctx context.Context, taskID string, isActive *bool) *models.ServiceResult {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return failure("failed to load task: %v", err)
	}
	if task == nil {
		return failure("%s: %s", msgTaskNotFound, taskID)
	}
	if isActive != nil && task.IsActive != *isActive {
		return failure("%s: %s", msgTaskNotFound, taskID)
	}
	return success("", task)
}

// DeleteTask removes a task. Scheduler removal is the caller's concern.
func (s *Service) DeleteTask(ctx context.Context, taskID string) *models.ServiceResult {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return failure("failed to load task: %v", err)
	}
	if task == nil {
		return failure("%s: %s", msgTaskNotFound, taskID)
	}

	if err := s.tasks.DeleteTask(ctx, taskID); err != nil {
		return failure("failed to delete task: %v", err)
	}

	s.logger.Info().Str("task_id", taskID).Msg("Task deleted")
	return success(msgTaskDeleted, nil)
}

// UpdateTaskStatus writes the task's status fields and, when a history ID is
// supplied, patches the referenced history row. The history row must belong
// to the task; a mismatch fails before anything is written.
func (s *Service) UpdateTaskStatus(ctx context.Context, taskID string, taskStatus models.TaskStatus, scrapePhase models.ScrapePhase, historyID string, historyPatch *models.TaskHistory) *models.ServiceResult {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return failure("failed to load task: %v", err)
	}
	if task == nil {
		return failure("%s: %s", msgTaskNotFound, taskID)
	}

	var hist *models.TaskHistory
	if historyID != "" {
		hist, err = s.history.GetHistory(ctx, historyID)
		if err != nil {
			return failure("failed to load history: %v", err)
		}
		if hist == nil {
			return failure("%s: %s", msgHistoryNotFound, historyID)
		}
		if hist.TaskID != taskID {
			return failure("%s: %s", msgHistoryMismatch, historyID)
		}
	}

	task.ScrapePhase = scrapePhase
	task.UpdatedAt = s.clock().UTC()

	if hist != nil && historyPatch != nil {
		hist.TaskStatus = taskStatus
		if historyPatch.EndTime != nil {
			hist.EndTime = historyPatch.EndTime
		}
		if historyPatch.Success != nil {
			hist.Success = historyPatch.Success
		}
		if historyPatch.ArticlesCount != nil {
			hist.ArticlesCount = historyPatch.ArticlesCount
		}
		if historyPatch.Message != "" {
			hist.Message = historyPatch.Message
		}
	}

	// one transaction: the phase change and its history row land together
	if err := s.tasks.SaveTaskAndHistory(ctx, task, hist); err != nil {
		return failure("failed to save task: %v", err)
	}

	return success(msgStatusUpdated, task)
}

// TaskStatusPayload is the shape returned by GetTaskStatus
type TaskStatusPayload struct {
	TaskID      string             `json:"task_id"`
	TaskStatus  models.TaskStatus  `json:"task_status"`
	ScrapePhase models.ScrapePhase `json:"scrape_phase"`
	Progress    int                `json:"progress"`
	Message     string             `json:"message"`
}

// GetTaskStatus reports live progress for a running task, or the persisted
// terminal state otherwise
func (s *Service) GetTaskStatus(ctx context.Context, taskID string) *models.ServiceResult {
	if state := s.runner.Controller().State(taskID); state != nil {
		return success("", &TaskStatusPayload{
			TaskID:      taskID,
			TaskStatus:  models.TaskStatusRunning,
			ScrapePhase: state.ScrapePhase,
			Progress:    state.Progress,
			Message:     state.Message,
		})
	}

	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return failure("failed to load task: %v", err)
	}
	if task == nil {
		return failure("%s: %s", msgTaskNotFound, taskID)
	}

	payload := &TaskStatusPayload{
		TaskID:      taskID,
		ScrapePhase: task.ScrapePhase,
		Message:     task.LastRunMessage,
	}
	switch task.ScrapePhase {
	case models.PhaseCompleted:
		payload.TaskStatus = models.TaskStatusCompleted
		payload.Progress = 100
	case models.PhaseFailed:
		payload.TaskStatus = models.TaskStatusFailed
	case models.PhaseCancelled:
		payload.TaskStatus = models.TaskStatusCancelled
	default:
		payload.TaskStatus = models.TaskStatusInit
	}
	return success("", payload)
}

// FindTaskHistory lists a task's history rows, newest first
func (s *Service) FindTaskHistory(ctx context.Context, taskID string, limit, offset int) *models.ServiceResult {
	rows, err := s.history.ListHistory(ctx, taskID, limit, offset)
	if err != nil {
		return failure("failed to load history: %v", err)
	}
	return success("", rows)
}

// IncrementRetryCount bumps the task's retry count, failing without change
// when the budget is exhausted
func (s *Service) IncrementRetryCount(ctx context.Context, taskID string) *models.ServiceResult {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return failure("failed to load task: %v", err)
	}
	if task == nil {
		return failure("%s: %s", msgTaskNotFound, taskID)
	}

	if task.RetryCount+1 > task.MaxRetries() {
		return failure("%s: retry_count=%d, max_retries=%d", msgRetryExceeded, task.RetryCount, task.MaxRetries())
	}

	task.RetryCount++
	task.UpdatedAt = s.clock().UTC()
	if err := s.tasks.SaveTask(ctx, task); err != nil {
		return failure("failed to save task: %v", err)
	}
	return success("", task)
}

// ResetRetryCount zeroes the retry count. Idempotent.
func (s *Service) ResetRetryCount(ctx context.Context, taskID string) *models.ServiceResult {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return failure("failed to load task: %v", err)
	}
	if task == nil {
		return failure("%s: %s", msgTaskNotFound, taskID)
	}

	if task.RetryCount != 0 {
		task.RetryCount = 0
		task.UpdatedAt = s.clock().UTC()
		if err := s.tasks.SaveTask(ctx, task); err != nil {
			return failure("failed to save task: %v", err)
		}
	}
	return success(msgRetryReset, task)
}

// UpdateMaxRetries deep-updates task_args.max_retries, leaving sibling keys
// untouched. The retry count is clamped down when the new budget is smaller.
func (s *Service) UpdateMaxRetries(ctx context.Context, taskID string, maxRetries int) *models.ServiceResult {
	if maxRetries < 0 {
		return failure("%s: max_retries must be >= 0, got %d", msgValidationFailed, maxRetries)
	}

	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return failure("failed to load task: %v", err)
	}
	if task == nil {
		return failure("%s: %s", msgTaskNotFound, taskID)
	}

	task.Args = models.DeepMergeArgs(task.Args, map[string]interface{}{
		"max_retries": maxRetries,
	})
	if task.RetryCount > maxRetries {
		task.RetryCount = maxRetries
	}
	task.UpdatedAt = s.clock().UTC()

	if err := s.tasks.SaveTask(ctx, task); err != nil {
		return failure("failed to save task: %v", err)
	}

	s.logger.Info().
		Str("task_id", taskID).
		Int("max_retries", maxRetries).
		Msg("Task max_retries updated")
	return success(msgTaskUpdated, task)
}

// ValidateTaskData runs the create schema without persisting
func (s *Service) ValidateTaskData(data map[string]interface{}) *models.ServiceResult {
	create, err := validation.ValidateTaskCreate(data)
	if err != nil {
		return failure("%s: %v", msgValidationFailed, err)
	}
	return success("", create)
}

// FindTasksAdvanced lists tasks by filter. When preview fields are given,
// each task is projected to just those fields.
func (s *Service) FindTasksAdvanced(ctx context.Context, filter *interfaces.TaskFilter, previewFields []string) *models.ServiceResult {
	tasks, total, err := s.tasks.ListTasks(ctx, filter)
	if err != nil {
		return failure("failed to list tasks: %v", err)
	}

	payload := map[string]interface{}{"total": total}
	if len(previewFields) == 0 {
		payload["tasks"] = tasks
		return success("", payload)
	}

	preview := make([]map[string]interface{}, 0, len(tasks))
	for _, task := range tasks {
		preview = append(preview, projectTask(task, previewFields))
	}
	payload["tasks"] = preview
	return success("", payload)
}

// projectTask builds a field-subset view of a task
func projectTask(task *models.Task, fields []string) map[string]interface{} {
	row := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		switch field {
		case "id":
			row["id"] = task.ID
		case "name":
			row["name"] = task.Name
		case "crawler_id":
			row["crawler_id"] = task.CrawlerID
		case "is_auto":
			row["is_auto"] = task.IsAuto
		case "is_active":
			row["is_active"] = task.IsActive
		case "cron_expression":
			row["cron_expression"] = task.CronExpression
		case "task_args":
			row["task_args"] = task.Args
		case "scrape_phase":
			row["scrape_phase"] = task.ScrapePhase
		case "retry_count":
			row["retry_count"] = task.RetryCount
		case "last_run_at":
			row["last_run_at"] = task.LastRunAt
		case "last_run_success":
			row["last_run_success"] = task.LastRunSuccess
		case "last_run_message":
			row["last_run_message"] = task.LastRunMessage
		case "created_at":
			row["created_at"] = task.CreatedAt
		case "updated_at":
			row["updated_at"] = task.UpdatedAt
		}
	}
	return row
}

// ExecuteTask runs a task synchronously: opens a history row, hands the task
// to the runner, and writes the terminal state back. Implements
// interfaces.TaskLauncher for the scheduler.
func (s *Service) ExecuteTask(ctx context.Context, taskID string) (*models.RunResult, error) {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	if task == nil {
		return nil, fmt.Errorf("%s: %s", msgTaskNotFound, taskID)
	}
	if !task.IsActive {
		return nil, fmt.Errorf("task %s is not active", taskID)
	}

	fetcher, err := s.fetchers.FetcherFor(ctx, task.CrawlerID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve fetcher: %w", err)
	}

	s.slots <- struct{}{}
	defer func() { <-s.slots }()

	now := s.clock().UTC()
	hist := &models.TaskHistory{
		ID:         common.NewHistoryID(),
		TaskID:     task.ID,
		StartTime:  now,
		TaskStatus: models.TaskStatusRunning,
		CreatedAt:  now,
	}
	if err := s.history.SaveHistory(ctx, hist); err != nil {
		return nil, fmt.Errorf("failed to open history row: %w", err)
	}

	task.ScrapePhase = models.PhaseInit
	task.LastRunAt = &now
	task.UpdatedAt = now
	if err := s.tasks.SaveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to mark task started: %w", err)
	}

	result := s.runner.Execute(ctx, task.ID, task.Args, fetcher)

	s.finishRun(ctx, task.ID, hist.ID, result)
	return result, nil
}

// finishRun writes the run outcome onto the task and its history row
func (s *Service) finishRun(ctx context.Context, taskID, historyID string, result *models.RunResult) {
	end := s.clock().UTC()
	status := statusForPhase(result.ScrapePhase)

	patch := &models.TaskHistory{
		EndTime:       &end,
		Success:       &result.Success,
		ArticlesCount: &result.ArticlesCount,
		Message:       result.Message,
	}
	if envelope := s.UpdateTaskStatus(ctx, taskID, status, result.ScrapePhase, historyID, patch); !envelope.Success {
		s.logger.Warn().
			Str("task_id", taskID).
			Str("message", envelope.Message).
			Msg("Failed to record run outcome")
	}

	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil || task == nil {
		return
	}
	task.LastRunSuccess = &result.Success
	task.LastRunMessage = result.Message
	task.UpdatedAt = end
	if err := s.tasks.SaveTask(ctx, task); err != nil {
		s.logger.Warn().Err(err).Str("task_id", taskID).Msg("Failed to record last-run fields")
	}
}

func statusForPhase(phase models.ScrapePhase) models.TaskStatus {
	switch phase {
	case models.PhaseCompleted:
		return models.TaskStatusCompleted
	case models.PhaseCancelled:
		return models.TaskStatusCancelled
	case models.PhaseFailed:
		return models.TaskStatusFailed
	default:
		return models.TaskStatusRunning
	}
}

// CancelTask flags a running task for cancellation and publishes an
// immediate cancelled progress update. Cancelling a task that is not running
// returns failure without state change; cancelling twice is safe.
func (s *Service) CancelTask(taskID string) *models.ServiceResult {
	state := s.runner.Controller().State(taskID)
	if !s.runner.Controller().Cancel(taskID) {
		return failure("%s: %s", msgTaskNotRunning, taskID)
	}

	payload := &models.ProgressPayload{
		TaskID:      taskID,
		ScrapePhase: models.PhaseCancelled,
		Message:     msgTaskCancelled,
	}
	if state != nil {
		payload.Progress = state.Progress
		payload.StartTime = state.StartTime
	}
	s.progress.Notify(taskID, payload)

	s.logger.Info().Str("task_id", taskID).Msg("Task cancellation requested")
	return success(msgTaskCancelled, nil)
}
