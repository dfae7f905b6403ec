package badger

import (
	"context"
	"fmt"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/interfaces"
	"github.com/ternarybob/gazette/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// TaskStorage implements the TaskStorage interface for Badger
type TaskStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTaskStorage creates a new TaskStorage instance
func NewTaskStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TaskStorage {
	return &TaskStorage{
		db:     db,
		logger: logger,
	}
}

// SaveTask inserts or updates a task
func (s *TaskStorage) SaveTask(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	task.UpdatedAt = time.Now().UTC()
	task.NormalizeTimestamps()

	if err := s.db.Store().Upsert(task.ID, task); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// GetTask returns a task by ID, nil when absent. Absence is not an error:
// the facade decides what a miss means.
func (s *TaskStorage) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	var task models.Task
	if err := s.db.Store().Get(taskID, &task); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	task.NormalizeTimestamps()
	return &task, nil
}

// SaveTaskAndHistory writes the task and its history row inside a single
// badger transaction, so a crash between the two cannot leave a phase change
// without its history entry
func (s *TaskStorage) SaveTaskAndHistory(ctx context.Context, task *models.Task, history *models.TaskHistory) error {
	if task.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	task.UpdatedAt = time.Now().UTC()
	task.NormalizeTimestamps()

	if history != nil {
		if history.ID == "" {
			return fmt.Errorf("history ID is required")
		}
		if history.TaskID == "" {
			return fmt.Errorf("history task ID is required")
		}
		history.NormalizeTimestamps()
	}

	err := s.db.Store().Badger().Update(func(tx *badgerdb.Txn) error {
		if err := s.db.Store().TxUpsert(tx, task.ID, task); err != nil {
			return err
		}
		if history != nil {
			return s.db.Store().TxUpsert(tx, history.ID, history)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save task and history: %w", err)
	}
	return nil
}

// DeleteTask removes a task
func (s *TaskStorage) DeleteTask(ctx context.Context, taskID string) error {
	if err := s.db.Store().Delete(taskID, &models.Task{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("task not found: %s", taskID)
		}
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// ListTasks returns a filtered page of tasks plus the total match count
func (s *TaskStorage) ListTasks(ctx context.Context, filter *interfaces.TaskFilter) ([]*models.Task, int, error) {
	if filter == nil {
		filter = &interfaces.TaskFilter{}
	}

	query := badgerhold.Where("ID").Ne("")
	if filter.Name != "" {
		name := strings.ToLower(filter.Name)
		query = query.And("ID").MatchFunc(func(ra *badgerhold.RecordAccess) (bool, error) {
			t, ok := ra.Record().(*models.Task)
			if !ok {
				return false, nil
			}
			return strings.Contains(strings.ToLower(t.Name), name), nil
		})
	}
	if filter.CrawlerID != "" {
		query = query.And("CrawlerID").Eq(filter.CrawlerID)
	}
	if filter.IsAuto != nil {
		query = query.And("IsAuto").Eq(*filter.IsAuto)
	}
	if filter.IsActive != nil {
		query = query.And("IsActive").Eq(*filter.IsActive)
	}

	total, err := s.db.Store().Count(&models.Task{}, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count tasks: %w", err)
	}

	sortField := taskSortField(filter.SortBy)
	if filter.SortDesc {
		query = query.SortBy(sortField).Reverse()
	} else {
		query = query.SortBy(sortField)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	if filter.PerPage > 0 {
		query = query.Skip((page - 1) * filter.PerPage).Limit(filter.PerPage)
	}

	var tasks []models.Task
	if err := s.db.Store().Find(&tasks, query); err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}

	result := make([]*models.Task, len(tasks))
	for i := range tasks {
		tasks[i].NormalizeTimestamps()
		result[i] = &tasks[i]
	}
	return result, int(total), nil
}

// GetTasksByCron returns the active auto tasks bound to a cron expression
func (s *TaskStorage) GetTasksByCron(ctx context.Context, cronExpr string) ([]*models.Task, error) {
	var tasks []models.Task
	query := badgerhold.Where("CronExpression").Eq(cronExpr).
		And("IsAuto").Eq(true).
		And("IsActive").Eq(true)
	if err := s.db.Store().Find(&tasks, query); err != nil {
		return nil, fmt.Errorf("failed to get tasks by cron: %w", err)
	}

	result := make([]*models.Task, len(tasks))
	for i := range tasks {
		tasks[i].NormalizeTimestamps()
		result[i] = &tasks[i]
	}
	return result, nil
}

// GetTasksByPhase returns tasks currently in the given scrape phase
func (s *TaskStorage) GetTasksByPhase(ctx context.Context, phase models.ScrapePhase) ([]*models.Task, error) {
	var tasks []models.Task
	if err := s.db.Store().Find(&tasks, badgerhold.Where("ScrapePhase").Eq(phase)); err != nil {
		return nil, fmt.Errorf("failed to get tasks by phase: %w", err)
	}

	result := make([]*models.Task, len(tasks))
	for i := range tasks {
		tasks[i].NormalizeTimestamps()
		result[i] = &tasks[i]
	}
	return result, nil
}

func taskSortField(sortBy string) string {
	switch strings.ToLower(strings.TrimSpace(sortBy)) {
	case "name":
		return "Name"
	case "updated_at":
		return "UpdatedAt"
	case "last_run_at":
		return "LastRunAt"
	default:
		return "CreatedAt"
	}
}
