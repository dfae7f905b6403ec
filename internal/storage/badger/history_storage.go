package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/interfaces"
	"github.com/ternarybob/gazette/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// HistoryStorage implements the TaskHistoryStorage interface for Badger
type HistoryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewHistoryStorage creates a new HistoryStorage instance
func NewHistoryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TaskHistoryStorage {
	return &HistoryStorage{
		db:     db,
		logger: logger,
	}
}

// SaveHistory inserts or updates a history row
func (s *HistoryStorage) SaveHistory(ctx context.Context, history *models.TaskHistory) error {
	if history.ID == "" {
		return fmt.Errorf("history ID is required")
	}
	if history.TaskID == "" {
		return fmt.Errorf("history task ID is required")
	}
	history.NormalizeTimestamps()

	if err := s.db.Store().Upsert(history.ID, history); err != nil {
		return fmt.Errorf("failed to save task history: %w", err)
	}
	return nil
}

// GetHistory returns a history row by ID, nil when absent
func (s *HistoryStorage) GetHistory(ctx context.Context, historyID string) (*models.TaskHistory, error) {
	var history models.TaskHistory
	if err := s.db.Store().Get(historyID, &history); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get task history: %w", err)
	}
	history.NormalizeTimestamps()
	return &history, nil
}

// ListHistory returns history rows for a task, newest first
func (s *HistoryStorage) ListHistory(ctx context.Context, taskID string, limit, offset int) ([]*models.TaskHistory, error) {
	query := badgerhold.Where("TaskID").Eq(taskID).SortBy("StartTime").Reverse()
	if offset > 0 {
		query = query.Skip(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.TaskHistory
	if err := s.db.Store().Find(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to list task history: %w", err)
	}

	result := make([]*models.TaskHistory, len(rows))
	for i := range rows {
		rows[i].NormalizeTimestamps()
		result[i] = &rows[i]
	}
	return result, nil
}
