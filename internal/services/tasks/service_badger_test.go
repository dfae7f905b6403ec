package tasks

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/common"
	"github.com/ternarybob/gazette/internal/models"
	"github.com/ternarybob/gazette/internal/services/progress"
	"github.com/ternarybob/gazette/internal/services/runner"
	storage "github.com/ternarybob/gazette/internal/storage/badger"
)

// newBadgerFixture wires the facade to badger-backed stores instead of the
// in-memory fakes, so the miss semantics exercised here are the ones the
// deployed service sees.
func newBadgerFixture(t *testing.T) *Service {
	t.Helper()
	logger := arbor.NewLogger()

	db, err := storage.NewBadgerDB(logger, &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	broadcast := progress.NewBroadcaster(logger)
	taskRunner := runner.NewRunner(
		storage.NewArticleStorage(db, logger),
		broadcast,
		runner.NewController(),
		runner.NewCSVWriter(t.TempDir(), nil),
		logger,
	)

	return NewService(
		storage.NewTaskStorage(db, logger),
		storage.NewHistoryStorage(db, logger),
		storage.NewCrawlerStorage(db, logger),
		taskRunner, &staticResolver{fetcher: &staticFetcher{}}, broadcast,
		1, logger,
	)
}

func TestGetTaskByIDMissingWithBadgerStore(t *testing.T) {
	svc := newBadgerFixture(t)

	result := svc.GetTaskByID(context.Background(), "task_missing", nil)
	require.False(t, result.Success)
	assert.Contains(t, result.Message, msgTaskNotFound)
}

func TestCreateTaskUnknownCrawlerWithBadgerStore(t *testing.T) {
	svc := newBadgerFixture(t)

	result := svc.CreateTask(context.Background(), map[string]interface{}{
		"name":       "orphan task",
		"crawler_id": "crw_missing",
		"task_args":  map[string]interface{}{"scrape_mode": "links_only"},
	})
	require.False(t, result.Success)
	assert.Contains(t, result.Message, msgCrawlerNotFound)
}

func TestGetTaskByIDRoundTripWithBadgerStore(t *testing.T) {
	svc := newBadgerFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.crawlers.SaveCrawler(ctx, &models.Crawler{
		ID: "crw_1", Name: "example-news", IsActive: true,
	}))

	created := svc.CreateTask(ctx, map[string]interface{}{
		"name":       "real store task",
		"crawler_id": "crw_1",
		"task_args":  map[string]interface{}{"scrape_mode": "links_only"},
	})
	require.True(t, created.Success, created.Message)
	task := created.Payload.(*models.Task)

	loaded := svc.GetTaskByID(ctx, task.ID, nil)
	require.True(t, loaded.Success, loaded.Message)
	assert.Equal(t, task.ID, loaded.Payload.(*models.Task).ID)
}
