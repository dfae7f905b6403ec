package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/models"
)

func TestTaskRoundTripPreservesArgs(t *testing.T) {
	db := newTestDB(t)
	storage := NewTaskStorage(db, arbor.NewLogger())
	ctx := context.Background()

	task := &models.Task{
		ID:             "task-1",
		Name:           "nightly scrape",
		CrawlerID:      "crw-1",
		IsAuto:         true,
		IsActive:       true,
		CronExpression: "0 0 * * *",
		Args: map[string]interface{}{
			"scrape_mode": "full_scrape",
			"max_retries": 3,
			"retry_delay": 0.5,
			"save_to_csv": true,
		},
		ScrapePhase: models.PhaseInit,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, storage.SaveTask(ctx, task))

	got, err := storage.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "nightly scrape", got.Name)
	assert.Equal(t, 3, got.MaxRetries())

	args, err := models.ParseTaskArgs(got.Args)
	require.NoError(t, err)
	assert.Equal(t, models.ModeFullScrape, args.ScrapeMode)
	assert.Equal(t, 0.5, args.RetryDelay)
	assert.True(t, args.SaveToCSV)
}

func TestGetTasksByCronFiltersInactiveAndManual(t *testing.T) {
	db := newTestDB(t)
	storage := NewTaskStorage(db, arbor.NewLogger())
	ctx := context.Background()

	mk := func(id string, auto, active bool, cronExpr string) *models.Task {
		return &models.Task{
			ID:             id,
			Name:           id,
			CrawlerID:      "crw-1",
			IsAuto:         auto,
			IsActive:       active,
			CronExpression: cronExpr,
			ScrapePhase:    models.PhaseInit,
		}
	}
	require.NoError(t, storage.SaveTask(ctx, mk("auto-active", true, true, "0 0 * * *")))
	require.NoError(t, storage.SaveTask(ctx, mk("auto-inactive", true, false, "0 0 * * *")))
	require.NoError(t, storage.SaveTask(ctx, mk("manual", false, true, "0 0 * * *")))
	require.NoError(t, storage.SaveTask(ctx, mk("other-cron", true, true, "*/5 * * * *")))

	tasks, err := storage.GetTasksByCron(ctx, "0 0 * * *")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "auto-active", tasks[0].ID)
}

func TestSaveTaskAndHistoryWritesBoth(t *testing.T) {
	db := newTestDB(t)
	taskStore := NewTaskStorage(db, arbor.NewLogger())
	histStore := NewHistoryStorage(db, arbor.NewLogger())
	ctx := context.Background()

	task := &models.Task{
		ID:          "task-1",
		Name:        "nightly scrape",
		CrawlerID:   "crw-1",
		ScrapePhase: models.PhaseCompleted,
	}
	ok := true
	hist := &models.TaskHistory{
		ID:         "hist-1",
		TaskID:     "task-1",
		StartTime:  time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		TaskStatus: models.TaskStatusCompleted,
		Success:    &ok,
	}

	require.NoError(t, taskStore.SaveTaskAndHistory(ctx, task, hist))

	gotTask, err := taskStore.GetTask(ctx, "task-1")
	require.NoError(t, err)
	require.NotNil(t, gotTask)
	assert.Equal(t, models.PhaseCompleted, gotTask.ScrapePhase)

	gotHist, err := histStore.GetHistory(ctx, "hist-1")
	require.NoError(t, err)
	require.NotNil(t, gotHist)
	assert.Equal(t, "task-1", gotHist.TaskID)
	require.NotNil(t, gotHist.Success)
	assert.True(t, *gotHist.Success)
}

func TestSaveTaskAndHistoryWithoutHistoryRow(t *testing.T) {
	db := newTestDB(t)
	taskStore := NewTaskStorage(db, arbor.NewLogger())
	ctx := context.Background()

	task := &models.Task{ID: "task-1", Name: "solo", CrawlerID: "crw-1", ScrapePhase: models.PhaseInit}
	require.NoError(t, taskStore.SaveTaskAndHistory(ctx, task, nil))

	got, err := taskStore.GetTask(ctx, "task-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "solo", got.Name)
}

func TestHistoryListNewestFirst(t *testing.T) {
	db := newTestDB(t)
	storage := NewHistoryStorage(db, arbor.NewLogger())
	ctx := context.Background()

	base := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		h := &models.TaskHistory{
			ID:         "h-" + string(rune('a'+i)),
			TaskID:     "task-1",
			StartTime:  base.Add(time.Duration(i) * time.Hour),
			TaskStatus: models.TaskStatusCompleted,
		}
		require.NoError(t, storage.SaveHistory(ctx, h))
	}

	rows, err := storage.ListHistory(ctx, "task-1", 2, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "h-c", rows[0].ID)
	assert.Equal(t, "h-b", rows[1].ID)
}
