package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/common"
	"github.com/ternarybob/gazette/internal/interfaces"
	"github.com/ternarybob/gazette/internal/models"
)

type memTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*models.Task
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: make(map[string]*models.Task)}
}

func (s *memTaskStore) SaveTask(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *task
	s.tasks[task.ID] = &copied
	return nil
}

func (s *memTaskStore) GetTask(_ context.Context, taskID string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[taskID]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, nil
}

func (s *memTaskStore) DeleteTask(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
	return nil
}

func (s *memTaskStore) ListTasks(_ context.Context, filter *interfaces.TaskFilter) ([]*models.Task, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Task
	for _, t := range s.tasks {
		if filter != nil {
			if filter.IsAuto != nil && t.IsAuto != *filter.IsAuto {
				continue
			}
			if filter.IsActive != nil && t.IsActive != *filter.IsActive {
				continue
			}
		}
		copied := *t
		out = append(out, &copied)
	}
	return out, len(out), nil
}

func (s *memTaskStore) GetTasksByCron(_ context.Context, cronExpr string) ([]*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Task
	for _, t := range s.tasks {
		if t.CronExpression == cronExpr && t.IsAuto && t.IsActive {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memTaskStore) SaveTaskAndHistory(ctx context.Context, task *models.Task, _ *models.TaskHistory) error {
	return s.SaveTask(ctx, task)
}

func (s *memTaskStore) GetTasksByPhase(_ context.Context, phase models.ScrapePhase) ([]*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Task
	for _, t := range s.tasks {
		if t.ScrapePhase == phase {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

type recordingLauncher struct {
	mu       sync.Mutex
	launched []string
}

func (l *recordingLauncher) ExecuteTask(_ context.Context, taskID string) (*models.RunResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launched = append(l.launched, taskID)
	return &models.RunResult{Success: true, ScrapePhase: models.PhaseCompleted}, nil
}

func newTestService(store *memTaskStore) *Service {
	return NewService(store, &recordingLauncher{}, &common.SchedulerConfig{
		Enabled:      true,
		PollSchedule: "*/1 * * * *",
		RecoveryDays: 3,
	}, arbor.NewLogger())
}

func autoTask(id, cronExpr string, lastRun *time.Time) *models.Task {
	return &models.Task{
		ID:             id,
		Name:           id,
		IsAuto:         true,
		IsActive:       true,
		CronExpression: cronExpr,
		LastRunAt:      lastRun,
		ScrapePhase:    models.PhaseCompleted,
	}
}

func TestPrevTriggerEveryMinute(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 5, 30, 0, time.UTC)

	prev, ok, err := PrevTriggerExpr("*/1 * * * *", now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC), prev)
}

func TestPrevTriggerIsStrictlyBeforeNow(t *testing.T) {
	// now lands exactly on a trigger; the previous trigger is the one before
	now := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)

	prev, ok, err := PrevTriggerExpr("*/1 * * * *", now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 4, 0, 0, time.UTC), prev)
}

func TestPrevTriggerWiderSchedules(t *testing.T) {
	now := time.Date(2025, 6, 15, 3, 30, 0, 0, time.UTC)

	hourly, ok, err := PrevTriggerExpr("0 * * * *", now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC), hourly)

	daily, ok, err := PrevTriggerExpr("0 2 * * *", now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 6, 15, 2, 0, 0, 0, time.UTC), daily)

	monthly, ok, err := PrevTriggerExpr("0 0 1 * *", now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), monthly)

	yearly, ok, err := PrevTriggerExpr("0 0 1 1 *", now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), yearly)
}

func TestPrevTriggerRejectsInvalidExpression(t *testing.T) {
	_, _, err := PrevTriggerExpr("not-a-cron", time.Now())
	assert.Error(t, err)
}

func TestFindDueTasks(t *testing.T) {
	store := newMemTaskStore()
	svc := newTestService(store)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 5, 30, 0, time.UTC)
	prev := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)
	beforePrev := prev.Add(-90 * time.Second)
	afterPrev := prev.Add(10 * time.Second)

	require.NoError(t, store.SaveTask(ctx, autoTask("task-never-run", "*/1 * * * *", nil)))
	require.NoError(t, store.SaveTask(ctx, autoTask("task-stale", "*/1 * * * *", &beforePrev)))
	require.NoError(t, store.SaveTask(ctx, autoTask("task-exact", "*/1 * * * *", &prev)))
	require.NoError(t, store.SaveTask(ctx, autoTask("task-fresh", "*/1 * * * *", &afterPrev)))

	due, err := svc.FindDueTasks(ctx, "*/1 * * * *", now)
	require.NoError(t, err)

	ids := make([]string, 0, len(due))
	for _, task := range due {
		ids = append(ids, task.ID)
	}
	assert.ElementsMatch(t, []string{"task-never-run", "task-stale"}, ids)
}

func TestFindDueTasksDailyCron(t *testing.T) {
	store := newMemTaskStore()
	svc := newTestService(store)
	ctx := context.Background()

	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	dayBefore := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	atTrigger := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveTask(ctx, autoTask("task-a", "0 0 * * *", nil)))
	require.NoError(t, store.SaveTask(ctx, autoTask("task-b", "0 0 * * *", &dayBefore)))
	require.NoError(t, store.SaveTask(ctx, autoTask("task-c", "0 0 * * *", &atTrigger)))

	due, err := svc.FindDueTasks(ctx, "0 0 * * *", now)
	require.NoError(t, err)

	ids := make([]string, 0, len(due))
	for _, task := range due {
		ids = append(ids, task.ID)
	}
	assert.ElementsMatch(t, []string{"task-a", "task-b"}, ids)
}

func TestFindDueTasksSkipsInactiveAndManual(t *testing.T) {
	store := newMemTaskStore()
	svc := newTestService(store)
	ctx := context.Background()

	inactive := autoTask("task-inactive", "*/1 * * * *", nil)
	inactive.IsActive = false
	manual := autoTask("task-manual", "*/1 * * * *", nil)
	manual.IsAuto = false

	require.NoError(t, store.SaveTask(ctx, inactive))
	require.NoError(t, store.SaveTask(ctx, manual))
	require.NoError(t, store.SaveTask(ctx, autoTask("task-live", "*/1 * * * *", nil)))

	due, err := svc.FindDueTasks(ctx, "*/1 * * * *", time.Date(2025, 6, 1, 12, 5, 30, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "task-live", due[0].ID)
}

func TestFindFailedTasksWindow(t *testing.T) {
	store := newMemTaskStore()
	svc := newTestService(store)
	svc.clock = func() time.Time {
		return time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	}
	ctx := context.Background()

	recent := time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC)
	old := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	runFailed := false
	succeeded := true

	recentFailed := autoTask("task-recent", "*/1 * * * *", &recent)
	recentFailed.LastRunSuccess = &runFailed
	oldFailed := autoTask("task-old", "*/1 * * * *", &old)
	oldFailed.LastRunSuccess = &runFailed
	completed := autoTask("task-done", "*/1 * * * *", &recent)
	completed.LastRunSuccess = &succeeded

	require.NoError(t, store.SaveTask(ctx, recentFailed))
	require.NoError(t, store.SaveTask(ctx, oldFailed))
	require.NoError(t, store.SaveTask(ctx, completed))

	failed, err := svc.FindFailedTasks(ctx, 3)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "task-recent", failed[0].ID)
}

func TestRecoverOrphanedTasks(t *testing.T) {
	store := newMemTaskStore()
	svc := newTestService(store)
	ctx := context.Background()

	orphan := autoTask("task-orphan", "*/1 * * * *", nil)
	orphan.ScrapePhase = models.PhaseContentScraping
	done := autoTask("task-done", "*/1 * * * *", nil)
	done.ScrapePhase = models.PhaseCompleted

	require.NoError(t, store.SaveTask(ctx, orphan))
	require.NoError(t, store.SaveTask(ctx, done))

	require.NoError(t, svc.recoverOrphanedTasks(ctx))

	recovered, err := store.GetTask(ctx, "task-orphan")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseFailed, recovered.ScrapePhase)
	require.NotNil(t, recovered.LastRunSuccess)
	assert.False(t, *recovered.LastRunSuccess)
	assert.Contains(t, recovered.LastRunMessage, "restarted")

	untouched, err := store.GetTask(ctx, "task-done")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseCompleted, untouched.ScrapePhase)
}

func TestStartStopLifecycle(t *testing.T) {
	store := newMemTaskStore()
	svc := newTestService(store)

	assert.False(t, svc.IsRunning())
	require.NoError(t, svc.Start())
	assert.True(t, svc.IsRunning())

	assert.Error(t, svc.Start())

	require.NoError(t, svc.Stop())
	assert.False(t, svc.IsRunning())
	require.NoError(t, svc.Stop())
}

func TestPollLaunchesDueTasks(t *testing.T) {
	store := newMemTaskStore()
	launcher := &recordingLauncher{}
	svc := NewService(store, launcher, &common.SchedulerConfig{
		PollSchedule: "*/1 * * * *",
		RecoveryDays: 3,
	}, arbor.NewLogger())

	ctx := context.Background()
	require.NoError(t, store.SaveTask(ctx, autoTask("task-due", "*/1 * * * *", nil)))

	svc.pollDueTasks()

	// launch happens in a goroutine
	deadline := time.Now().Add(2 * time.Second)
	for {
		launcher.mu.Lock()
		n := len(launcher.launched)
		launcher.mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	launcher.mu.Lock()
	defer launcher.mu.Unlock()
	require.Len(t, launcher.launched, 1)
	assert.Equal(t, "task-due", launcher.launched[0])
}
