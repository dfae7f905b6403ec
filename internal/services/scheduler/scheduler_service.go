package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/common"
	"github.com/ternarybob/gazette/internal/interfaces"
	"github.com/ternarybob/gazette/internal/models"
)

// Service implements SchedulerService. A single cron entry drives the poll
// tick; each tick finds due tasks and hands them to the launcher. Ticks never
// overlap: a tick that arrives while the previous one is still polling is
// skipped.
type Service struct {
	tasks    interfaces.TaskStorage
	launcher interfaces.TaskLauncher
	cron     *cron.Cron
	logger   arbor.ILogger

	pollSchedule string
	recoveryDays int

	mu        sync.Mutex // protects isPolling
	isPolling bool

	stateMu sync.Mutex // protects running
	running bool

	clock func() time.Time
}

// NewService creates a scheduler service
func NewService(tasks interfaces.TaskStorage, launcher interfaces.TaskLauncher, cfg *common.SchedulerConfig, logger arbor.ILogger) *Service {
	pollSchedule := cfg.PollSchedule
	if pollSchedule == "" {
		pollSchedule = "*/1 * * * *"
	}
	return &Service{
		tasks:        tasks,
		launcher:     launcher,
		cron:         cron.New(),
		logger:       logger,
		pollSchedule: pollSchedule,
		recoveryDays: cfg.RecoveryDays,
		clock:        time.Now,
	}
}

// Start recovers orphaned tasks and begins the poll loop
func (s *Service) Start() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if err := common.ValidateCronSchedule(s.pollSchedule); err != nil {
		return fmt.Errorf("invalid poll schedule: %w", err)
	}

	if err := s.recoverOrphanedTasks(context.Background()); err != nil {
		s.logger.Warn().Err(err).Msg("Orphaned task recovery failed")
	}

	if _, err := s.cron.AddFunc(s.pollSchedule, s.pollDueTasks); err != nil {
		return fmt.Errorf("failed to add poll job: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("poll_schedule", s.pollSchedule).
		Msg("Scheduler started")
	return nil
}

// Stop halts the poll loop. An in-flight tick is allowed to finish.
func (s *Service) Stop() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if !s.running {
		return nil
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning reports whether the poll loop is active
func (s *Service) IsRunning() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.running
}

// pollDueTasks is one poll tick: enumerate the distinct cron expressions of
// active auto tasks, find the due tasks for each, and launch them
func (s *Service) pollDueTasks() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in scheduler poll")
		}
	}()

	s.mu.Lock()
	if s.isPolling {
		s.logger.Debug().Msg("Previous poll still in progress, skipping this tick")
		s.mu.Unlock()
		return
	}
	s.isPolling = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isPolling = false
		s.mu.Unlock()
	}()

	ctx := context.Background()
	now := s.clock().UTC()

	exprs, err := s.activeCronExpressions(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to enumerate scheduled tasks")
		return
	}

	launched := 0
	for _, expr := range exprs {
		due, err := s.FindDueTasks(ctx, expr, now)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("cron_expr", expr).
				Msg("Due-task lookup failed")
			continue
		}
		for _, task := range due {
			s.launch(task)
			launched++
		}
	}

	if launched > 0 {
		s.logger.Info().Int("count", launched).Msg("Due tasks launched")
	}
}

// activeCronExpressions returns the distinct cron expressions of active auto
// tasks, in first-seen order
func (s *Service) activeCronExpressions(ctx context.Context) ([]string, error) {
	isAuto := true
	isActive := true
	tasks, _, err := s.tasks.ListTasks(ctx, &interfaces.TaskFilter{
		IsAuto:   &isAuto,
		IsActive: &isActive,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var exprs []string
	for _, task := range tasks {
		if task.CronExpression == "" || seen[task.CronExpression] {
			continue
		}
		seen[task.CronExpression] = true
		exprs = append(exprs, task.CronExpression)
	}
	return exprs, nil
}

// FindDueTasks returns the active auto tasks on the given cron expression
// whose last run predates the expression's previous trigger. A task whose
// last run landed exactly on the trigger is not due; a task that has never
// run is always due.
func (s *Service) FindDueTasks(ctx context.Context, cronExpr string, now time.Time) ([]*models.Task, error) {
	prev, ok, err := PrevTriggerExpr(cronExpr, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	candidates, err := s.tasks.GetTasksByCron(ctx, cronExpr)
	if err != nil {
		return nil, err
	}

	var due []*models.Task
	for _, task := range candidates {
		if task.LastRunAt == nil || task.LastRunAt.Before(prev) {
			due = append(due, task)
		}
	}
	return due, nil
}

// FindFailedTasks returns active tasks whose last run failed within the
// look-back window. No cron filter: manual tasks qualify too.
func (s *Service) FindFailedTasks(ctx context.Context, days int) ([]*models.Task, error) {
	if days <= 0 {
		days = s.recoveryDays
	}
	cutoff := s.clock().UTC().AddDate(0, 0, -days)

	isActive := true
	tasks, _, err := s.tasks.ListTasks(ctx, &interfaces.TaskFilter{IsActive: &isActive})
	if err != nil {
		return nil, err
	}

	var recent []*models.Task
	for _, task := range tasks {
		if task.LastRunSuccess == nil || *task.LastRunSuccess {
			continue
		}
		if task.LastRunAt != nil && !task.LastRunAt.Before(cutoff) {
			recent = append(recent, task)
		}
	}
	return recent, nil
}

// launch hands a due task to the launcher in the background. The launcher
// owns status transitions and history; the scheduler only logs the outcome.
func (s *Service) launch(task *models.Task) {
	s.logger.Info().
		Str("task_id", task.ID).
		Str("task_name", task.Name).
		Str("cron_expr", task.CronExpression).
		Msg("Launching due task")

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().
					Str("task_id", task.ID).
					Str("panic", fmt.Sprintf("%v", r)).
					Msg("PANIC RECOVERED in task launch")
			}
		}()

		result, err := s.launcher.ExecuteTask(context.Background(), task.ID)
		if err != nil {
			s.logger.Error().
				Err(err).
				Str("task_id", task.ID).
				Msg("Scheduled task execution failed")
			return
		}
		s.logger.Info().
			Str("task_id", task.ID).
			Bool("success", result.Success).
			Int("articles", result.ArticlesCount).
			Msg("Scheduled task execution finished")
	}()
}

// recoverOrphanedTasks marks tasks stranded in a non-terminal phase by a
// restart as failed so they become schedulable again
func (s *Service) recoverOrphanedTasks(ctx context.Context) error {
	orphanPhases := []models.ScrapePhase{
		models.PhaseLinkCollection,
		models.PhaseContentScraping,
		models.PhaseSaveToCSV,
		models.PhaseSaveToDatabase,
	}

	recovered := 0
	for _, phase := range orphanPhases {
		tasks, err := s.tasks.GetTasksByPhase(ctx, phase)
		if err != nil {
			return fmt.Errorf("failed to query tasks in phase %s: %w", phase, err)
		}
		for _, task := range tasks {
			task.ScrapePhase = models.PhaseFailed
			task.LastRunMessage = "service restarted while task was running"
			success := false
			task.LastRunSuccess = &success
			task.UpdatedAt = s.clock().UTC()

			if err := s.tasks.SaveTask(ctx, task); err != nil {
				s.logger.Warn().
					Err(err).
					Str("task_id", task.ID).
					Msg("Failed to recover orphaned task")
				continue
			}
			recovered++
		}
	}

	if recovered > 0 {
		s.logger.Info().Int("count", recovered).Msg("Orphaned tasks recovered from previous run")
	}
	return nil
}
