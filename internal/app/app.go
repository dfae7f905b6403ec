package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/common"
	"github.com/ternarybob/gazette/internal/handlers"
	"github.com/ternarybob/gazette/internal/interfaces"
	"github.com/ternarybob/gazette/internal/services/progress"
	"github.com/ternarybob/gazette/internal/services/runner"
	"github.com/ternarybob/gazette/internal/services/scheduler"
	"github.com/ternarybob/gazette/internal/services/sites"
	"github.com/ternarybob/gazette/internal/services/tasks"
	"github.com/ternarybob/gazette/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	DB             *badger.BadgerDB
	TaskStorage    interfaces.TaskStorage
	HistoryStorage interfaces.TaskHistoryStorage
	ArticleStorage interfaces.ArticleStorage
	CrawlerStorage interfaces.CrawlerStorage

	// Core services
	Broadcaster      *progress.Broadcaster
	Runner           *runner.Runner
	FetcherRegistry  *sites.Registry
	TaskService      *tasks.Service
	SchedulerService *scheduler.Service

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	TaskHandler    *handlers.TaskHandler
	ArticleHandler *handlers.ArticleHandler
	CrawlerHandler *handlers.CrawlerHandler
	LogsHandler    *handlers.LogsHandler
	WSHandler      *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.initHandlers()

	if cfg.Scheduler.Enabled {
		if err := app.SchedulerService.Start(); err != nil {
			return nil, fmt.Errorf("failed to start scheduler: %w", err)
		}
		logger.Debug().Str("poll_schedule", cfg.Scheduler.PollSchedule).Msg("Scheduler started")
	} else {
		logger.Info().Msg("Scheduler disabled by configuration")
	}

	logger.Info().
		Int("max_concurrent_tasks", cfg.Runner.MaxConcurrentTasks).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage opens the Badger database and builds the storage gateways
func (a *App) initStorage() error {
	db, err := badger.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.DB = db

	a.TaskStorage = badger.NewTaskStorage(db, a.Logger)
	a.HistoryStorage = badger.NewHistoryStorage(db, a.Logger)
	a.ArticleStorage = badger.NewArticleStorage(db, a.Logger)
	a.CrawlerStorage = badger.NewCrawlerStorage(db, a.Logger)

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// initServices wires the runner, fetcher registry, task facade, and scheduler
func (a *App) initServices() error {
	a.Broadcaster = progress.NewBroadcaster(a.Logger)

	a.Runner = runner.NewRunner(
		a.ArticleStorage,
		a.Broadcaster,
		runner.NewController(),
		runner.NewCSVWriter(a.Config.Runner.OutputDir, nil),
		a.Logger,
	)

	a.FetcherRegistry = sites.NewRegistry(a.CrawlerStorage, &a.Config.Sites, a.Logger)

	a.TaskService = tasks.NewService(
		a.TaskStorage,
		a.HistoryStorage,
		a.CrawlerStorage,
		a.Runner,
		a.FetcherRegistry,
		a.Broadcaster,
		a.Config.Runner.MaxConcurrentTasks,
		a.Logger,
	)

	a.SchedulerService = scheduler.NewService(
		a.TaskStorage,
		a.TaskService,
		&a.Config.Scheduler,
		a.Logger,
	)

	a.Logger.Debug().Msg("Services initialized")
	return nil
}

// initHandlers builds the HTTP handler set
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler()
	a.TaskHandler = handlers.NewTaskHandler(a.TaskService, a.Logger)
	a.ArticleHandler = handlers.NewArticleHandler(a.ArticleStorage, a.Logger)
	a.CrawlerHandler = handlers.NewCrawlerHandler(a.CrawlerStorage, a.Logger)
	a.LogsHandler = handlers.NewLogsHandler(a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.Broadcaster, a.Logger, &a.Config.WebSocket)
	a.Logger.Debug().Msg("Handlers initialized")
}

// Close shuts the application down: stop scheduling, flag running tasks for
// cancellation, wait out the grace period, then close storage.
func (a *App) Close() error {
	if a.SchedulerService != nil && a.SchedulerService.IsRunning() {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.Runner != nil {
		control := a.Runner.Controller()
		running := control.RunningTaskIDs()
		for _, taskID := range running {
			control.Cancel(taskID)
		}
		if len(running) > 0 {
			a.Logger.Info().
				Int("count", len(running)).
				Msg("Waiting for running tasks to observe cancellation")
			a.waitForRunners(control, a.Config.Runner.CancelWait())
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}
	return nil
}

// waitForRunners polls until no tasks are running or the grace period ends
func (a *App) waitForRunners(control *runner.Controller, grace time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.Logger.Warn().
				Int("still_running", len(control.RunningTaskIDs())).
				Msg("Cancel grace period elapsed")
			return
		case <-ticker.C:
			if len(control.RunningTaskIDs()) == 0 {
				return
			}
		}
	}
}
