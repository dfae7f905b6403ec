package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/interfaces"
	"github.com/ternarybob/gazette/internal/models"
	"github.com/ternarybob/gazette/internal/services/progress"
)

// minPartialSaveRows is the smallest table worth preserving on cancel
const minPartialSaveRows = 5

// cancelReasonUser marks partial-save rows written because of a user cancel
const cancelReasonUser = "user cancel"

// Runner executes a single task end-to-end for one caller invocation. The
// in-memory link table is local to the run; the cancel flag is observed at
// every phase boundary and between retry attempts, never inside blocking
// I/O.
type Runner struct {
	articles  interfaces.ArticleStorage
	broadcast interfaces.ProgressService
	control   *Controller
	csv       *CSVWriter
	logger    arbor.ILogger
	clock     func() time.Time
}

// NewRunner creates a task runner
func NewRunner(articles interfaces.ArticleStorage, broadcast interfaces.ProgressService, control *Controller, csvWriter *CSVWriter, logger arbor.ILogger) *Runner {
	return &Runner{
		articles:  articles,
		broadcast: broadcast,
		control:   control,
		csv:       csvWriter,
		logger:    logger,
		clock:     time.Now,
	}
}

// Controller exposes the run controller for cancellation and status queries
func (r *Runner) Controller() *Controller {
	return r.control
}

// run carries the state of one execution
type run struct {
	taskID  string
	args    *models.TaskArgs
	fetcher interfaces.SiteFetcher
	control *taskControl
	policy  *RetryPolicy
	table   *LinkTable
	params  *interfaces.FetchParams

	// last emitted progress, reported on the cancel path
	lastStep progress.Step
	lastSub  float64
	meter    *progress.Meter
}

// Execute runs the task through the scrape pipeline and returns the result
// envelope. Errors never escape: failures and cancellations are mapped onto
// the result.
func (r *Runner) Execute(ctx context.Context, taskID string, argsMap map[string]interface{}, fetcher interfaces.SiteFetcher) *models.RunResult {
	control, err := r.control.Begin(taskID)
	if err != nil {
		return &models.RunResult{
			Success:     false,
			Message:     err.Error(),
			ScrapePhase: models.PhaseFailed,
		}
	}
	defer r.control.Finish(taskID)
	defer r.broadcast.Clear(taskID)

	args, err := models.ParseTaskArgs(argsMap)
	if err != nil {
		msg := fmt.Sprintf("%s: %v", msgValidationFailed, err)
		r.emit(control, models.PhaseFailed, 0, msg)
		return &models.RunResult{
			Success:     false,
			Message:     msg,
			ScrapePhase: models.PhaseFailed,
		}
	}

	ex := &run{
		taskID:  taskID,
		args:    args,
		fetcher: fetcher,
		control: control,
		policy:  NewRetryPolicy(args.MaxRetries, args.RetryDelayDuration(), r.logger),
		table:   NewLinkTable(),
		meter:   progress.NewMeter(),
		params: &interfaces.FetchParams{
			MaxPages:    args.MaxPages,
			NumArticles: args.NumArticles,
			MinKeywords: args.MinKeywords,
			AIOnly:      args.AIOnly,
			TimeoutSecs: args.Timeout,
			IsTest:      args.IsTest,
		},
	}

	r.logger.Info().
		Str("task_id", taskID).
		Str("scrape_mode", string(args.ScrapeMode)).
		Msg("Task execution started")

	result := r.dispatch(ctx, ex)

	r.logger.Info().
		Str("task_id", taskID).
		Str("phase", string(result.ScrapePhase)).
		Bool("success", result.Success).
		Int("articles", result.ArticlesCount).
		Msg("Task execution finished")

	return result
}

func (r *Runner) dispatch(ctx context.Context, ex *run) (result *models.RunResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("task_id", ex.taskID).
				Str("panic", fmt.Sprintf("%v", rec)).
				Msg("PANIC RECOVERED in task execution")
			result = r.fail(ex, fmt.Errorf("panic: %v", rec))
		}
	}()

	switch ex.args.ScrapeMode {
	case models.ModeLinksOnly:
		if res := r.collectLinks(ctx, ex); res != nil {
			return res
		}
		return r.savePhasesAndComplete(ctx, ex, msgCompleted)

	case models.ModeFullScrape:
		if res := r.collectLinks(ctx, ex); res != nil {
			return res
		}
		return r.scrapeContentsAndFinish(ctx, ex)

	case models.ModeContentOnly:
		if res := r.acquireLinks(ctx, ex); res != nil {
			return res
		}
		return r.scrapeContentsAndFinish(ctx, ex)

	default:
		return r.fail(ex, fmt.Errorf("unsupported scrape_mode: %s", ex.args.ScrapeMode))
	}
}

// collectLinks runs the link-collection phase. A non-nil return is terminal.
func (r *Runner) collectLinks(ctx context.Context, ex *run) *models.RunResult {
	if ex.control.Cancelled() {
		return r.cancelled(ex)
	}
	r.emitStep(ex, models.PhaseLinkCollection, progress.StepFetchLinks, 0, "收集文章連結中")

	links, err := Execute(ctx, ex.policy, ex.control, func(ctx context.Context) ([]*models.Article, error) {
		return ex.fetcher.FetchLinks(ctx, ex.taskID, ex.params, ex.control)
	})
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return r.cancelled(ex)
		}
		return r.fail(ex, err)
	}

	if len(links) == 0 {
		r.emit(ex.control, models.PhaseCompleted, progress.Percent(progress.StepFetchLinks, 1), msgNoLinks)
		return &models.RunResult{
			Success:          false,
			Message:          msgNoLinks,
			ArticlesCount:    0,
			ScrapePhase:      models.PhaseCompleted,
			GetLinksByTaskID: false,
		}
	}

	for _, link := range links {
		ex.table.SeedLink(ex.taskID, link)
	}
	r.emitStep(ex, models.PhaseLinkCollection, progress.StepFetchLinks, 1,
		fmt.Sprintf("已收集 %d 篇文章連結", ex.table.Len()))
	return nil
}

// acquireLinks seeds the table for content-only mode, either from the
// article store or from the explicit link list. A non-nil return is terminal.
func (r *Runner) acquireLinks(ctx context.Context, ex *run) *models.RunResult {
	if ex.control.Cancelled() {
		return r.cancelled(ex)
	}
	r.emitStep(ex, models.PhaseLinkCollection, progress.StepFetchLinks, 0, "讀取待抓取文章連結")

	if ex.args.GetLinksByTaskID {
		notScraped := false
		rows, _, err := r.articles.FindAdvanced(ctx, &interfaces.ArticleFilter{
			TaskID:    ex.taskID,
			IsScraped: &notScraped,
		})
		if err != nil {
			return r.fail(ex, err)
		}
		for _, row := range rows {
			ex.table.SeedFromStore(row)
		}
	} else {
		for _, link := range ex.args.ArticleLinks {
			existing, err := r.articles.FindByLink(ctx, link)
			if err != nil {
				return r.fail(ex, err)
			}
			if existing != nil {
				ex.table.SeedFromStore(existing)
			} else {
				ex.table.SeedMinimal(ex.taskID, link)
			}
		}
	}

	if ex.table.Len() == 0 {
		r.emit(ex.control, models.PhaseCompleted, progress.Percent(progress.StepFetchLinks, 1), msgNoLinks)
		return &models.RunResult{
			Success:       false,
			Message:       msgNoLinks,
			ArticlesCount: 0,
			ScrapePhase:   models.PhaseCompleted,
		}
	}

	r.emitStep(ex, models.PhaseLinkCollection, progress.StepFetchLinks, 1,
		fmt.Sprintf("已載入 %d 篇文章連結", ex.table.Len()))
	return nil
}

// scrapeContentsAndFinish runs the content-scraping phase, the merge, and
// the save phases
func (r *Runner) scrapeContentsAndFinish(ctx context.Context, ex *run) *models.RunResult {
	if ex.control.Cancelled() {
		return r.cancelled(ex)
	}
	r.emitStep(ex, models.PhaseContentScraping, progress.StepFetchContents, 0, "抓取文章內容中")

	results, err := Execute(ctx, ex.policy, ex.control, func(ctx context.Context) ([]*models.Article, error) {
		return ex.fetcher.FetchArticles(ctx, ex.taskID, ex.table.Rows(), ex.params, ex.control)
	})
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return r.cancelled(ex)
		}
		return r.fail(ex, err)
	}

	if len(results) == 0 {
		// Non-fatal: persist the collected links and complete.
		return r.savePhasesAndComplete(ctx, ex, msgNoContent)
	}

	r.emitStep(ex, models.PhaseContentScraping, progress.StepFetchContents, 1,
		fmt.Sprintf("已抓取 %d 篇文章內容", len(results)))

	if ex.control.Cancelled() {
		return r.cancelled(ex)
	}
	r.emitStep(ex, models.PhaseContentScraping, progress.StepUpdateDataframe, 0, "合併文章資料中")
	ex.table.Merge(results)
	r.emitStep(ex, models.PhaseContentScraping, progress.StepUpdateDataframe, 1, "文章資料合併完成")

	return r.savePhasesAndComplete(ctx, ex, msgCompleted)
}

// savePhasesAndComplete runs the enabled save phases and produces the
// terminal success result
func (r *Runner) savePhasesAndComplete(ctx context.Context, ex *run, message string) *models.RunResult {
	ex.table.StampTaskID(ex.taskID)

	if ex.args.SaveToCSV {
		if ex.control.Cancelled() {
			return r.cancelled(ex)
		}
		r.emitStep(ex, models.PhaseSaveToCSV, progress.StepSaveToCSV, 0, "寫入 CSV 檔案中")
		path, err := r.csv.Write(ex.args.CSVFilePrefix, ex.taskID, ex.table.Rows())
		if err != nil {
			return r.fail(ex, err)
		}
		if path != "" {
			r.logger.Debug().Str("task_id", ex.taskID).Str("path", path).Msg("CSV file written")
		}
		r.emitStep(ex, models.PhaseSaveToCSV, progress.StepSaveToCSV, 1, "CSV 檔案寫入完成")
	}

	if ex.args.SaveToDatabase && ex.table.Len() > 0 {
		if ex.control.Cancelled() {
			return r.cancelled(ex)
		}
		r.emitStep(ex, models.PhaseSaveToDatabase, progress.StepSaveToDatabase, 0, "寫入資料庫中")

		var batch *models.BatchResult
		var err error
		if ex.args.GetLinksByTaskID || ex.args.ScrapeMode == models.ModeContentOnly {
			batch, err = r.articles.BatchUpsertByLink(ctx, ex.table.Rows())
		} else {
			batch, err = r.articles.BatchCreate(ctx, ex.table.Rows())
		}
		if err != nil {
			return r.fail(ex, err)
		}
		if len(batch.Errors) > 0 {
			r.logger.Warn().
				Str("task_id", ex.taskID).
				Int("errors", len(batch.Errors)).
				Msg("Batch save finished with partial errors")
		}
		r.emitStep(ex, models.PhaseSaveToDatabase, progress.StepSaveToDatabase, 1, "資料庫寫入完成")
	}

	count := ex.table.Len()
	r.emit(ex.control, models.PhaseCompleted, 100, message)

	return &models.RunResult{
		Success:       true,
		Message:       fmt.Sprintf("%s，共 %d 篇文章", message, count),
		ArticlesCount: count,
		ScrapePhase:   models.PhaseCompleted,
		// Persisted links can be resumed from the store on a later
		// content-only run.
		GetLinksByTaskID: true,
	}
}

// cancelled handles the cancellation path: emit a cancelled progress update
// with the last known sub-progress, preserve partial results when
// configured, release the table.
func (r *Runner) cancelled(ex *run) *models.RunResult {
	lastPercent := ex.meter.Percent(ex.lastStep, ex.lastSub)
	r.emit(ex.control, models.PhaseCancelled, lastPercent, msgCancelled)

	partialSaved := false
	if ex.args.SavePartialResultsOnCancel && ex.table.Len() >= minPartialSaveRows {
		if ex.args.SaveToCSV {
			path, err := r.csv.WriteCancelled(ex.args.CSVFilePrefix, ex.taskID, cancelReasonUser, ex.table.Rows())
			if err != nil {
				r.logger.Warn().Err(err).Str("task_id", ex.taskID).Msg("Failed to write partial-save CSV")
			} else if path != "" {
				partialSaved = true
				r.logger.Info().Str("task_id", ex.taskID).Str("path", path).Msg("Partial results written to CSV")
			}
		}
		if ex.args.SaveToDatabase && ex.args.SavePartialToDatabase {
			scraped := ex.table.ScrapedRows()
			for _, row := range scraped {
				row.ApplyScrapeStatus(models.ArticleStatusPartialSaved)
			}
			if len(scraped) > 0 {
				if _, err := r.articles.BatchUpsertByLink(context.Background(), scraped); err != nil {
					r.logger.Warn().Err(err).Str("task_id", ex.taskID).Msg("Failed to upsert partial results")
				} else {
					partialSaved = true
					r.logger.Info().
						Str("task_id", ex.taskID).
						Int("rows", len(scraped)).
						Msg("Partial results upserted")
				}
			}
		}
	}

	ex.table.Release()

	message := msgCancelled
	if partialSaved {
		message = msgCancelledPartial
	}
	return &models.RunResult{
		Success:          false,
		Message:          message,
		ArticlesCount:    0,
		ScrapePhase:      models.PhaseCancelled,
		PartialDataSaved: partialSaved,
	}
}

// fail handles the generic failure path. No partial save is attempted.
func (r *Runner) fail(ex *run, err error) *models.RunResult {
	r.logger.Error().Err(err).Str("task_id", ex.taskID).Msg("Task execution failed")
	r.emit(ex.control, models.PhaseFailed, ex.meter.Percent(ex.lastStep, ex.lastSub), err.Error())

	return &models.RunResult{
		Success:       false,
		Message:       err.Error(),
		ArticlesCount: 0,
		ScrapePhase:   models.PhaseFailed,
	}
}

// emitStep publishes a progress update for a weighted step and records it as
// the run's last known progress
func (r *Runner) emitStep(ex *run, phase models.ScrapePhase, step progress.Step, sub float64, message string) {
	ex.lastStep = step
	ex.lastSub = sub
	if sub >= 1 {
		ex.meter.Finish(step)
	}
	r.emit(ex.control, phase, ex.meter.Percent(step, sub), message)
}

// emit publishes a progress update and mirrors it on the control block so
// status queries see the latest state
func (r *Runner) emit(control *taskControl, phase models.ScrapePhase, percent int, message string) {
	control.set(phase, percent, message)
	state := control.snapshot()

	r.broadcast.Notify(control.taskID, &models.ProgressPayload{
		TaskID:      control.taskID,
		ScrapePhase: phase,
		Progress:    percent,
		Message:     message,
		StartTime:   state.StartTime,
	})
}
