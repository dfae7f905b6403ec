package interfaces

import (
	"context"

	"github.com/ternarybob/gazette/internal/models"
)

// ArticleFilter narrows article queries. Pointer fields distinguish
// "unset" from a zero value.
type ArticleFilter struct {
	TaskID       string
	IsScraped    *bool
	Keywords     string
	Category     string
	Tags         []string
	Source       string
	IsAIRelated  *bool
	ScrapeStatus models.ArticleScrapeStatus
	SortBy       string
	SortDesc     bool
	Page         int
	PerPage      int
}

// TaskFilter narrows task queries
type TaskFilter struct {
	Name      string
	CrawlerID string
	IsAuto    *bool
	IsActive  *bool
	SortBy    string
	SortDesc  bool
	Page      int
	PerPage   int
}

// ArticleStorage is the article store gateway. Upserts are keyed on Link;
// the unique link index is the source of truth for idempotency.
type ArticleStorage interface {
	FindByLink(ctx context.Context, link string) (*models.Article, error)
	FindAdvanced(ctx context.Context, filter *ArticleFilter) ([]*models.Article, int, error)
	BatchCreate(ctx context.Context, articles []*models.Article) (*models.BatchResult, error)
	BatchUpsertByLink(ctx context.Context, articles []*models.Article) (*models.BatchResult, error)
	FindByKeywords(ctx context.Context, q string, limit, offset int, sortBy string, sortDesc bool) ([]*models.Article, error)
}

// TaskStorage persists tasks
type TaskStorage interface {
	SaveTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, taskID string) (*models.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	ListTasks(ctx context.Context, filter *TaskFilter) ([]*models.Task, int, error)
	GetTasksByCron(ctx context.Context, cronExpr string) ([]*models.Task, error)
	GetTasksByPhase(ctx context.Context, phase models.ScrapePhase) ([]*models.Task, error)

	// SaveTaskAndHistory writes the task and, when non-nil, the history row
	// in one transaction. Neither write is visible unless both succeed.
	SaveTaskAndHistory(ctx context.Context, task *models.Task, history *models.TaskHistory) error
}

// TaskHistoryStorage persists per-execution history rows
type TaskHistoryStorage interface {
	SaveHistory(ctx context.Context, history *models.TaskHistory) error
	GetHistory(ctx context.Context, historyID string) (*models.TaskHistory, error)
	ListHistory(ctx context.Context, taskID string, limit, offset int) ([]*models.TaskHistory, error)
}

// CrawlerStorage persists registered crawler backends
type CrawlerStorage interface {
	SaveCrawler(ctx context.Context, crawler *models.Crawler) error
	GetCrawler(ctx context.Context, crawlerID string) (*models.Crawler, error)
	GetCrawlerByName(ctx context.Context, name string) (*models.Crawler, error)
	ListCrawlers(ctx context.Context, activeOnly bool) ([]*models.Crawler, error)
}
