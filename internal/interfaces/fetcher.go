package interfaces

import (
	"context"

	"github.com/ternarybob/gazette/internal/models"
)

// CancelToken exposes a cooperative cancel flag checked at suspension
// boundaries. Implementations must be safe for concurrent use.
type CancelToken interface {
	Cancelled() bool
}

// FetchParams carries per-call options forwarded from task_args
type FetchParams struct {
	MaxPages    int
	NumArticles int
	MinKeywords int
	AIOnly      bool
	TimeoutSecs float64
	IsTest      bool
}

// SiteFetcher produces link rows and content rows for a task. Rows are
// partial Articles keyed on Link with ScrapeStatus set per outcome. The
// caller owns the set of links to scrape: FetchArticles visits exactly the
// rows it is handed, so fetchers stay stateless and shareable across tasks.
// Both calls consult the cancel token and may return an error.
type SiteFetcher interface {
	FetchLinks(ctx context.Context, taskID string, params *FetchParams, cancel CancelToken) ([]*models.Article, error)
	FetchArticles(ctx context.Context, taskID string, rows []*models.Article, params *FetchParams, cancel CancelToken) ([]*models.Article, error)
}

// FetcherResolver maps a crawler to its site fetcher
type FetcherResolver interface {
	FetcherFor(ctx context.Context, crawlerID string) (SiteFetcher, error)
}
