package runner

import (
	"github.com/ternarybob/gazette/internal/models"
)

// LinkTable is the in-memory article table a run accumulates, keyed by link
// with insertion order preserved. It is local to a single run and never
// shared across goroutines.
type LinkTable struct {
	order []string
	rows  map[string]*models.Article
}

// NewLinkTable creates an empty link table
func NewLinkTable() *LinkTable {
	return &LinkTable{
		rows: make(map[string]*models.Article),
	}
}

// Len returns the number of rows
func (t *LinkTable) Len() int {
	return len(t.order)
}

// Get returns the row for a link, or nil
func (t *LinkTable) Get(link string) *models.Article {
	return t.rows[link]
}

// SeedLink adds a freshly collected link row: not yet scraped, status
// link_saved, task ID stamped. An existing row for the same link is merged
// instead of duplicated.
func (t *LinkTable) SeedLink(taskID string, article *models.Article) {
	if article == nil || article.Link == "" {
		return
	}
	if existing, ok := t.rows[article.Link]; ok {
		existing.MergeFrom(article)
		return
	}
	row := *article
	row.TaskID = taskID
	row.ApplyScrapeStatus(models.ArticleStatusLinkSaved)
	t.insert(&row)
}

// SeedFromStore adds a row loaded from the article store, preserving its
// persisted state
func (t *LinkTable) SeedFromStore(article *models.Article) {
	if article == nil || article.Link == "" {
		return
	}
	if _, ok := t.rows[article.Link]; ok {
		return
	}
	row := *article
	t.insert(&row)
}

// SeedMinimal adds a bare pending row for an explicit link with no stored
// counterpart
func (t *LinkTable) SeedMinimal(taskID, link string) {
	if link == "" {
		return
	}
	if _, ok := t.rows[link]; ok {
		return
	}
	row := &models.Article{
		Link:   link,
		Title:  "",
		TaskID: taskID,
	}
	row.ApplyScrapeStatus(models.ArticleStatusPending)
	t.insert(row)
}

// Merge joins incoming content results into the table by link. The table
// side is preserved: results for links not present are ignored. Within a
// row, non-empty incoming values win and the incoming scrape status drives
// the is_scraped flag (content_scraped forces true, failed forces false and
// carries scrape_error and last_scrape_attempt).
func (t *LinkTable) Merge(results []*models.Article) {
	for _, incoming := range results {
		if incoming == nil || incoming.Link == "" {
			continue
		}
		row, ok := t.rows[incoming.Link]
		if !ok {
			continue
		}
		row.MergeFrom(incoming)
	}
}

// Rows returns the rows in insertion order
func (t *LinkTable) Rows() []*models.Article {
	rows := make([]*models.Article, 0, len(t.order))
	for _, link := range t.order {
		rows = append(rows, t.rows[link])
	}
	return rows
}

// ScrapedRows returns the rows with is_scraped=true, in insertion order
func (t *LinkTable) ScrapedRows() []*models.Article {
	rows := make([]*models.Article, 0, len(t.order))
	for _, link := range t.order {
		if t.rows[link].IsScraped {
			rows = append(rows, t.rows[link])
		}
	}
	return rows
}

// StampTaskID sets the task ID on rows that do not carry one yet
func (t *LinkTable) StampTaskID(taskID string) {
	for _, link := range t.order {
		if t.rows[link].TaskID == "" {
			t.rows[link].TaskID = taskID
		}
	}
}

// Release drops all rows
func (t *LinkTable) Release() {
	t.order = nil
	t.rows = make(map[string]*models.Article)
}

func (t *LinkTable) insert(row *models.Article) {
	t.rows[row.Link] = row
	t.order = append(t.order, row.Link)
}
