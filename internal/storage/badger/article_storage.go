package badger

import (
	"context"
	"fmt"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/common"
	"github.com/ternarybob/gazette/internal/interfaces"
	"github.com/ternarybob/gazette/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ArticleStorage implements the ArticleStorage gateway on Badger. The unique
// Link index backs upsert idempotency; there is no exists-then-insert path
// outside of it.
type ArticleStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewArticleStorage creates a new ArticleStorage instance
func NewArticleStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ArticleStorage {
	return &ArticleStorage{
		db:     db,
		logger: logger,
	}
}

// FindByLink returns the article with the given link, or nil when absent
func (s *ArticleStorage) FindByLink(ctx context.Context, link string) (*models.Article, error) {
	var articles []models.Article
	if err := s.db.Store().Find(&articles, badgerhold.Where("Link").Eq(link).Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to find article by link: %w", err)
	}
	if len(articles) == 0 {
		return nil, nil
	}
	a := articles[0]
	a.NormalizeTimestamps()
	return &a, nil
}

// FindAdvanced returns a filtered page of articles plus the total match count
func (s *ArticleStorage) FindAdvanced(ctx context.Context, filter *interfaces.ArticleFilter) ([]*models.Article, int, error) {
	if filter == nil {
		filter = &interfaces.ArticleFilter{}
	}

	query := badgerhold.Where("ID").Ne("")
	if filter.TaskID != "" {
		query = query.And("TaskID").Eq(filter.TaskID)
	}
	if filter.IsScraped != nil {
		query = query.And("IsScraped").Eq(*filter.IsScraped)
	}
	if filter.Category != "" {
		query = query.And("Category").Eq(filter.Category)
	}
	if filter.Source != "" {
		query = query.And("Source").Eq(filter.Source)
	}
	if filter.IsAIRelated != nil {
		query = query.And("IsAIRelated").Eq(*filter.IsAIRelated)
	}
	if filter.ScrapeStatus != "" {
		query = query.And("ScrapeStatus").Eq(filter.ScrapeStatus)
	}
	if filter.Keywords != "" {
		q := strings.ToLower(filter.Keywords)
		query = query.And("ID").MatchFunc(func(ra *badgerhold.RecordAccess) (bool, error) {
			a, ok := ra.Record().(*models.Article)
			if !ok {
				return false, nil
			}
			return articleMatchesKeywords(a, q), nil
		})
	}
	if len(filter.Tags) > 0 {
		wanted := filter.Tags
		query = query.And("ID").MatchFunc(func(ra *badgerhold.RecordAccess) (bool, error) {
			a, ok := ra.Record().(*models.Article)
			if !ok {
				return false, nil
			}
			return articleHasAnyTag(a, wanted), nil
		})
	}

	total, err := s.db.Store().Count(&models.Article{}, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count articles: %w", err)
	}

	sortField := articleSortField(filter.SortBy)
	if filter.SortDesc {
		query = query.SortBy(sortField).Reverse()
	} else {
		query = query.SortBy(sortField)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage > 0 {
		query = query.Skip((page - 1) * perPage).Limit(perPage)
	}

	var articles []models.Article
	if err := s.db.Store().Find(&articles, query); err != nil {
		return nil, 0, fmt.Errorf("failed to query articles: %w", err)
	}

	result := make([]*models.Article, len(articles))
	for i := range articles {
		articles[i].NormalizeTimestamps()
		result[i] = &articles[i]
	}
	return result, int(total), nil
}

// BatchCreate inserts articles, insert only. Per-row failures (including
// duplicate links) are collected without aborting the remaining rows.
func (s *ArticleStorage) BatchCreate(ctx context.Context, articles []*models.Article) (*models.BatchResult, error) {
	result := &models.BatchResult{}
	now := time.Now().UTC()

	for _, article := range articles {
		if article.Link == "" {
			result.Errors = append(result.Errors, "article link is required")
			continue
		}
		if article.ID == "" {
			article.ID = common.NewArticleID()
		}
		if article.CreatedAt.IsZero() {
			article.CreatedAt = now
		}
		article.UpdatedAt = now
		article.NormalizeTimestamps()

		if err := s.db.Store().Insert(article.ID, article); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", article.Link, err))
			continue
		}
		result.CreatedCount++
	}

	s.logger.Debug().
		Int("created", result.CreatedCount).
		Int("errors", len(result.Errors)).
		Msg("Batch article create finished")

	return result, nil
}

// BatchUpsertByLink upserts articles keyed on Link. Existing rows merge
// non-empty incoming fields; absent links insert. Each row is atomic and
// per-row failures do not abort the batch.
func (s *ArticleStorage) BatchUpsertByLink(ctx context.Context, articles []*models.Article) (*models.BatchResult, error) {
	result := &models.BatchResult{}
	now := time.Now().UTC()

	for _, article := range articles {
		if article.Link == "" {
			result.Errors = append(result.Errors, "article link is required")
			continue
		}

		if err := s.upsertByLink(article, now); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", article.Link, err))
			continue
		}
		result.UpsertedCount++
	}

	s.logger.Debug().
		Int("upserted", result.UpsertedCount).
		Int("errors", len(result.Errors)).
		Msg("Batch article upsert finished")

	return result, nil
}

// upsertByLink runs the find-merge-write for one row inside a single badger
// transaction, so a concurrent writer cannot slip between the link lookup and
// the write
func (s *ArticleStorage) upsertByLink(article *models.Article, now time.Time) error {
	return s.db.Store().Badger().Update(func(tx *badgerdb.Txn) error {
		var found []models.Article
		if err := s.db.Store().TxFind(tx, &found, badgerhold.Where("Link").Eq(article.Link).Limit(1)); err != nil {
			return err
		}

		if len(found) > 0 {
			existing := found[0]
			existing.MergeFrom(article)
			existing.UpdatedAt = now
			return s.db.Store().TxUpdate(tx, existing.ID, &existing)
		}

		if article.ID == "" {
			article.ID = common.NewArticleID()
		}
		if article.CreatedAt.IsZero() {
			article.CreatedAt = now
		}
		article.UpdatedAt = now
		article.NormalizeTimestamps()
		return s.db.Store().TxInsert(tx, article.ID, article)
	})
}

// FindByKeywords returns articles whose title, summary, or content contains
// the query substring, case-insensitive
func (s *ArticleStorage) FindByKeywords(ctx context.Context, q string, limit, offset int, sortBy string, sortDesc bool) ([]*models.Article, error) {
	needle := strings.ToLower(strings.TrimSpace(q))
	if needle == "" {
		return []*models.Article{}, nil
	}

	query := badgerhold.Where("ID").MatchFunc(func(ra *badgerhold.RecordAccess) (bool, error) {
		a, ok := ra.Record().(*models.Article)
		if !ok {
			return false, nil
		}
		return articleMatchesKeywords(a, needle), nil
	})

	sortField := articleSortField(sortBy)
	if sortDesc {
		query = query.SortBy(sortField).Reverse()
	} else {
		query = query.SortBy(sortField)
	}
	if offset > 0 {
		query = query.Skip(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var articles []models.Article
	if err := s.db.Store().Find(&articles, query); err != nil {
		return nil, fmt.Errorf("failed to search articles: %w", err)
	}

	result := make([]*models.Article, len(articles))
	for i := range articles {
		articles[i].NormalizeTimestamps()
		result[i] = &articles[i]
	}
	return result, nil
}

func articleMatchesKeywords(a *models.Article, lowered string) bool {
	return strings.Contains(strings.ToLower(a.Title), lowered) ||
		strings.Contains(strings.ToLower(a.Summary), lowered) ||
		strings.Contains(strings.ToLower(a.Content), lowered)
}

func articleHasAnyTag(a *models.Article, wanted []string) bool {
	for _, w := range wanted {
		for _, t := range a.Tags {
			if strings.EqualFold(t, w) {
				return true
			}
		}
	}
	return false
}

func articleSortField(sortBy string) string {
	switch strings.ToLower(strings.TrimSpace(sortBy)) {
	case "title":
		return "Title"
	case "published_at":
		return "PublishedAt"
	case "updated_at":
		return "UpdatedAt"
	case "source":
		return "Source"
	case "category":
		return "Category"
	default:
		return "CreatedAt"
	}
}
