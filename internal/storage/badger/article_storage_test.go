package badger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/interfaces"
	"github.com/ternarybob/gazette/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	options := badgerhold.DefaultOptions
	options.Dir = t.TempDir()
	options.ValueDir = options.Dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	return &BadgerDB{store: store, logger: arbor.NewLogger()}
}

func TestBatchUpsertByLinkIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	storage := NewArticleStorage(db, arbor.NewLogger())
	ctx := context.Background()

	article := &models.Article{
		Title:        "AI policy roundup",
		Link:         "https://example.com/news/1",
		Source:       "example",
		ScrapeStatus: models.ArticleStatusLinkSaved,
	}

	first, err := storage.BatchUpsertByLink(ctx, []*models.Article{article})
	require.NoError(t, err)
	assert.Equal(t, 1, first.UpsertedCount)
	assert.Empty(t, first.Errors)

	// Upserting the same input again must yield one row with equal state.
	second, err := storage.BatchUpsertByLink(ctx, []*models.Article{{
		Title:        "AI policy roundup",
		Link:         "https://example.com/news/1",
		Source:       "example",
		ScrapeStatus: models.ArticleStatusLinkSaved,
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, second.UpsertedCount)

	rows, total, err := storage.FindAdvanced(ctx, &interfaces.ArticleFilter{Source: "example"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "AI policy roundup", rows[0].Title)
	assert.False(t, rows[0].IsScraped)
}

func TestBatchUpsertMergesNonEmptyFields(t *testing.T) {
	db := newTestDB(t)
	storage := NewArticleStorage(db, arbor.NewLogger())
	ctx := context.Background()

	seed := &models.Article{
		Title:        "Original title",
		Link:         "https://example.com/news/2",
		Summary:      "original summary",
		ScrapeStatus: models.ArticleStatusLinkSaved,
	}
	_, err := storage.BatchUpsertByLink(ctx, []*models.Article{seed})
	require.NoError(t, err)

	now := time.Now().UTC()
	update := &models.Article{
		Link:              "https://example.com/news/2",
		Content:           "full article body",
		ScrapeStatus:      models.ArticleStatusContentScraped,
		LastScrapeAttempt: &now,
	}
	result, err := storage.BatchUpsertByLink(ctx, []*models.Article{update})
	require.NoError(t, err)
	assert.Equal(t, 1, result.UpsertedCount)

	got, err := storage.FindByLink(ctx, "https://example.com/news/2")
	require.NoError(t, err)
	require.NotNil(t, got)
	// Empty incoming fields preserve existing values.
	assert.Equal(t, "Original title", got.Title)
	assert.Equal(t, "original summary", got.Summary)
	assert.Equal(t, "full article body", got.Content)
	// Status reconciliation: content_scraped implies is_scraped.
	assert.True(t, got.IsScraped)
	assert.Equal(t, models.ArticleStatusContentScraped, got.ScrapeStatus)
}

func TestBatchUpsertConcurrentWritersKeepOneRowPerLink(t *testing.T) {
	db := newTestDB(t)
	storage := NewArticleStorage(db, arbor.NewLogger())
	ctx := context.Background()

	// each row's find-merge-write runs in one transaction, so racing
	// writers may conflict but can never produce a second row for a link
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = storage.BatchUpsertByLink(ctx, []*models.Article{{
				Link:    "https://example.com/contested",
				Title:   "contested row",
				Content: "writer body",
			}})
		}(i)
	}
	wg.Wait()

	rows, total, err := storage.FindAdvanced(ctx, &interfaces.ArticleFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "https://example.com/contested", rows[0].Link)
}

func TestIsScrapedTracksScrapeStatus(t *testing.T) {
	db := newTestDB(t)
	storage := NewArticleStorage(db, arbor.NewLogger())
	ctx := context.Background()

	statuses := []models.ArticleScrapeStatus{
		models.ArticleStatusPending,
		models.ArticleStatusLinkSaved,
		models.ArticleStatusPartialSaved,
		models.ArticleStatusContentScraped,
		models.ArticleStatusFailed,
	}

	for i, status := range statuses {
		a := &models.Article{
			Link:  "https://example.com/invariant/" + string(rune('a'+i)),
			Title: "row",
		}
		a.ApplyScrapeStatus(status)
		if status == models.ArticleStatusFailed {
			a.ScrapeError = "boom"
		}
		_, err := storage.BatchUpsertByLink(ctx, []*models.Article{a})
		require.NoError(t, err)

		got, err := storage.FindByLink(ctx, a.Link)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, status.ImpliesScraped(), got.IsScraped, "status %s", status)
	}
}

func TestBatchCreateReportsPerRowErrors(t *testing.T) {
	db := newTestDB(t)
	storage := NewArticleStorage(db, arbor.NewLogger())
	ctx := context.Background()

	rows := []*models.Article{
		{Link: "https://example.com/a", Title: "a"},
		{Link: "", Title: "missing link"},
		{Link: "https://example.com/b", Title: "b"},
	}
	result, err := storage.BatchCreate(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, result.CreatedCount)
	require.Len(t, result.Errors, 1)

	// Duplicate link rejected by the unique index, remaining rows unaffected.
	dup, err := storage.BatchCreate(ctx, []*models.Article{
		{Link: "https://example.com/a", Title: "dup"},
		{Link: "https://example.com/c", Title: "c"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, dup.CreatedCount)
	assert.Len(t, dup.Errors, 1)
}

func TestFindByKeywordsSearchesTitleSummaryContent(t *testing.T) {
	db := newTestDB(t)
	storage := NewArticleStorage(db, arbor.NewLogger())
	ctx := context.Background()

	_, err := storage.BatchCreate(ctx, []*models.Article{
		{Link: "https://example.com/k1", Title: "Quantum breakthrough"},
		{Link: "https://example.com/k2", Title: "Other", Summary: "a quantum leap"},
		{Link: "https://example.com/k3", Title: "Other", Content: "nothing here"},
	})
	require.NoError(t, err)

	matches, err := storage.FindByKeywords(ctx, "Quantum", 0, 0, "", false)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestFindAdvancedFiltersAndPaginates(t *testing.T) {
	db := newTestDB(t)
	storage := NewArticleStorage(db, arbor.NewLogger())
	ctx := context.Background()

	scraped := true
	articles := make([]*models.Article, 0, 5)
	for i := 0; i < 5; i++ {
		a := &models.Article{
			Link:   "https://example.com/p/" + string(rune('a'+i)),
			Title:  "paged",
			TaskID: "task-1",
		}
		if i < 3 {
			a.ApplyScrapeStatus(models.ArticleStatusContentScraped)
		} else {
			a.ApplyScrapeStatus(models.ArticleStatusLinkSaved)
		}
		articles = append(articles, a)
	}
	_, err := storage.BatchCreate(ctx, articles)
	require.NoError(t, err)

	rows, total, err := storage.FindAdvanced(ctx, &interfaces.ArticleFilter{
		TaskID:    "task-1",
		IsScraped: &scraped,
		Page:      1,
		PerPage:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, rows, 2)
}
