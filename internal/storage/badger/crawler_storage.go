package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/interfaces"
	"github.com/ternarybob/gazette/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// CrawlerStorage implements the CrawlerStorage interface for Badger
type CrawlerStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCrawlerStorage creates a new CrawlerStorage instance
func NewCrawlerStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CrawlerStorage {
	return &CrawlerStorage{
		db:     db,
		logger: logger,
	}
}

// SaveCrawler inserts or updates a crawler registration
func (s *CrawlerStorage) SaveCrawler(ctx context.Context, crawler *models.Crawler) error {
	if crawler.ID == "" {
		return fmt.Errorf("crawler ID is required")
	}
	if crawler.Name == "" {
		return fmt.Errorf("crawler name is required")
	}
	crawler.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Upsert(crawler.ID, crawler); err != nil {
		return fmt.Errorf("failed to save crawler: %w", err)
	}
	return nil
}

// GetCrawler returns a crawler by ID, nil when absent
func (s *CrawlerStorage) GetCrawler(ctx context.Context, crawlerID string) (*models.Crawler, error) {
	var crawler models.Crawler
	if err := s.db.Store().Get(crawlerID, &crawler); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get crawler: %w", err)
	}
	return &crawler, nil
}

// GetCrawlerByName returns a crawler by its unique name, nil when absent
func (s *CrawlerStorage) GetCrawlerByName(ctx context.Context, name string) (*models.Crawler, error) {
	var crawlers []models.Crawler
	if err := s.db.Store().Find(&crawlers, badgerhold.Where("Name").Eq(name).Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to find crawler by name: %w", err)
	}
	if len(crawlers) == 0 {
		return nil, nil
	}
	return &crawlers[0], nil
}

// ListCrawlers returns registered crawlers, optionally active only
func (s *CrawlerStorage) ListCrawlers(ctx context.Context, activeOnly bool) ([]*models.Crawler, error) {
	query := badgerhold.Where("ID").Ne("")
	if activeOnly {
		query = query.And("IsActive").Eq(true)
	}
	query = query.SortBy("Name")

	var crawlers []models.Crawler
	if err := s.db.Store().Find(&crawlers, query); err != nil {
		return nil, fmt.Errorf("failed to list crawlers: %w", err)
	}

	result := make([]*models.Crawler, len(crawlers))
	for i := range crawlers {
		result[i] = &crawlers[i]
	}
	return result, nil
}
