package sites

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/common"
	"github.com/ternarybob/gazette/internal/interfaces"
)

// Registry implements interfaces.FetcherResolver: it resolves a crawler to
// its site fetcher, loading and caching the site configuration on first use
type Registry struct {
	crawlers  interfaces.CrawlerStorage
	cfg       *common.SitesConfig
	configDir string
	logger    arbor.ILogger

	mu    sync.Mutex
	cache map[string]*Fetcher
}

// NewRegistry creates a fetcher registry
func NewRegistry(crawlers interfaces.CrawlerStorage, cfg *common.SitesConfig, logger arbor.ILogger) *Registry {
	return &Registry{
		crawlers:  crawlers,
		cfg:       cfg,
		configDir: ConfigDir(cfg.ConfigDir),
		logger:    logger,
		cache:     make(map[string]*Fetcher),
	}
}

// FetcherFor returns the fetcher for a crawler, constructing it from the
// crawler's config file on first request
func (r *Registry) FetcherFor(ctx context.Context, crawlerID string) (interfaces.SiteFetcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fetcher, ok := r.cache[crawlerID]; ok {
		return fetcher, nil
	}

	crawler, err := r.crawlers.GetCrawler(ctx, crawlerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load crawler %s: %w", crawlerID, err)
	}
	if crawler == nil {
		return nil, fmt.Errorf("crawler %s not found", crawlerID)
	}
	if !crawler.IsActive {
		return nil, fmt.Errorf("crawler %s is not active", crawler.Name)
	}

	fileName := crawler.ConfigFileName
	if fileName == "" {
		fileName = crawler.Name
	}
	site, err := LoadSiteConfig(r.configDir, fileName)
	if err != nil {
		return nil, err
	}

	fetcher := NewFetcher(site, r.cfg, r.logger)
	r.cache[crawlerID] = fetcher

	r.logger.Info().
		Str("crawler_id", crawlerID).
		Str("site", site.Name).
		Msg("Site fetcher constructed")
	return fetcher, nil
}

// Invalidate drops a crawler's cached fetcher so the next request reloads
// its configuration
func (r *Registry) Invalidate(crawlerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, crawlerID)
}
