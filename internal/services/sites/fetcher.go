package sites

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/common"
	"github.com/ternarybob/gazette/internal/interfaces"
	"github.com/ternarybob/gazette/internal/models"
	"golang.org/x/time/rate"
)

// Fetcher is the reference SiteFetcher: list pages for link collection,
// article pages for content, both parsed with the site's configured
// selectors. Requests are rate limited per fetcher instance.
type Fetcher struct {
	site      *SiteConfig
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	logger    arbor.ILogger
}

// NewFetcher creates a site fetcher from its loaded configuration
func NewFetcher(site *SiteConfig, cfg *common.SitesConfig, logger arbor.ILogger) *Fetcher {
	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = 1
	}
	return &Fetcher{
		site:      site,
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(rateLimit), 1),
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// FetchLinks walks the site's category list pages and extracts article link
// rows. The page cap and article cap come from the task args; the cancel
// token is consulted between pages.
func (f *Fetcher) FetchLinks(ctx context.Context, taskID string, params *interfaces.FetchParams, cancel interfaces.CancelToken) ([]*models.Article, error) {
	maxPages := params.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}

	categories := f.site.Categories
	if params.AIOnly && len(f.site.FullCategories) > 0 {
		categories = f.site.FullCategories
	}

	seen := make(map[string]bool)
	var links []*models.Article

	for _, category := range categories {
		for page := 1; page <= maxPages; page++ {
			if cancel != nil && cancel.Cancelled() {
				return links, nil
			}
			if params.NumArticles > 0 && len(links) >= params.NumArticles {
				return links, nil
			}

			pageURL := f.site.ListURL(category, page)
			doc, err := f.fetchDocument(ctx, pageURL, params)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch list page %s: %w", pageURL, err)
			}

			found := f.extractListRows(doc, category, pageURL, seen, &links, params)
			if found == 0 {
				// empty page ends this category's pagination
				break
			}
		}
	}

	f.logger.Debug().
		Str("task_id", taskID).
		Str("site", f.site.Name).
		Int("links", len(links)).
		Msg("Link collection finished")

	return links, nil
}

// FetchArticles visits each given link row and extracts its content. The
// rows come from the caller's link table, so content-only runs scrape links
// the fetcher never collected. Per-link failures produce failed rows instead
// of aborting the batch.
func (f *Fetcher) FetchArticles(ctx context.Context, taskID string, rows []*models.Article, params *interfaces.FetchParams, cancel interfaces.CancelToken) ([]*models.Article, error) {
	results := make([]*models.Article, 0, len(rows))

	for _, row := range rows {
		if cancel != nil && cancel.Cancelled() {
			return results, nil
		}

		doc, err := f.fetchDocument(ctx, row.Link, params)
		if err != nil {
			now := time.Now().UTC()
			failed := &models.Article{
				Link:              row.Link,
				ScrapeError:       err.Error(),
				LastScrapeAttempt: &now,
			}
			failed.ApplyScrapeStatus(models.ArticleStatusFailed)
			results = append(results, failed)
			continue
		}

		result := &models.Article{Link: row.Link}
		if sel := f.site.Selector("content"); sel != "" {
			result.Content = strings.TrimSpace(doc.Find(sel).Text())
		}
		if sel := f.site.Selector("author"); sel != "" {
			result.Author = strings.TrimSpace(doc.Find(sel).First().Text())
		}
		if sel := f.site.Selector("summary"); sel != "" && result.Summary == "" {
			result.Summary = strings.TrimSpace(doc.Find(sel).First().Text())
		}
		if sel := f.site.Selector("tags"); sel != "" {
			doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
				if tag := strings.TrimSpace(s.Text()); tag != "" {
					result.Tags = append(result.Tags, tag)
				}
			})
		}
		result.IsAIRelated = f.matchesAIKeywords(result.Content, params.MinKeywords)
		result.ApplyScrapeStatus(models.ArticleStatusContentScraped)
		results = append(results, result)
	}

	f.logger.Debug().
		Str("task_id", taskID).
		Str("site", f.site.Name).
		Int("scraped", len(results)).
		Msg("Content scraping finished")

	return results, nil
}

// extractListRows pulls article rows out of one list page
func (f *Fetcher) extractListRows(doc *goquery.Document, category, pageURL string, seen map[string]bool, links *[]*models.Article, params *interfaces.FetchParams) int {
	itemSel := f.site.Selector("list_item")
	linkSel := f.site.Selector("list_link")
	titleSel := f.site.Selector("list_title")

	base, err := url.Parse(f.site.BaseURL)
	if err != nil {
		base = nil
	}

	found := 0
	doc.Find(itemSel).Each(func(_ int, item *goquery.Selection) {
		if params.NumArticles > 0 && len(*links) >= params.NumArticles {
			return
		}

		anchor := item
		if linkSel != "" {
			anchor = item.Find(linkSel).First()
		}
		href, ok := anchor.Attr("href")
		if !ok || href == "" {
			return
		}
		link := resolveURL(href, base)
		if link == "" || seen[link] {
			return
		}

		title := strings.TrimSpace(anchor.Text())
		if titleSel != "" {
			title = strings.TrimSpace(item.Find(titleSel).First().Text())
		}

		seen[link] = true
		found++
		*links = append(*links, &models.Article{
			Link:      link,
			Title:     title,
			Source:    f.site.Name,
			SourceURL: pageURL,
			Category:  category,
		})
	})
	return found
}

// fetchDocument performs one rate-limited GET and parses the response body
func (f *Fetcher) fetchDocument(ctx context.Context, pageURL string, params *interfaces.FetchParams) (*goquery.Document, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if params != nil && params.TimeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(params.TimeoutSecs*float64(time.Second)))
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, pageURL)
	}

	return goquery.NewDocumentFromReader(resp.Body)
}

// matchesAIKeywords counts configured AI keywords in the content and
// compares against the task's threshold
func (f *Fetcher) matchesAIKeywords(content string, minKeywords int) bool {
	if len(f.site.AIKeywords) == 0 {
		return false
	}
	lowered := strings.ToLower(content)
	count := 0
	for _, kw := range f.site.AIKeywords {
		if strings.Contains(lowered, strings.ToLower(kw)) {
			count++
		}
	}
	if minKeywords < 1 {
		minKeywords = 1
	}
	return count >= minKeywords
}

func resolveURL(href string, base *url.URL) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "#") {
		return ""
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if parsed.IsAbs() {
		return parsed.String()
	}
	if base == nil {
		return ""
	}
	return base.ResolveReference(parsed).String()
}
