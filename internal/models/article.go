package models

import (
	"time"
)

// Article is a scraped news artifact. Link is the unique business key and the
// sole idempotency key for upserts.
type Article struct {
	ID                string              `json:"id" badgerhold:"key"`
	Title             string              `json:"title"`
	Link              string              `json:"link" badgerhold:"unique"`
	Source            string              `json:"source"`
	SourceURL         string              `json:"source_url"`
	Summary           string              `json:"summary"`
	Content           string              `json:"content"`
	Category          string              `json:"category"`
	Author            string              `json:"author"`
	ArticleType       string              `json:"article_type"`
	Tags              []string            `json:"tags,omitempty"`
	PublishedAt       *time.Time          `json:"published_at,omitempty"`
	IsAIRelated       bool                `json:"is_ai_related"`
	IsScraped         bool                `json:"is_scraped"`
	ScrapeStatus      ArticleScrapeStatus `json:"scrape_status"`
	ScrapeError       string              `json:"scrape_error,omitempty"`
	LastScrapeAttempt *time.Time          `json:"last_scrape_attempt,omitempty"`
	TaskID            string              `json:"task_id,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// ApplyScrapeStatus sets ScrapeStatus and keeps IsScraped consistent with it.
// The status is authoritative: content_scraped and partial_saved imply
// is_scraped=true, everything else implies false.
func (a *Article) ApplyScrapeStatus(status ArticleScrapeStatus) {
	a.ScrapeStatus = status
	a.IsScraped = status.ImpliesScraped()
}

// MergeFrom copies non-zero fields of incoming into a. Existing values are
// preserved where the incoming field is empty. Scrape status reconciliation
// is driven by the incoming row's ScrapeStatus when set:
//   - content_scraped forces is_scraped=true
//   - failed forces is_scraped=false and carries scrape_error and
//     last_scrape_attempt from the incoming row
func (a *Article) MergeFrom(in *Article) {
	if in == nil {
		return
	}
	if in.Title != "" {
		a.Title = in.Title
	}
	if in.Source != "" {
		a.Source = in.Source
	}
	if in.SourceURL != "" {
		a.SourceURL = in.SourceURL
	}
	if in.Summary != "" {
		a.Summary = in.Summary
	}
	if in.Content != "" {
		a.Content = in.Content
	}
	if in.Category != "" {
		a.Category = in.Category
	}
	if in.Author != "" {
		a.Author = in.Author
	}
	if in.ArticleType != "" {
		a.ArticleType = in.ArticleType
	}
	if len(in.Tags) > 0 {
		a.Tags = in.Tags
	}
	if in.PublishedAt != nil {
		a.PublishedAt = in.PublishedAt
	}
	if in.IsAIRelated {
		a.IsAIRelated = true
	}
	if in.TaskID != "" && a.TaskID == "" {
		a.TaskID = in.TaskID
	}
	if in.ScrapeError != "" {
		a.ScrapeError = in.ScrapeError
	}
	if in.LastScrapeAttempt != nil {
		a.LastScrapeAttempt = in.LastScrapeAttempt
	}

	switch in.ScrapeStatus {
	case "":
		// No status on the incoming row, keep the existing one.
	case ArticleStatusContentScraped:
		a.ApplyScrapeStatus(ArticleStatusContentScraped)
	case ArticleStatusFailed:
		a.ApplyScrapeStatus(ArticleStatusFailed)
	default:
		a.ApplyScrapeStatus(in.ScrapeStatus)
	}
}

// NormalizeTimestamps coerces all timestamps to UTC. Timestamps parsed from
// external payloads without a zone are assumed UTC on ingress.
func (a *Article) NormalizeTimestamps() {
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	if a.PublishedAt != nil {
		t := a.PublishedAt.UTC()
		a.PublishedAt = &t
	}
	if a.LastScrapeAttempt != nil {
		t := a.LastScrapeAttempt.UTC()
		a.LastScrapeAttempt = &t
	}
}
