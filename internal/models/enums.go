package models

import (
	"fmt"
	"strings"
)

// ScrapePhase represents the coarse-grained execution phase of a task run
type ScrapePhase string

const (
	PhaseInit            ScrapePhase = "init"
	PhaseLinkCollection  ScrapePhase = "link_collection"
	PhaseContentScraping ScrapePhase = "content_scraping"
	PhaseSaveToCSV       ScrapePhase = "save_to_csv"
	PhaseSaveToDatabase  ScrapePhase = "save_to_database"
	PhaseCompleted       ScrapePhase = "completed"
	PhaseFailed          ScrapePhase = "failed"
	PhaseCancelled       ScrapePhase = "cancelled"
	PhaseUnknown         ScrapePhase = "unknown"
)

// ScrapeMode is the dispatch discriminator controlling which phases run
type ScrapeMode string

const (
	ModeLinksOnly   ScrapeMode = "links_only"
	ModeContentOnly ScrapeMode = "content_only"
	ModeFullScrape  ScrapeMode = "full_scrape"
)

// ArticleScrapeStatus tracks per-article scrape outcome
type ArticleScrapeStatus string

const (
	ArticleStatusPending        ArticleScrapeStatus = "pending"
	ArticleStatusLinkSaved      ArticleScrapeStatus = "link_saved"
	ArticleStatusPartialSaved   ArticleScrapeStatus = "partial_saved"
	ArticleStatusContentScraped ArticleScrapeStatus = "content_scraped"
	ArticleStatusFailed         ArticleScrapeStatus = "failed"
)

// TaskStatus is the per-execution status recorded in TaskHistory
type TaskStatus string

const (
	TaskStatusInit      TaskStatus = "init"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

var scrapePhases = []ScrapePhase{
	PhaseInit, PhaseLinkCollection, PhaseContentScraping,
	PhaseSaveToCSV, PhaseSaveToDatabase,
	PhaseCompleted, PhaseFailed, PhaseCancelled, PhaseUnknown,
}

var scrapeModes = []ScrapeMode{ModeLinksOnly, ModeContentOnly, ModeFullScrape}

var articleScrapeStatuses = []ArticleScrapeStatus{
	ArticleStatusPending, ArticleStatusLinkSaved, ArticleStatusPartialSaved,
	ArticleStatusContentScraped, ArticleStatusFailed,
}

var taskStatuses = []TaskStatus{
	TaskStatusInit, TaskStatusRunning, TaskStatusCompleted,
	TaskStatusFailed, TaskStatusCancelled,
}

// ParseScrapePhase parses a phase value case-insensitively.
// Unknown values map to PhaseUnknown without error so persisted rows from
// older versions still load.
func ParseScrapePhase(value string) ScrapePhase {
	v := ScrapePhase(strings.ToLower(strings.TrimSpace(value)))
	for _, p := range scrapePhases {
		if v == p {
			return p
		}
	}
	return PhaseUnknown
}

// ParseScrapeMode parses a mode value case-insensitively
func ParseScrapeMode(value string) (ScrapeMode, error) {
	v := ScrapeMode(strings.ToLower(strings.TrimSpace(value)))
	for _, m := range scrapeModes {
		if v == m {
			return m, nil
		}
	}
	return "", fmt.Errorf("invalid scrape_mode %q, permitted: %v", value, scrapeModes)
}

// ParseArticleScrapeStatus parses an article scrape status case-insensitively
func ParseArticleScrapeStatus(value string) (ArticleScrapeStatus, error) {
	v := ArticleScrapeStatus(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range articleScrapeStatuses {
		if v == s {
			return s, nil
		}
	}
	return "", fmt.Errorf("invalid scrape_status %q, permitted: %v", value, articleScrapeStatuses)
}

// ParseTaskStatus parses a task status case-insensitively
func ParseTaskStatus(value string) (TaskStatus, error) {
	v := TaskStatus(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range taskStatuses {
		if v == s {
			return s, nil
		}
	}
	return "", fmt.Errorf("invalid task_status %q, permitted: %v", value, taskStatuses)
}

// IsTerminal reports whether the phase ends a task run
func (p ScrapePhase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseCancelled
}

// IsTerminal reports whether the status ends a history row
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// ImpliesScraped reports whether the status implies is_scraped=true
func (s ArticleScrapeStatus) ImpliesScraped() bool {
	return s == ArticleStatusContentScraped || s == ArticleStatusPartialSaved
}
