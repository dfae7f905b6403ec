package models

import "time"

// ServiceResult is the envelope returned by all task service entry points.
// Errors never escape the facade boundary; they are mapped onto Success and
// Message here.
type ServiceResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Payload interface{} `json:"payload,omitempty"`
}

// RunResult is the outcome of a single task runner execution
type RunResult struct {
	Success          bool        `json:"success"`
	Message          string      `json:"message"`
	ArticlesCount    int         `json:"articles_count"`
	ScrapePhase      ScrapePhase `json:"scrape_phase"`
	GetLinksByTaskID bool        `json:"get_links_by_task_id"`
	PartialDataSaved bool        `json:"partial_data_saved,omitempty"`
}

// BatchResult aggregates the outcome of a batch article write. The batch
// succeeds if any row succeeded; per-row failures are reported in Errors.
type BatchResult struct {
	CreatedCount  int      `json:"created_count,omitempty"`
	UpsertedCount int      `json:"upserted_count,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// ProgressPayload is the map emitted to progress listeners
type ProgressPayload struct {
	TaskID      string      `json:"task_id"`
	ScrapePhase ScrapePhase `json:"scrape_phase"`
	Progress    int         `json:"progress"`
	Message     string      `json:"message"`
	StartTime   time.Time   `json:"start_time"`
}
