package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Task is a scheduled or on-demand scrape job bound to exactly one Crawler.
//
// Args is kept as an opaque map so partial updates can deep-merge nested keys
// without clobbering siblings; ParseTaskArgs produces the typed view used by
// the runner.
type Task struct {
	ID             string                 `json:"id" badgerhold:"key"`
	Name           string                 `json:"name"`
	CrawlerID      string                 `json:"crawler_id" badgerhold:"index"`
	IsAuto         bool                   `json:"is_auto"`
	IsActive       bool                   `json:"is_active"`
	CronExpression string                 `json:"cron_expression,omitempty"`
	Args           map[string]interface{} `json:"task_args"`
	ScrapePhase    ScrapePhase            `json:"scrape_phase"`
	RetryCount     int                    `json:"retry_count"`
	LastRunAt      *time.Time             `json:"last_run_at,omitempty"`
	LastRunSuccess *bool                  `json:"last_run_success,omitempty"`
	LastRunMessage string                 `json:"last_run_message,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// TaskArgs is the typed view of a task's argument map
type TaskArgs struct {
	ScrapeMode                 ScrapeMode
	MaxPages                   int
	NumArticles                int
	MinKeywords                int
	AIOnly                     bool
	MaxRetries                 int
	RetryDelay                 float64 // seconds between retry attempts
	Timeout                    float64 // per-request deadline in seconds
	IsTest                     bool
	SaveToCSV                  bool
	CSVFilePrefix              string
	SaveToDatabase             bool
	GetLinksByTaskID           bool
	ArticleLinks               []string
	SavePartialResultsOnCancel bool
	SavePartialToDatabase      bool
	MaxCancelWait              int
	CancelInterruptInterval    int
	CancelTimeout              int
}

// Defaults applied when a key is absent from the argument map
const (
	DefaultCSVFilePrefix = "articles"
	DefaultMaxRetries    = 0
	DefaultRetryDelay    = 1.0
)

// MaxRetries returns the task's retry budget from its argument map
func (t *Task) MaxRetries() int {
	if t.Args == nil {
		return DefaultMaxRetries
	}
	n, ok := intArg(t.Args, "max_retries")
	if !ok {
		return DefaultMaxRetries
	}
	return n
}

// NormalizeTimestamps coerces all timestamps to UTC
func (t *Task) NormalizeTimestamps() {
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	if t.LastRunAt != nil {
		ts := t.LastRunAt.UTC()
		t.LastRunAt = &ts
	}
}

// ParseTaskArgs converts an argument map into its typed form. scrape_mode is
// required; everything else falls back to its default.
func ParseTaskArgs(args map[string]interface{}) (*TaskArgs, error) {
	if args == nil {
		return nil, fmt.Errorf("task_args is required")
	}

	modeRaw, ok := args["scrape_mode"]
	if !ok {
		return nil, fmt.Errorf("task_args.scrape_mode is required")
	}
	mode, err := ParseScrapeMode(fmt.Sprintf("%v", modeRaw))
	if err != nil {
		return nil, err
	}

	parsed := &TaskArgs{
		ScrapeMode:    mode,
		CSVFilePrefix: DefaultCSVFilePrefix,
		RetryDelay:    DefaultRetryDelay,
	}

	if n, ok := intArg(args, "max_pages"); ok {
		if n < 1 {
			return nil, fmt.Errorf("task_args.max_pages must be >= 1")
		}
		parsed.MaxPages = n
	}
	if n, ok := intArg(args, "num_articles"); ok {
		if n < 1 {
			return nil, fmt.Errorf("task_args.num_articles must be >= 1")
		}
		parsed.NumArticles = n
	}
	if n, ok := intArg(args, "min_keywords"); ok {
		if n < 0 {
			return nil, fmt.Errorf("task_args.min_keywords must be >= 0")
		}
		parsed.MinKeywords = n
	}
	if n, ok := intArg(args, "max_retries"); ok {
		if n < 0 {
			return nil, fmt.Errorf("task_args.max_retries must be >= 0")
		}
		parsed.MaxRetries = n
	}
	if f, ok := floatArg(args, "retry_delay"); ok {
		if f <= 0 {
			return nil, fmt.Errorf("task_args.retry_delay must be > 0")
		}
		parsed.RetryDelay = f
	}
	if f, ok := floatArg(args, "timeout"); ok {
		if f <= 0 {
			return nil, fmt.Errorf("task_args.timeout must be > 0")
		}
		parsed.Timeout = f
	}
	if b, ok := boolArg(args, "ai_only"); ok {
		parsed.AIOnly = b
	}
	if b, ok := boolArg(args, "is_test"); ok {
		parsed.IsTest = b
	}
	if b, ok := boolArg(args, "save_to_csv"); ok {
		parsed.SaveToCSV = b
	}
	if b, ok := boolArg(args, "save_to_database"); ok {
		parsed.SaveToDatabase = b
	}
	if b, ok := boolArg(args, "get_links_by_task_id"); ok {
		parsed.GetLinksByTaskID = b
	}
	if b, ok := boolArg(args, "save_partial_results_on_cancel"); ok {
		parsed.SavePartialResultsOnCancel = b
	}
	if b, ok := boolArg(args, "save_partial_to_database"); ok {
		parsed.SavePartialToDatabase = b
	}
	if s, ok := args["csv_file_prefix"].(string); ok && s != "" {
		parsed.CSVFilePrefix = s
	}
	if links, ok := args["article_links"]; ok {
		list, err := stringListArg(links)
		if err != nil {
			return nil, fmt.Errorf("task_args.article_links: %w", err)
		}
		parsed.ArticleLinks = list
	}
	if n, ok := intArg(args, "max_cancel_wait"); ok {
		parsed.MaxCancelWait = n
	}
	if n, ok := intArg(args, "cancel_interrupt_interval"); ok {
		parsed.CancelInterruptInterval = n
	}
	if n, ok := intArg(args, "cancel_timeout"); ok {
		parsed.CancelTimeout = n
	}

	return parsed, nil
}

// RetryDelayDuration converts the float seconds delay to a duration
func (a *TaskArgs) RetryDelayDuration() time.Duration {
	return time.Duration(a.RetryDelay * float64(time.Second))
}

// TimeoutDuration converts the float seconds timeout to a duration,
// zero when unset
func (a *TaskArgs) TimeoutDuration() time.Duration {
	return time.Duration(a.Timeout * float64(time.Second))
}

// DeepMergeArgs merges patch into base with two-level semantics: nested maps
// are merged key-by-key, scalars and lists are overwritten. base is not
// mutated; the merged copy is returned.
func DeepMergeArgs(base, patch map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range patch {
		patchMap, patchIsMap := v.(map[string]interface{})
		baseMap, baseIsMap := merged[k].(map[string]interface{})
		if patchIsMap && baseIsMap {
			nested := make(map[string]interface{}, len(baseMap)+len(patchMap))
			for nk, nv := range baseMap {
				nested[nk] = nv
			}
			for nk, nv := range patchMap {
				nested[nk] = nv
			}
			merged[k] = nested
			continue
		}
		merged[k] = v
	}
	return merged
}

// intArg reads an int-valued key, accepting int, int64, float64 with integral
// value (JSON decoding), and integer strings
func intArg(args map[string]interface{}, key string) (int, bool) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func floatArg(args map[string]interface{}, key string) (float64, bool) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func boolArg(args map[string]interface{}, key string) (bool, bool) {
	v, ok := args[key]
	if !ok || v == nil {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		}
	}
	return false, false
}

func stringListArg(v interface{}) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element %v is not a string", item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list of strings")
}
