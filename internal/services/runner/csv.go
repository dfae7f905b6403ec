package runner

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/gazette/internal/models"
)

// csvTimestampFormat is the filename timestamp: YYYYMMDDhhmmss
const csvTimestampFormat = "20060102150405"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var csvColumns = []string{
	"id", "title", "link", "source", "source_url", "summary", "content",
	"category", "author", "article_type", "tags", "published_at",
	"is_ai_related", "is_scraped", "scrape_status", "scrape_error",
	"last_scrape_attempt", "task_id", "created_at", "updated_at",
}

var csvCancelColumns = []string{"is_partial_save", "cancel_reason"}

// CSVWriter persists link-table rows as UTF-8-with-BOM CSV files under the
// configured output directory. The header row is always present and no index
// column is written.
type CSVWriter struct {
	outputDir string
	clock     func() time.Time
}

// NewCSVWriter creates a CSV writer targeting dir
func NewCSVWriter(dir string, clock func() time.Time) *CSVWriter {
	if clock == nil {
		clock = time.Now
	}
	return &CSVWriter{outputDir: dir, clock: clock}
}

// Write persists rows to {dir}/{prefix}_{taskID}_{ts}.csv. An empty row set
// skips the write and returns an empty path with no error.
func (w *CSVWriter) Write(prefix, taskID string, rows []*models.Article) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	name := fmt.Sprintf("%s_%s_%s.csv", prefix, taskID, w.clock().UTC().Format(csvTimestampFormat))
	return w.writeFile(name, rows, "")
}

// WriteCancelled persists rows to {dir}/{prefix}_cancelled_{taskID}_{ts}.csv
// with the partial-save marker columns appended to every row.
func (w *CSVWriter) WriteCancelled(prefix, taskID, cancelReason string, rows []*models.Article) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	name := fmt.Sprintf("%s_cancelled_%s_%s.csv", prefix, taskID, w.clock().UTC().Format(csvTimestampFormat))
	return w.writeFile(name, rows, cancelReason)
}

func (w *CSVWriter) writeFile(name string, rows []*models.Article, cancelReason string) (string, error) {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(w.outputDir, name)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create csv file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(utf8BOM); err != nil {
		return "", fmt.Errorf("failed to write BOM: %w", err)
	}

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := csvColumns
	cancelled := cancelReason != ""
	if cancelled {
		header = append(append([]string{}, csvColumns...), csvCancelColumns...)
	}
	if err := writer.Write(header); err != nil {
		return "", fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, row := range rows {
		record := articleRecord(row)
		if cancelled {
			record = append(record, "true", cancelReason)
		}
		if err := writer.Write(record); err != nil {
			return "", fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("failed to flush csv: %w", err)
	}
	return path, nil
}

// ReadCSV loads articles back from a CSV produced by this writer. Used by
// recovery tooling and round-trip tests; the partial-save marker columns are
// ignored when present.
func ReadCSV(path string) ([]*models.Article, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv file: %w", err)
	}
	content := strings.TrimPrefix(string(data), string(utf8BOM))

	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("csv has no header row")
	}

	index := make(map[string]int, len(records[0]))
	for i, col := range records[0] {
		index[col] = i
	}

	field := func(record []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	articles := make([]*models.Article, 0, len(records)-1)
	for _, record := range records[1:] {
		a := &models.Article{
			ID:          field(record, "id"),
			Title:       field(record, "title"),
			Link:        field(record, "link"),
			Source:      field(record, "source"),
			SourceURL:   field(record, "source_url"),
			Summary:     field(record, "summary"),
			Content:     field(record, "content"),
			Category:    field(record, "category"),
			Author:      field(record, "author"),
			ArticleType: field(record, "article_type"),
			ScrapeError: field(record, "scrape_error"),
			TaskID:      field(record, "task_id"),
		}
		if tags := field(record, "tags"); tags != "" {
			a.Tags = strings.Split(tags, "|")
		}
		a.IsAIRelated, _ = strconv.ParseBool(field(record, "is_ai_related"))
		a.IsScraped, _ = strconv.ParseBool(field(record, "is_scraped"))
		if status := field(record, "scrape_status"); status != "" {
			a.ScrapeStatus = models.ArticleScrapeStatus(status)
		}
		a.PublishedAt = parseCSVTime(field(record, "published_at"))
		a.LastScrapeAttempt = parseCSVTime(field(record, "last_scrape_attempt"))
		if t := parseCSVTime(field(record, "created_at")); t != nil {
			a.CreatedAt = *t
		}
		if t := parseCSVTime(field(record, "updated_at")); t != nil {
			a.UpdatedAt = *t
		}
		articles = append(articles, a)
	}
	return articles, nil
}

func articleRecord(a *models.Article) []string {
	return []string{
		a.ID,
		a.Title,
		a.Link,
		a.Source,
		a.SourceURL,
		a.Summary,
		a.Content,
		a.Category,
		a.Author,
		a.ArticleType,
		strings.Join(a.Tags, "|"),
		formatCSVTime(a.PublishedAt),
		strconv.FormatBool(a.IsAIRelated),
		strconv.FormatBool(a.IsScraped),
		string(a.ScrapeStatus),
		a.ScrapeError,
		formatCSVTime(a.LastScrapeAttempt),
		a.TaskID,
		formatCSVTimeValue(a.CreatedAt),
		formatCSVTimeValue(a.UpdatedAt),
	}
}

func formatCSVTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatCSVTimeValue(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseCSVTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	u := t.UTC()
	return &u
}
