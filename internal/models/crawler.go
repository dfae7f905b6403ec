package models

import "time"

// Crawler is a registered scraping backend. Crawlers are soft-disabled via
// IsActive=false and never deleted while tasks reference them.
type Crawler struct {
	ID             string    `json:"id" badgerhold:"key"`
	Name           string    `json:"name" badgerhold:"unique"`
	Module         string    `json:"module"`
	BaseURL        string    `json:"base_url"`
	CrawlerType    string    `json:"crawler_type"`
	ConfigFileName string    `json:"config_file_name"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
