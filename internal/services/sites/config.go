// -----------------------------------------------------------------------
// Package sites loads per-site crawler configuration and provides the
// reference HTML fetcher built on it
// -----------------------------------------------------------------------

package sites

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/gazette/internal/common"
)

// SiteConfig is one site's crawl configuration, loaded from a JSON file in
// the site config directory
type SiteConfig struct {
	Name            string            `json:"name"`
	BaseURL         string            `json:"base_url"`
	ListURLTemplate string            `json:"list_url_template"`
	Categories      []string          `json:"categories"`
	FullCategories  []string          `json:"full_categories"`
	Selectors       map[string]string `json:"selectors"`

	// optional tuning
	AIKeywords []string `json:"ai_keywords,omitempty"`
	PageParam  string   `json:"page_param,omitempty"`
}

// requiredConfigKeys must all be present and non-empty in every site file
var requiredConfigKeys = []string{
	"name", "base_url", "list_url_template", "categories", "full_categories", "selectors",
}

// ConfigDir resolves the site config directory: the environment override
// wins, then the configured directory
func ConfigDir(configured string) string {
	if v := os.Getenv(common.EnvSiteConfigDir); v != "" {
		return v
	}
	if configured != "" {
		return configured
	}
	return "./configs"
}

// LoadSiteConfig reads and validates one site's JSON config file. Missing
// required keys fail fast so a crawler is never constructed half-configured.
func LoadSiteConfig(dir, fileName string) (*SiteConfig, error) {
	if fileName == "" {
		return nil, fmt.Errorf("site config file name is empty")
	}
	if !strings.HasSuffix(fileName, ".json") {
		fileName += ".json"
	}

	path := filepath.Join(dir, fileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read site config %s: %w", path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON in site config %s: %w", path, err)
	}
	var missing []string
	for _, key := range requiredConfigKeys {
		if v, ok := raw[key]; !ok || len(v) == 0 || string(v) == "null" || string(v) == `""` {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("site config %s missing required keys: %s", path, strings.Join(missing, ", "))
	}

	var cfg SiteConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse site config %s: %w", path, err)
	}
	if len(cfg.Selectors) == 0 {
		return nil, fmt.Errorf("site config %s has empty selectors", path)
	}
	return &cfg, nil
}

// ListURL expands the list URL template for a category and page.
// Templates use {category} and {page} placeholders.
func (c *SiteConfig) ListURL(category string, page int) string {
	url := strings.ReplaceAll(c.ListURLTemplate, "{category}", category)
	url = strings.ReplaceAll(url, "{page}", fmt.Sprintf("%d", page))
	return url
}

// Selector returns a named selector, empty when undeclared
func (c *SiteConfig) Selector(name string) string {
	return c.Selectors[name]
}
