// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// HTTPConfig holds shared HTTP settings used by every upstream client.
type HTTPConfig struct {
	// Timeout bounds each individual request, including body reads.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "book-finder/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// MaxRetries is the number of retries on HTTP 429 before giving up.
	// Zero selects the default of 2; a negative value disables retries.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RequestsPerSecond throttles calls per upstream host; 0 disables it.
	RequestsPerSecond int `json:"requests_per_second" yaml:"requests_per_second"`
}

// CatalogConfig holds settings for the catalog (Open Library) client.
type CatalogConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the catalog API root (default https://openlibrary.org).
	BaseURL string `json:"base_url" yaml:"base_url"`

	// CoverBaseURL is the cover image service root
	// (default https://covers.openlibrary.org).
	CoverBaseURL string `json:"cover_base_url" yaml:"cover_base_url"`

	// Limit is the default number of records requested (default 20).
	Limit int `json:"limit" yaml:"limit"`
}

// ArchiveConfig holds settings for the archive (Internet Archive) client.
type ArchiveConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the archive root (default https://archive.org).
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Limit is the default number of rows requested (default 20).
	Limit int `json:"limit" yaml:"limit"`

	// MetadataConcurrency caps concurrent metadata lookups; 0 means one
	// goroutine per search result.
	MetadataConcurrency int `json:"metadata_concurrency" yaml:"metadata_concurrency"`
}

// RecommendConfig holds settings for the chat-completion recommendation client.
type RecommendConfig struct {
	HTTPConfig `yaml:",inline"`

	// Endpoint is the full chat-completions URL.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// APIKey is sent as a Bearer token. Loaded from the environment or
	// .secrets/, never from source.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Model is the model identifier (e.g. "moonshotai/kimi-k2:free").
	Model string `json:"model" yaml:"model"`

	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`

	// SiteURL and SiteName are optional attribution headers.
	SiteURL  string `json:"site_url,omitempty" yaml:"site_url,omitempty"`
	SiteName string `json:"site_name,omitempty" yaml:"site_name,omitempty"`
}

// SearchConfig holds settings for the aggregation pipeline.
type SearchConfig struct {
	// EnhancedLimit is the per-source limit for enhanced-query and
	// backfill searches (default 10).
	EnhancedLimit int `json:"enhanced_limit" yaml:"enhanced_limit"`

	// MinResults is the non-recommendation count below which alternative
	// terms are searched (default 5).
	MinResults int `json:"min_results" yaml:"min_results"`

	// MaxBackfillTerms caps how many alternative terms are searched (default 2).
	MaxBackfillTerms int `json:"max_backfill_terms" yaml:"max_backfill_terms"`

	// PlaceholderCoverURL is the image service used for synthetic books.
	PlaceholderCoverURL string `json:"placeholder_cover_url" yaml:"placeholder_cover_url"`
}

// ServerConfig holds settings for the HTTP surface.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`

	// RequestTimeout bounds one whole aggregated search.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
}

// LogConfig selects logrus level and formatter.
type LogConfig struct {
	Level string `json:"level" yaml:"level"`

	// Format is "text" or "json".
	Format string `json:"format" yaml:"format"`
}

// Config groups all component configurations.
type Config struct {
	Catalog   CatalogConfig   `json:"catalog" yaml:"catalog"`
	Archive   ArchiveConfig   `json:"archive" yaml:"archive"`
	Recommend RecommendConfig `json:"recommend" yaml:"recommend"`
	Search    SearchConfig    `json:"search" yaml:"search"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Log       LogConfig       `json:"log" yaml:"log"`
}

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "book-finder/0.1"

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	httpCfg := HTTPConfig{
		Timeout:    15 * time.Second,
		UserAgent:  DefaultUserAgent,
		MaxRetries: 2,
	}
	llmHTTP := httpCfg
	llmHTTP.Timeout = 30 * time.Second
	llmHTTP.MaxRetries = -1

	return Config{
		Catalog: CatalogConfig{
			HTTPConfig:   httpCfg,
			BaseURL:      "https://openlibrary.org",
			CoverBaseURL: "https://covers.openlibrary.org",
			Limit:        20,
		},
		Archive: ArchiveConfig{
			HTTPConfig: httpCfg,
			BaseURL:    "https://archive.org",
			Limit:      20,
		},
		Recommend: RecommendConfig{
			HTTPConfig:  llmHTTP,
			Endpoint:    "https://openrouter.ai/api/v1/chat/completions",
			Model:       "moonshotai/kimi-k2:free",
			Temperature: 0.7,
			MaxTokens:   500,
		},
		Search: SearchConfig{
			EnhancedLimit:       10,
			MinResults:          5,
			MaxBackfillTerms:    2,
			PlaceholderCoverURL: "https://via.placeholder.com/200x300/4F46E5/FFFFFF",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate reports the first setting that would leave a client unusable.
func (c Config) Validate() error {
	checks := []struct {
		name    string
		timeout time.Duration
		base    string
	}{
		{"catalog", c.Catalog.Timeout, c.Catalog.BaseURL},
		{"archive", c.Archive.Timeout, c.Archive.BaseURL},
		{"recommend", c.Recommend.Timeout, c.Recommend.Endpoint},
	}
	for _, ch := range checks {
		if ch.timeout <= 0 {
			return fmt.Errorf("%s: timeout must be positive, got %s", ch.name, ch.timeout)
		}
		if ch.base == "" {
			return fmt.Errorf("%s: endpoint URL is required", ch.name)
		}
	}
	if c.Catalog.Limit <= 0 || c.Archive.Limit <= 0 {
		return fmt.Errorf("search limits must be positive (catalog %d, archive %d)", c.Catalog.Limit, c.Archive.Limit)
	}
	if c.Search.EnhancedLimit <= 0 {
		return fmt.Errorf("search: enhanced_limit must be positive, got %d", c.Search.EnhancedLimit)
	}
	if c.Search.MinResults < 0 || c.Search.MaxBackfillTerms < 0 {
		return fmt.Errorf("search: min_results and max_backfill_terms must not be negative")
	}
	return nil
}
