// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/pdiddy/book-finder/internal/archive"
	"github.com/pdiddy/book-finder/internal/catalog"
	"github.com/pdiddy/book-finder/internal/recommend"
	"github.com/pdiddy/book-finder/internal/search"
	"github.com/pdiddy/book-finder/internal/secrets"
	"github.com/pdiddy/book-finder/pkg/types"
)

// setConfigDefaults registers every configuration key with its default so
// that config files and BOOK_FINDER_* environment variables can override it.
func setConfigDefaults(v *viper.Viper) {
	d := types.DefaultConfig()

	setHTTPDefaults(v, "catalog", d.Catalog.HTTPConfig)
	v.SetDefault("catalog.base_url", d.Catalog.BaseURL)
	v.SetDefault("catalog.cover_base_url", d.Catalog.CoverBaseURL)
	v.SetDefault("catalog.limit", d.Catalog.Limit)

	setHTTPDefaults(v, "archive", d.Archive.HTTPConfig)
	v.SetDefault("archive.base_url", d.Archive.BaseURL)
	v.SetDefault("archive.limit", d.Archive.Limit)
	v.SetDefault("archive.metadata_concurrency", d.Archive.MetadataConcurrency)

	setHTTPDefaults(v, "recommend", d.Recommend.HTTPConfig)
	v.SetDefault("recommend.endpoint", d.Recommend.Endpoint)
	v.SetDefault("recommend.api_key", "")
	v.SetDefault("recommend.model", d.Recommend.Model)
	v.SetDefault("recommend.temperature", d.Recommend.Temperature)
	v.SetDefault("recommend.max_tokens", d.Recommend.MaxTokens)
	v.SetDefault("recommend.site_url", d.Recommend.SiteURL)
	v.SetDefault("recommend.site_name", d.Recommend.SiteName)

	v.SetDefault("search.enhanced_limit", d.Search.EnhancedLimit)
	v.SetDefault("search.min_results", d.Search.MinResults)
	v.SetDefault("search.max_backfill_terms", d.Search.MaxBackfillTerms)
	v.SetDefault("search.placeholder_cover_url", d.Search.PlaceholderCoverURL)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

func setHTTPDefaults(v *viper.Viper, prefix string, h types.HTTPConfig) {
	v.SetDefault(prefix+".timeout", h.Timeout)
	v.SetDefault(prefix+".user_agent", h.UserAgent)
	v.SetDefault(prefix+".max_retries", h.MaxRetries)
	v.SetDefault(prefix+".requests_per_second", h.RequestsPerSecond)
}

func httpConfig(v *viper.Viper, prefix string) types.HTTPConfig {
	return types.HTTPConfig{
		Timeout:           v.GetDuration(prefix + ".timeout"),
		UserAgent:         v.GetString(prefix + ".user_agent"),
		MaxRetries:        v.GetInt(prefix + ".max_retries"),
		RequestsPerSecond: v.GetInt(prefix + ".requests_per_second"),
	}
}

// loadConfig assembles a validated Config from v. The recommendation API
// key comes from configuration or the environment first and falls back to
// the openrouter-api-key secret file.
func loadConfig(v *viper.Viper) (types.Config, error) {
	cfg := types.Config{
		Catalog: types.CatalogConfig{
			HTTPConfig:   httpConfig(v, "catalog"),
			BaseURL:      v.GetString("catalog.base_url"),
			CoverBaseURL: v.GetString("catalog.cover_base_url"),
			Limit:        v.GetInt("catalog.limit"),
		},
		Archive: types.ArchiveConfig{
			HTTPConfig:          httpConfig(v, "archive"),
			BaseURL:             v.GetString("archive.base_url"),
			Limit:               v.GetInt("archive.limit"),
			MetadataConcurrency: v.GetInt("archive.metadata_concurrency"),
		},
		Recommend: types.RecommendConfig{
			HTTPConfig:  httpConfig(v, "recommend"),
			Endpoint:    v.GetString("recommend.endpoint"),
			APIKey:      secretDefault(secrets.OpenRouterAPIKey, v.GetString("recommend.api_key")),
			Model:       v.GetString("recommend.model"),
			Temperature: v.GetFloat64("recommend.temperature"),
			MaxTokens:   v.GetInt("recommend.max_tokens"),
			SiteURL:     v.GetString("recommend.site_url"),
			SiteName:    v.GetString("recommend.site_name"),
		},
		Search: types.SearchConfig{
			EnhancedLimit:       v.GetInt("search.enhanced_limit"),
			MinResults:          v.GetInt("search.min_results"),
			MaxBackfillTerms:    v.GetInt("search.max_backfill_terms"),
			PlaceholderCoverURL: v.GetString("search.placeholder_cover_url"),
		},
		Server: types.ServerConfig{
			Addr:           v.GetString("server.addr"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
		},
		Log: types.LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newAggregator wires the three clients into an Aggregator.
func newAggregator(cfg types.Config) *search.Aggregator {
	return search.New(
		catalog.New(cfg.Catalog),
		archive.New(cfg.Archive),
		recommend.New(cfg.Recommend),
		cfg.Search,
	)
}
