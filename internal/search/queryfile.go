// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/book-finder/pkg/types"
)

// QueryFile is the on-disk export of one search: the request that was made
// and the envelope it produced. It lets a result be re-rendered later
// without re-querying the upstreams.
type QueryFile struct {
	Query   QueryParams        `yaml:"query"`
	Result  types.SearchResult `yaml:"result"`
	Summary QuerySummary       `yaml:"summary"`
}

// QueryParams stores the request in a serializable form.
type QueryParams struct {
	Text                   string `yaml:"text"`
	IncludeRecommendations bool   `yaml:"include_recommendations"`
}

// QuerySummary stores result statistics and a timestamp.
type QuerySummary struct {
	Total           int       `yaml:"total"`
	Recommendations int       `yaml:"recommendations"`
	Timestamp       time.Time `yaml:"timestamp"`
}

// WriteQueryFile saves a search request and its result to a YAML file.
func WriteQueryFile(path string, includeRecommendations bool, res types.SearchResult) error {
	qf := QueryFile{
		Query: QueryParams{
			Text:                   res.Query,
			IncludeRecommendations: includeRecommendations,
		},
		Result: res,
		Summary: QuerySummary{
			Total:     res.TotalResults,
			Timestamp: time.Now().UTC(),
		},
	}
	if res.RecommendationCount != nil {
		qf.Summary.Recommendations = *res.RecommendationCount
	}

	data, err := yaml.Marshal(&qf)
	if err != nil {
		return fmt.Errorf("marshaling query file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadQueryFile loads a previously saved query file from disk.
func ReadQueryFile(path string) (*QueryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading query file: %w", err)
	}
	var qf QueryFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return nil, fmt.Errorf("parsing query file: %w", err)
	}
	if qf.Result.Books == nil {
		qf.Result.Books = []types.Book{}
	}
	return &qf, nil
}
