// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for book-finder.
// Book is the common entity every source maps into; SearchResult is the
// envelope handed to callers.
package types

import "strings"

// Source identifies which component produced a Book.
type Source string

const (
	SourceCatalog        Source = "catalog"
	SourceArchive        Source = "archive"
	SourceRecommendation Source = "recommendation"
)

// Placeholder values substituted when an upstream omits title or authors.
const (
	UnknownTitle  = "Unknown Title"
	UnknownAuthor = "Unknown Author"
)

// MaxSubjects caps the subjects kept per Book at ingestion.
const MaxSubjects = 5

// Book is a single search hit. Identifiers are scoped to their Source and
// are not unique across sources.
type Book struct {
	// ID is the source-scoped identifier (catalog key, archive identifier,
	// or rec-N for synthetic books).
	ID string `json:"id" yaml:"id"`

	// Title is never empty; see Normalize.
	Title string `json:"title" yaml:"title"`

	// Author lists authors in source order and is never empty.
	Author []string `json:"author" yaml:"author"`

	ISBN string `json:"isbn,omitempty" yaml:"isbn,omitempty"`

	// PublishYear is zero when the source did not report a usable year.
	PublishYear int `json:"publishYear,omitempty" yaml:"publish_year,omitempty"`

	Subjects []string `json:"subjects" yaml:"subjects"`

	CoverURL string `json:"coverUrl,omitempty" yaml:"cover_url,omitempty"`

	// DownloadURL is set only when a retrievable file was resolved.
	DownloadURL string `json:"downloadUrl,omitempty" yaml:"download_url,omitempty"`

	Source Source `json:"source" yaml:"source"`

	// IsRecommendation marks books synthesized from recommendation text.
	IsRecommendation bool `json:"isRecommendation" yaml:"is_recommendation"`
}

// Normalize applies the placeholder and truncation rules shared by every
// source: blank titles become UnknownTitle, an empty author list becomes
// {UnknownAuthor}, blank author and subject entries are dropped, and subjects
// are capped at MaxSubjects.
func (b *Book) Normalize() {
	b.Title = strings.TrimSpace(b.Title)
	if b.Title == "" {
		b.Title = UnknownTitle
	}

	authors := b.Author[:0:0]
	for _, a := range b.Author {
		if a = strings.TrimSpace(a); a != "" {
			authors = append(authors, a)
		}
	}
	if len(authors) == 0 {
		authors = []string{UnknownAuthor}
	}
	b.Author = authors

	subjects := make([]string, 0, min(len(b.Subjects), MaxSubjects))
	for _, s := range b.Subjects {
		if len(subjects) == MaxSubjects {
			break
		}
		if s = strings.TrimSpace(s); s != "" {
			subjects = append(subjects, s)
		}
	}
	b.Subjects = subjects
}

// RecommendationResult is the structured reply of the recommendation step.
type RecommendationResult struct {
	// EnhancedQuery may equal the original query.
	EnhancedQuery string `json:"enhancedQuery" yaml:"enhanced_query"`

	// Suggestions are free-text "Title by Author" strings.
	Suggestions []string `json:"recommendations" yaml:"suggestions"`

	// AlternativeTerms are short follow-up queries.
	AlternativeTerms []string `json:"searchTerms" yaml:"alternative_terms"`

	// Fallback is true when the result was built locally after the
	// recommendation call failed.
	Fallback bool `json:"-" yaml:"-"`
}

// FallbackRecommendation is the identity reply used whenever the
// recommendation step cannot produce a usable answer.
func FallbackRecommendation(query string) RecommendationResult {
	return RecommendationResult{
		EnhancedQuery:    query,
		Suggestions:      []string{},
		AlternativeTerms: []string{query},
		Fallback:         true,
	}
}

// SearchResult is the envelope returned by the aggregator.
type SearchResult struct {
	Books []Book `json:"books" yaml:"books"`

	// TotalResults always equals len(Books).
	TotalResults int `json:"totalResults" yaml:"total_results"`

	// Query is the caller's input, unmodified.
	Query string `json:"query" yaml:"query"`

	EnhancedQuery    string   `json:"enhancedQuery,omitempty" yaml:"enhanced_query,omitempty"`
	AlternativeTerms []string `json:"alternativeTerms,omitempty" yaml:"alternative_terms,omitempty"`

	// RecommendationCount is nil only in the reduced last-resort envelope.
	RecommendationCount *int `json:"recommendationCount,omitempty" yaml:"recommendation_count,omitempty"`
}

// NewSearchResult builds an envelope whose counts are derived from books.
func NewSearchResult(query string, books []Book) SearchResult {
	if books == nil {
		books = []Book{}
	}
	recs := 0
	for _, b := range books {
		if b.IsRecommendation {
			recs++
		}
	}
	return SearchResult{
		Books:               books,
		TotalResults:        len(books),
		Query:               query,
		RecommendationCount: &recs,
	}
}
