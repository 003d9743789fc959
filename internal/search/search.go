// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search aggregates books from the catalog, the archive and the
// recommendation step into one deduplicated, recommendation-first result.
// SearchBooks never fails: sources are fail-open and the orchestration
// itself falls back to a plain two-source search if anything escapes it.
package search

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/book-finder/internal/logger"
	"github.com/pdiddy/book-finder/internal/metrics"
	"github.com/pdiddy/book-finder/pkg/types"
)

// BookSource searches one upstream. Implementations are fail-open: they
// log their own failures and return an empty slice.
type BookSource interface {
	Name() string
	Search(ctx context.Context, query string, limit int) []types.Book
}

// Recommender interprets a free-text query. Implementations return
// types.FallbackRecommendation on failure.
type Recommender interface {
	Recommend(ctx context.Context, query string) types.RecommendationResult
}

// Fallback kinds recorded in metrics.SearchFallbacks.
const (
	fallbackRecommendation = "recommendation"
	fallbackEnhanced       = "enhanced"
	fallbackBackfill       = "backfill"
	fallbackLastResort     = "last_resort"
)

// placeholderTextRunes bounds the title text embedded in placeholder covers.
const placeholderTextRunes = 20

// suggestionPattern splits "Title by Author, Author" at the first " by ".
var suggestionPattern = regexp.MustCompile(`(?i)^(.*?)\s+by\s+(.*)$`)

// Aggregator runs the search rounds over its sources.
type Aggregator struct {
	catalog     BookSource
	archive     BookSource
	recommender Recommender
	cfg         types.SearchConfig
}

// New returns an Aggregator. A nil recommender disables recommendations.
// Zero fields of cfg take their defaults.
func New(catalog, archive BookSource, recommender Recommender, cfg types.SearchConfig) *Aggregator {
	def := types.DefaultConfig().Search
	if cfg.EnhancedLimit <= 0 {
		cfg.EnhancedLimit = def.EnhancedLimit
	}
	if cfg.MinResults <= 0 {
		cfg.MinResults = def.MinResults
	}
	if cfg.MaxBackfillTerms <= 0 {
		cfg.MaxBackfillTerms = def.MaxBackfillTerms
	}
	if cfg.PlaceholderCoverURL == "" {
		cfg.PlaceholderCoverURL = def.PlaceholderCoverURL
	}
	return &Aggregator{catalog: catalog, archive: archive, recommender: recommender, cfg: cfg}
}

// SearchBooks runs the full search for query. When includeRecommendations
// is false the recommendation step is skipped and no enhanced query or
// backfill terms are used.
func (a *Aggregator) SearchBooks(ctx context.Context, query string, includeRecommendations bool) types.SearchResult {
	defer logger.Track(ctx, fmt.Sprintf("search %q", query))()

	res, err := a.run(ctx, query, includeRecommendations)
	if err != nil {
		metrics.SearchFallbacks.WithLabelValues(fallbackLastResort).Inc()
		logger.For(ctx).WithField("query", query).WithError(err).Error("search failed, running last-resort search")
		res = a.lastResort(ctx, query)
	}
	metrics.SearchResults.Observe(float64(res.TotalResults))
	logger.For(ctx).WithFields(logFields(res)).Info("search complete")
	return res
}

// run is the main orchestration. Panics are converted to errors.
func (a *Aggregator) run(ctx context.Context, query string, includeRecommendations bool) (res types.SearchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()

	useRecs := includeRecommendations && a.recommender != nil

	// Round 1: recommendation, catalog and archive on the raw query.
	var (
		rec                types.RecommendationResult
		catalog1, archive1 []types.Book
	)
	r1 := logger.Track(ctx, "round 1")
	g, gctx := errgroup.WithContext(ctx)
	if useRecs {
		goSafe(g, func() error {
			rec = a.recommender.Recommend(gctx, query)
			return nil
		})
	}
	goSafe(g, func() error {
		catalog1 = a.catalog.Search(gctx, query, 0)
		return nil
	})
	goSafe(g, func() error {
		archive1 = a.archive.Search(gctx, query, 0)
		return nil
	})
	err = g.Wait()
	r1()
	if err != nil {
		return types.SearchResult{}, fmt.Errorf("round 1: %w", err)
	}

	if useRecs && rec.Fallback {
		metrics.SearchFallbacks.WithLabelValues(fallbackRecommendation).Inc()
	}

	books := make([]types.Book, 0, len(rec.Suggestions)+len(catalog1)+len(archive1))
	for i, s := range rec.Suggestions {
		books = append(books, a.suggestionToBook(i, s, query))
	}
	books = append(books, catalog1...)
	books = append(books, archive1...)

	// Round 2: the enhanced query, when it says something new.
	enhanced := strings.TrimSpace(rec.EnhancedQuery)
	if useRecs && enhanced != "" && enhanced != query {
		done := logger.Track(ctx, fmt.Sprintf("round 2 %q", enhanced))
		more, err := a.searchPair(ctx, enhanced, a.cfg.EnhancedLimit)
		done()
		if err != nil {
			metrics.SearchFallbacks.WithLabelValues(fallbackEnhanced).Inc()
			logger.For(ctx).WithField("enhanced_query", enhanced).WithError(err).Warn("enhanced search failed, keeping round 1 results")
		} else {
			books = append(books, more...)
		}
	}

	// Backfill with alternative terms while real results are scarce.
	if useRecs && countNonRecommendations(books) < a.cfg.MinResults && len(rec.AlternativeTerms) > 0 {
		books = append(books, a.backfill(ctx, rec.AlternativeTerms)...)
	}

	books = partitionRecommendationsFirst(deduplicate(books))

	res = types.NewSearchResult(query, books)
	if useRecs && !rec.Fallback {
		res.EnhancedQuery = rec.EnhancedQuery
		res.AlternativeTerms = rec.AlternativeTerms
	}
	return res, nil
}

// backfill searches up to MaxBackfillTerms alternative terms in order.
// A term that fails is logged and skipped.
func (a *Aggregator) backfill(ctx context.Context, terms []string) []types.Book {
	if len(terms) > a.cfg.MaxBackfillTerms {
		terms = terms[:a.cfg.MaxBackfillTerms]
	}

	var books []types.Book
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		done := logger.Track(ctx, fmt.Sprintf("backfill %q", term))
		more, err := a.searchPair(ctx, term, a.cfg.EnhancedLimit)
		done()
		if err != nil {
			metrics.SearchFallbacks.WithLabelValues(fallbackBackfill).Inc()
			logger.For(ctx).WithField("term", term).WithError(err).Warn("backfill term failed")
			continue
		}
		books = append(books, more...)
	}
	return books
}

// searchPair runs catalog and archive concurrently for query and returns
// catalog results followed by archive results.
func (a *Aggregator) searchPair(ctx context.Context, query string, limit int) ([]types.Book, error) {
	var catalog, archive []types.Book
	g, gctx := errgroup.WithContext(ctx)
	goSafe(g, func() error {
		catalog = a.catalog.Search(gctx, query, limit)
		return nil
	})
	goSafe(g, func() error {
		archive = a.archive.Search(gctx, query, limit)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return append(catalog, archive...), nil
}

// lastResort searches catalog and archive on the raw query and dedups by
// title. The envelope carries no recommendation fields.
func (a *Aggregator) lastResort(ctx context.Context, query string) (res types.SearchResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.For(ctx).WithField("query", query).WithError(panicError(r)).Error("last-resort search failed")
			res = types.SearchResult{Books: []types.Book{}, Query: query}
		}
	}()

	books, err := a.searchPair(ctx, query, 0)
	if err != nil {
		logger.For(ctx).WithField("query", query).WithError(err).Error("last-resort search failed")
		books = nil
	}
	books = dedupByTitle(books)
	return types.SearchResult{Books: books, TotalResults: len(books), Query: query}
}

// suggestionToBook turns the index-th suggestion into a synthetic book.
func (a *Aggregator) suggestionToBook(index int, suggestion, query string) types.Book {
	title, authors := parseSuggestion(suggestion)
	b := types.Book{
		ID:               fmt.Sprintf("rec-%d", index),
		Title:            title,
		Author:           authors,
		Subjects:         []string{"Recommended for: " + query},
		Source:           types.SourceRecommendation,
		IsRecommendation: true,
	}
	b.Normalize()
	b.CoverURL = placeholderCover(a.cfg.PlaceholderCoverURL, b.Title)
	return b
}

// parseSuggestion splits "Title by Author[, Author...]" at the first
// case-insensitive "by". Text without the separator is all title with an
// unknown author.
func parseSuggestion(s string) (string, []string) {
	s = strings.TrimSpace(s)
	m := suggestionPattern.FindStringSubmatch(s)
	if m == nil {
		return s, []string{types.UnknownAuthor}
	}

	var authors []string
	for _, name := range strings.Split(m[2], ",") {
		if name = strings.TrimSpace(name); name != "" {
			authors = append(authors, name)
		}
	}
	if len(authors) == 0 {
		authors = []string{types.UnknownAuthor}
	}
	return strings.TrimSpace(m[1]), authors
}

// placeholderCover builds an image URL that renders the start of title.
func placeholderCover(base, title string) string {
	runes := []rune(title)
	if len(runes) > placeholderTextRunes {
		runes = runes[:placeholderTextRunes]
	}
	text := strings.ReplaceAll(url.QueryEscape(string(runes)), "+", "%20")
	return base + "?text=" + text
}

// deduplicate keeps every recommendation book and the first occurrence of
// each other title, compared case-insensitively.
func deduplicate(books []types.Book) []types.Book {
	seen := make(map[string]bool, len(books))
	out := make([]types.Book, 0, len(books))
	for _, b := range books {
		if b.IsRecommendation {
			out = append(out, b)
			continue
		}
		key := titleKey(b.Title)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, b)
	}
	return out
}

// dedupByTitle keeps the first occurrence of each title regardless of
// recommendation tagging.
func dedupByTitle(books []types.Book) []types.Book {
	seen := make(map[string]bool, len(books))
	out := make([]types.Book, 0, len(books))
	for _, b := range books {
		key := titleKey(b.Title)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, b)
	}
	return out
}

func titleKey(title string) string {
	return strings.ToLower(title)
}

// partitionRecommendationsFirst moves recommendation books ahead of the
// rest, keeping relative order within each group.
func partitionRecommendationsFirst(books []types.Book) []types.Book {
	out := make([]types.Book, 0, len(books))
	for _, b := range books {
		if b.IsRecommendation {
			out = append(out, b)
		}
	}
	for _, b := range books {
		if !b.IsRecommendation {
			out = append(out, b)
		}
	}
	return out
}

func countNonRecommendations(books []types.Book) int {
	n := 0
	for _, b := range books {
		if !b.IsRecommendation {
			n++
		}
	}
	return n
}

// goSafe runs fn on g, turning a panic into the group's error.
func goSafe(g *errgroup.Group, fn func() error) {
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
			}
		}()
		return fn()
	})
}

// PanicError is a recovered panic carried as an error.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func panicError(v any) error {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

// logFields returns the fields logged with a completed search.
func logFields(res types.SearchResult) logrus.Fields {
	f := logrus.Fields{
		"query": res.Query,
		"total": res.TotalResults,
	}
	if res.RecommendationCount != nil {
		f["recommendations"] = *res.RecommendationCount
	}
	if res.EnhancedQuery != "" {
		f["enhanced_query"] = res.EnhancedQuery
	}
	return f
}
