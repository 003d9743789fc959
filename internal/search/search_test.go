// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pdiddy/book-finder/internal/metrics"
	"github.com/pdiddy/book-finder/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- fakes ---

type call struct {
	query string
	limit int
}

// fakeSource answers from a fixed table keyed by query and records calls.
type fakeSource struct {
	name    string
	byQuery map[string][]types.Book
	panicOn map[string]bool
	onCall  func()

	mu    sync.Mutex
	calls []call
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Search(_ context.Context, query string, limit int) []types.Book {
	f.mu.Lock()
	f.calls = append(f.calls, call{query, limit})
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall()
	}
	if f.panicOn[query] {
		panic("source exploded on " + query)
	}
	out := append([]types.Book{}, f.byQuery[query]...)
	return out
}

func (f *fakeSource) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type fakeRecommender struct {
	result types.RecommendationResult
	panics bool
	onCall func()
	called atomic.Int32
}

func (f *fakeRecommender) Recommend(_ context.Context, _ string) types.RecommendationResult {
	f.called.Add(1)
	if f.onCall != nil {
		f.onCall()
	}
	if f.panics {
		panic("recommender exploded")
	}
	return f.result
}

func book(src types.Source, title string) types.Book {
	b := types.Book{ID: string(src) + ":" + title, Title: title, Author: []string{"A. Author"}, Source: src}
	b.Normalize()
	return b
}

func titles(books []types.Book) []string {
	out := make([]string, len(books))
	for i, b := range books {
		out[i] = b.Title
	}
	return out
}

func testSearchCfg() types.SearchConfig {
	return types.SearchConfig{
		EnhancedLimit:       10,
		MinResults:          5,
		MaxBackfillTerms:    2,
		PlaceholderCoverURL: "https://img.example/200x300",
	}
}

func assertEnvelopeInvariants(t *testing.T, res types.SearchResult) {
	t.Helper()
	assert.Equal(t, len(res.Books), res.TotalResults)
	recs := 0
	seenOther := false
	for _, b := range res.Books {
		if b.IsRecommendation {
			recs++
			assert.Equal(t, types.SourceRecommendation, b.Source)
			assert.False(t, seenOther, "recommendation %q after a non-recommendation book", b.Title)
		} else {
			seenOther = true
		}
	}
	if res.RecommendationCount != nil {
		assert.Equal(t, recs, *res.RecommendationCount)
	}
}

// --- SearchBooks ---

func TestSearchBooksWithoutRecommendations(t *testing.T) {
	catalog := &fakeSource{name: "catalog", byQuery: map[string][]types.Book{
		"dragons": {book(types.SourceCatalog, "Here Be Dragons"), book(types.SourceCatalog, "Dragonflight")},
	}}
	archive := &fakeSource{name: "archive", byQuery: map[string][]types.Book{
		"dragons": {book(types.SourceArchive, "The Book of Dragons")},
	}}
	rec := &fakeRecommender{}

	res := New(catalog, archive, rec, testSearchCfg()).SearchBooks(context.Background(), "dragons", false)

	assert.Len(t, res.Books, 3)
	assert.Equal(t, 3, res.TotalResults)
	require.NotNil(t, res.RecommendationCount)
	assert.Equal(t, 0, *res.RecommendationCount)
	assert.Empty(t, res.EnhancedQuery)
	assert.Empty(t, res.AlternativeTerms)
	assert.Equal(t, "dragons", res.Query)
	assert.Zero(t, rec.called.Load())
	assertEnvelopeInvariants(t, res)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "enhancedQuery")
	assert.Contains(t, string(raw), `"recommendationCount":0`)
}

func TestSearchBooksFullFlow(t *testing.T) {
	catalog := &fakeSource{name: "catalog", byQuery: map[string][]types.Book{
		"dragons":        {book(types.SourceCatalog, "Alpha"), book(types.SourceCatalog, "Beta")},
		"dragon fantasy": {book(types.SourceCatalog, "Gamma"), book(types.SourceCatalog, "ALPHA")},
	}}
	archive := &fakeSource{name: "archive", byQuery: map[string][]types.Book{
		"dragons":        {book(types.SourceArchive, "Delta")},
		"dragon fantasy": {book(types.SourceArchive, "beta")},
	}}
	rec := &fakeRecommender{result: types.RecommendationResult{
		EnhancedQuery:    "dragon fantasy",
		Suggestions:      []string{"Eragon by Christopher Paolini", "Some generic wisdom"},
		AlternativeTerms: []string{"wyrms", "drakes"},
	}}

	res := New(catalog, archive, rec, testSearchCfg()).SearchBooks(context.Background(), "dragons", true)

	want := []string{"Eragon", "Some generic wisdom", "Alpha", "Beta", "Delta", "Gamma"}
	if diff := cmp.Diff(want, titles(res.Books)); diff != "" {
		t.Errorf("titles mismatch (-want +got):\n%s", diff)
	}
	require.NotNil(t, res.RecommendationCount)
	assert.Equal(t, 2, *res.RecommendationCount)
	assert.Equal(t, "dragon fantasy", res.EnhancedQuery)
	assert.Equal(t, []string{"wyrms", "drakes"}, res.AlternativeTerms)
	assertEnvelopeInvariants(t, res)

	// Six non-recommendation books accumulated before dedup, so no backfill.
	assert.ElementsMatch(t, []call{{"dragons", 0}, {"dragon fantasy", 10}}, catalog.Calls())
	assert.ElementsMatch(t, []call{{"dragons", 0}, {"dragon fantasy", 10}}, archive.Calls())

	eragon := res.Books[0]
	assert.Equal(t, "rec-0", eragon.ID)
	assert.Equal(t, []string{"Christopher Paolini"}, eragon.Author)
	assert.Equal(t, []string{"Recommended for: dragons"}, eragon.Subjects)
	assert.Equal(t, "https://img.example/200x300?text=Eragon", eragon.CoverURL)
	assert.True(t, eragon.IsRecommendation)
	assert.Equal(t, []string{types.UnknownAuthor}, res.Books[1].Author)
	assert.Equal(t, "rec-1", res.Books[1].ID)
}

func TestSearchBooksSkipsRoundTwoForSameQuery(t *testing.T) {
	catalog := &fakeSource{name: "catalog", byQuery: map[string][]types.Book{}}
	archive := &fakeSource{name: "archive", byQuery: map[string][]types.Book{}}
	for i := range 5 {
		catalog.byQuery["dune"] = append(catalog.byQuery["dune"], book(types.SourceCatalog, fmt.Sprintf("Dune %d", i)))
	}
	rec := &fakeRecommender{result: types.RecommendationResult{
		EnhancedQuery:    " dune ",
		Suggestions:      []string{},
		AlternativeTerms: []string{"arrakis"},
	}}

	res := New(catalog, archive, rec, testSearchCfg()).SearchBooks(context.Background(), "dune", true)

	assert.Equal(t, []call{{"dune", 0}}, catalog.Calls())
	assert.Len(t, res.Books, 5)
}

func TestSearchBooksBackfill(t *testing.T) {
	catalog := &fakeSource{name: "catalog", byQuery: map[string][]types.Book{
		"sad":   {book(types.SourceCatalog, "Only One")},
		"grief": {book(types.SourceCatalog, "Grief Works"), book(types.SourceCatalog, "only one")},
		"hope":  {book(types.SourceCatalog, "Hope Again")},
	}}
	archive := &fakeSource{name: "archive", byQuery: map[string][]types.Book{
		"grief": {book(types.SourceArchive, "A Grief Observed")},
	}}
	rec := &fakeRecommender{result: types.RecommendationResult{
		EnhancedQuery:    "sad",
		Suggestions:      []string{"Man's Search for Meaning by Viktor Frankl"},
		AlternativeTerms: []string{"grief", "", "hope", "loss"},
	}}

	res := New(catalog, archive, rec, testSearchCfg()).SearchBooks(context.Background(), "sad", true)

	want := []string{"Man's Search for Meaning", "Only One", "Grief Works", "A Grief Observed"}
	if diff := cmp.Diff(want, titles(res.Books)); diff != "" {
		t.Errorf("titles mismatch (-want +got):\n%s", diff)
	}
	// Only the first two terms are considered; the blank one is skipped.
	assert.ElementsMatch(t, []call{{"sad", 0}, {"grief", 10}}, catalog.Calls())
	assertEnvelopeInvariants(t, res)
}

func TestSearchBooksBackfillTermFailureIsolated(t *testing.T) {
	catalog := &fakeSource{
		name: "catalog",
		byQuery: map[string][]types.Book{
			"second": {book(types.SourceCatalog, "From Second")},
		},
		panicOn: map[string]bool{"first": true},
	}
	archive := &fakeSource{name: "archive", byQuery: map[string][]types.Book{
		"first": {book(types.SourceArchive, "Lost With First")},
	}}
	rec := &fakeRecommender{result: types.RecommendationResult{
		EnhancedQuery:    "q",
		Suggestions:      []string{},
		AlternativeTerms: []string{"first", "second"},
	}}

	res := New(catalog, archive, rec, testSearchCfg()).SearchBooks(context.Background(), "q", true)

	assert.Equal(t, []string{"From Second"}, titles(res.Books))
	assert.Equal(t, "q", res.EnhancedQuery, "normal envelope, not last resort")
	require.NotNil(t, res.RecommendationCount)
}

func TestSearchBooksEnhancedRoundFailureKeepsRoundOne(t *testing.T) {
	catalog := &fakeSource{
		name: "catalog",
		byQuery: map[string][]types.Book{
			"dragons": {book(types.SourceCatalog, "Alpha")},
		},
		panicOn: map[string]bool{"dragon fantasy": true},
	}
	archive := &fakeSource{name: "archive", byQuery: map[string][]types.Book{
		"dragon fantasy": {book(types.SourceArchive, "Lost With Round Two")},
	}}
	rec := &fakeRecommender{result: types.RecommendationResult{
		EnhancedQuery:    "dragon fantasy",
		Suggestions:      []string{"Eragon by Christopher Paolini"},
		AlternativeTerms: []string{},
	}}
	enhanced := metrics.SearchFallbacks.WithLabelValues(fallbackEnhanced)
	lastResort := metrics.SearchFallbacks.WithLabelValues(fallbackLastResort)
	enhancedBefore := testutil.ToFloat64(enhanced)
	lastResortBefore := testutil.ToFloat64(lastResort)

	res := New(catalog, archive, rec, testSearchCfg()).SearchBooks(context.Background(), "dragons", true)

	assert.Equal(t, []string{"Eragon", "Alpha"}, titles(res.Books))
	require.NotNil(t, res.RecommendationCount)
	assert.Equal(t, 1, *res.RecommendationCount)
	assert.Equal(t, "dragon fantasy", res.EnhancedQuery)
	assert.Equal(t, 1.0, testutil.ToFloat64(enhanced)-enhancedBefore)
	assert.Equal(t, 0.0, testutil.ToFloat64(lastResort)-lastResortBefore)
}

func TestSearchBooksRecommendationFallback(t *testing.T) {
	catalog := &fakeSource{name: "catalog", byQuery: map[string][]types.Book{
		"lost": {book(types.SourceCatalog, "Lost Horizon")},
	}}
	archive := &fakeSource{name: "archive", byQuery: map[string][]types.Book{}}
	rec := &fakeRecommender{result: types.FallbackRecommendation("lost")}

	res := New(catalog, archive, rec, testSearchCfg()).SearchBooks(context.Background(), "lost", true)

	assert.Empty(t, res.EnhancedQuery)
	assert.Empty(t, res.AlternativeTerms)
	require.NotNil(t, res.RecommendationCount)
	assert.Zero(t, *res.RecommendationCount)
	assert.Equal(t, []string{"Lost Horizon"}, titles(res.Books))
	// The fallback's single term is the query itself and still drives backfill.
	assert.ElementsMatch(t, []call{{"lost", 0}, {"lost", 10}}, catalog.Calls())
}

func TestSearchBooksLastResort(t *testing.T) {
	catalog := &fakeSource{name: "catalog", byQuery: map[string][]types.Book{
		"dragons": {book(types.SourceCatalog, "Dragon Rider"), book(types.SourceCatalog, "DRAGON RIDER")},
	}}
	archive := &fakeSource{name: "archive", byQuery: map[string][]types.Book{
		"dragons": {book(types.SourceArchive, "dragon rider"), book(types.SourceArchive, "Dragonsong")},
	}}
	rec := &fakeRecommender{panics: true}

	res := New(catalog, archive, rec, testSearchCfg()).SearchBooks(context.Background(), "dragons", true)

	assert.Equal(t, []string{"Dragon Rider", "Dragonsong"}, titles(res.Books))
	assert.Equal(t, 2, res.TotalResults)
	assert.Nil(t, res.RecommendationCount)
	assert.Empty(t, res.EnhancedQuery)
	assert.Empty(t, res.AlternativeTerms)
	assert.Equal(t, "dragons", res.Query)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "recommendationCount")
}

func TestSearchBooksNeverPanics(t *testing.T) {
	catalog := &fakeSource{name: "catalog", panicOn: map[string]bool{"x": true}}
	archive := &fakeSource{name: "archive"}

	var res types.SearchResult
	require.NotPanics(t, func() {
		res = New(catalog, archive, nil, types.SearchConfig{}).SearchBooks(context.Background(), "x", true)
	})
	assert.NotNil(t, res.Books)
	assert.Empty(t, res.Books)
	assert.Zero(t, res.TotalResults)
	assert.Equal(t, "x", res.Query)
}

func TestSearchBooksRoundOneConcurrent(t *testing.T) {
	var started sync.WaitGroup
	started.Add(3)
	allStarted := make(chan struct{})
	go func() {
		started.Wait()
		close(allStarted)
	}()

	var timedOut atomic.Bool
	barrier := func() {
		started.Done()
		select {
		case <-allStarted:
		case <-time.After(2 * time.Second):
			timedOut.Store(true)
		}
	}

	catalog := &fakeSource{name: "catalog", onCall: barrier}
	archive := &fakeSource{name: "archive", onCall: barrier}
	rec := &fakeRecommender{result: types.FallbackRecommendation("q"), onCall: barrier}

	// MinResults is 1 so the fallback term does not trigger a backfill that
	// would call the barrier a fourth time.
	cfg := testSearchCfg()
	catalog.byQuery = map[string][]types.Book{"q": {book(types.SourceCatalog, "One")}}
	cfg.MinResults = 1
	New(catalog, archive, rec, cfg).SearchBooks(context.Background(), "q", true)

	assert.False(t, timedOut.Load(), "round 1 calls did not overlap")
}

func TestNewAppliesDefaults(t *testing.T) {
	a := New(&fakeSource{}, &fakeSource{}, nil, types.SearchConfig{})
	def := types.DefaultConfig().Search
	assert.Equal(t, def, a.cfg)
}

// --- helpers ---

func TestParseSuggestion(t *testing.T) {
	tests := []struct {
		in      string
		title   string
		authors []string
	}{
		{"The Alchemist by Paulo Coelho", "The Alchemist", []string{"Paulo Coelho"}},
		{"Some generic wisdom", "Some generic wisdom", []string{types.UnknownAuthor}},
		{"Good Omens by Terry Pratchett, Neil Gaiman", "Good Omens", []string{"Terry Pratchett", "Neil Gaiman"}},
		{"Meditations BY Marcus Aurelius", "Meditations", []string{"Marcus Aurelius"}},
		{"Stand by Me by Stephen King", "Stand", []string{"Me by Stephen King"}},
		{"Nearby Places", "Nearby Places", []string{types.UnknownAuthor}},
		{"Untitled by ,", "Untitled", []string{types.UnknownAuthor}},
		{"  Walden by Henry David Thoreau  ", "Walden", []string{"Henry David Thoreau"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			title, authors := parseSuggestion(tt.in)
			assert.Equal(t, tt.title, title)
			assert.Equal(t, tt.authors, authors)
		})
	}
}

func TestSuggestionToBookPlaceholderCover(t *testing.T) {
	a := New(&fakeSource{}, &fakeSource{}, nil, testSearchCfg())

	b := a.suggestionToBook(3, "The Hitchhiker's Guide to the Galaxy by Douglas Adams", "space")
	assert.Equal(t, "rec-3", b.ID)
	assert.Equal(t, "https://img.example/200x300?text=The%20Hitchhiker%27s%20Gui", b.CoverURL)

	b = a.suggestionToBook(0, "Le Petit Prince & moi", "q")
	assert.Equal(t, "https://img.example/200x300?text=Le%20Petit%20Prince%20%26%20mo", b.CoverURL)

	b = a.suggestionToBook(0, "by", "q")
	assert.Equal(t, "by", b.Title)
}

func TestDeduplicate(t *testing.T) {
	rec := book(types.SourceRecommendation, "Dune")
	rec.IsRecommendation = true

	in := []types.Book{
		rec,
		book(types.SourceCatalog, "Dune"),
		book(types.SourceArchive, "DUNE"),
		rec,
		book(types.SourceArchive, "Emma"),
		book(types.SourceCatalog, "emma"),
	}
	got := deduplicate(in)

	require.Len(t, got, 4)
	assert.True(t, got[0].IsRecommendation)
	assert.Equal(t, types.SourceCatalog, got[1].Source, "first occurrence wins")
	assert.True(t, got[2].IsRecommendation, "recommendations are never dropped")
	assert.Equal(t, types.SourceArchive, got[3].Source)
}

func TestPartitionRecommendationsFirst(t *testing.T) {
	mk := func(title string, rec bool) types.Book {
		return types.Book{Title: title, IsRecommendation: rec}
	}
	in := []types.Book{mk("a", false), mk("R1", true), mk("b", false), mk("R2", true), mk("c", false)}

	got := partitionRecommendationsFirst(in)
	assert.Equal(t, []string{"R1", "R2", "a", "b", "c"}, titles(got))
}

// --- formatting ---

func sampleResult() types.SearchResult {
	rec := book(types.SourceRecommendation, "The Alchemist")
	rec.IsRecommendation = true
	cat := book(types.SourceCatalog, "Siddhartha")
	cat.PublishYear = 1922
	arc := book(types.SourceArchive, "Walden")
	arc.DownloadURL = "https://archive.example/download/walden/walden.epub"

	res := types.NewSearchResult("meaning", []types.Book{rec, cat, arc})
	res.EnhancedQuery = "meaning of life fiction"
	res.AlternativeTerms = []string{"purpose", "journey"}
	return res
}

func TestFormatTable(t *testing.T) {
	var buf bytes.Buffer
	FormatTable(sampleResult(), &buf)
	out := buf.String()

	assert.Contains(t, out, "Enhanced query: meaning of life fiction")
	assert.Contains(t, out, "purpose, journey")
	assert.Contains(t, out, "* recommendation")
	assert.Contains(t, out, "1922")
	assert.Contains(t, out, "walden.epub")
	assert.Contains(t, out, "3 books (1 recommended)")
}

func TestFormatTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	FormatTable(types.NewSearchResult("nothing", nil), &buf)
	assert.Contains(t, buf.String(), "No books found.")
}

func TestFormatJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatJSON(sampleResult(), &buf))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, float64(3), got["totalResults"])
	assert.Equal(t, float64(1), got["recommendationCount"])
	assert.Equal(t, "meaning of life fiction", got["enhancedQuery"])
	books := got["books"].([]any)
	first := books[0].(map[string]any)
	assert.Equal(t, true, first["isRecommendation"])
	assert.Equal(t, "recommendation", first["source"])
}

func TestFormatYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatYAML(sampleResult(), &buf))
	out := buf.String()

	assert.Contains(t, out, "total_results: 3")
	assert.Contains(t, out, "recommendation_count: 1")
	assert.Contains(t, out, "is_recommendation: true")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ééééééé...", truncate("éééééééééééé", 10))
}

// --- query files ---

func TestQueryFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meaning.yaml")
	res := sampleResult()

	require.NoError(t, WriteQueryFile(path, true, res))
	qf, err := ReadQueryFile(path)
	require.NoError(t, err)

	assert.Equal(t, "meaning", qf.Query.Text)
	assert.True(t, qf.Query.IncludeRecommendations)
	assert.Equal(t, 3, qf.Summary.Total)
	assert.Equal(t, 1, qf.Summary.Recommendations)
	assert.False(t, qf.Summary.Timestamp.IsZero())
	if diff := cmp.Diff(res, qf.Result, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestReadQueryFileMissing(t *testing.T) {
	_, err := ReadQueryFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
