// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package archive queries the full-text archive (Internet Archive advanced
// search) and resolves a downloadable EPUB and cover image per result
// through one metadata lookup each. Lookups run concurrently; a failed
// lookup leaves that book without URLs but never drops it.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/book-finder/internal/httputil"
	"github.com/pdiddy/book-finder/internal/logger"
	"github.com/pdiddy/book-finder/internal/metrics"
	"github.com/pdiddy/book-finder/internal/schema"
	"github.com/pdiddy/book-finder/pkg/types"
)

const (
	// searchFilter restricts results to text items that carry an EPUB.
	searchFilter = " AND mediatype:texts AND format:epub"
	searchFields = "identifier,title,creator,subject,year"

	// downloadExt is the file extension treated as downloadable.
	downloadExt = ".epub"

	defaultLimit = 20

	metadataSource = "archive_metadata"
)

// Client searches the archive.
type Client struct {
	fetcher     *httputil.Fetcher
	baseURL     string
	limit       int
	concurrency int
}

// New returns a Client configured from cfg.
func New(cfg types.ArchiveConfig) *Client {
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Client{
		fetcher:     httputil.NewFetcher(string(types.SourceArchive), cfg.HTTPConfig),
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		limit:       limit,
		concurrency: cfg.MetadataConcurrency,
	}
}

// Name returns the source identifier.
func (c *Client) Name() string { return string(types.SourceArchive) }

// Search returns up to limit books for query, each enriched by a metadata
// lookup. A non-positive limit uses the configured default. It never
// fails; errors are logged and produce an empty slice.
func (c *Client) Search(ctx context.Context, query string, limit int) []types.Book {
	if strings.TrimSpace(query) == "" {
		return []types.Book{}
	}
	if limit <= 0 {
		limit = c.limit
	}

	start := time.Now()
	books, err := c.search(ctx, query, limit)
	metrics.ObserveSource(c.Name(), start, err)
	if err != nil {
		logger.For(ctx).WithFields(logrus.Fields{
			"source": c.Name(),
			"query":  query,
		}).WithError(err).Warn("archive search failed")
		return []types.Book{}
	}

	c.resolveAll(ctx, books)
	return books
}

func (c *Client) search(ctx context.Context, query string, limit int) ([]types.Book, error) {
	params := url.Values{
		"q":      {query + searchFilter},
		"fl":     {searchFields},
		"output": {"json"},
		"rows":   {strconv.Itoa(limit)},
	}
	reqURL := c.baseURL + "/advancedsearch.php?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	body, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("archive search request: %w", err)
	}

	if err := schema.Validate(schema.ArchiveSearch, body); err != nil {
		return nil, err
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("parsing archive search response: %w", err)
	}

	books := make([]types.Book, 0, len(sr.Response.Docs))
	for _, doc := range sr.Response.Docs {
		books = append(books, toBook(doc))
	}
	return books, nil
}

// resolveAll runs one metadata lookup per identified book concurrently and
// fills in DownloadURL and CoverURL. Each goroutine owns books[i] exclusively.
func (c *Client) resolveAll(ctx context.Context, books []types.Book) {
	defer logger.Track(ctx, fmt.Sprintf("archive metadata for %d items", len(books)))()

	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i := range books {
		// Without an identifier there is nothing to look up or link to.
		if books[i].ID == "" {
			continue
		}
		g.Go(func() error {
			start := time.Now()
			assets, err := c.lookup(ctx, books[i].ID)
			metrics.ObserveSource(metadataSource, start, err)
			if err != nil {
				logger.For(ctx).WithFields(logrus.Fields{
					"source":     metadataSource,
					"identifier": books[i].ID,
				}).WithError(err).Warn("archive metadata lookup failed")
				return nil
			}
			books[i].DownloadURL = assets.downloadURL
			books[i].CoverURL = assets.coverURL
			return nil
		})
	}
	_ = g.Wait()
}

// itemAssets holds what a metadata lookup resolves for one item.
type itemAssets struct {
	downloadURL string
	coverURL    string
}

// lookup fetches item metadata. The cover URL depends only on the
// identifier; the download URL points at the first EPUB file listed.
func (c *Client) lookup(ctx context.Context, identifier string) (itemAssets, error) {
	reqURL := c.baseURL + "/metadata/" + url.PathEscape(identifier)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return itemAssets{}, fmt.Errorf("creating request: %w", err)
	}

	body, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		return itemAssets{}, fmt.Errorf("archive metadata request: %w", err)
	}
	if err := schema.Validate(schema.ArchiveMetadata, body); err != nil {
		return itemAssets{}, err
	}

	var meta metadataResponse
	if err := json.Unmarshal(body, &meta); err != nil {
		return itemAssets{}, fmt.Errorf("parsing archive metadata: %w", err)
	}

	assets := itemAssets{
		coverURL: c.baseURL + "/services/img/" + url.PathEscape(identifier),
	}
	if name := firstDownloadable(meta.Files); name != "" {
		assets.downloadURL = c.baseURL + "/download/" + url.PathEscape(identifier) + "/" + escapeSegments(name)
	}
	return assets, nil
}

// firstDownloadable returns the first file name ending in downloadExt,
// compared case-insensitively.
func firstDownloadable(files []metadataFile) string {
	for _, f := range files {
		if strings.HasSuffix(strings.ToLower(f.Name), downloadExt) {
			return f.Name
		}
	}
	return ""
}

// escapeSegments escapes each path segment of a file name, keeping the
// slashes of files stored in item subdirectories.
func escapeSegments(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func toBook(doc searchDoc) types.Book {
	b := types.Book{
		ID:          doc.Identifier,
		Author:      doc.Creator,
		Subjects:    doc.Subject,
		PublishYear: int(doc.Year),
		Source:      types.SourceArchive,
	}
	if len(doc.Title) > 0 {
		b.Title = doc.Title[0]
	}
	b.Normalize()
	return b
}
