// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package catalog queries the bibliographic catalog (Open Library search
// API) and maps its records to types.Book. The client is fail-open: any
// transport, status or payload problem yields an empty result and a warning.
package catalog

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

	"github.com/pdiddy/book-finder/internal/httputil"
	"github.com/pdiddy/book-finder/internal/logger"
	"github.com/pdiddy/book-finder/internal/metrics"
	"github.com/pdiddy/book-finder/internal/schema"
	"github.com/pdiddy/book-finder/pkg/types"
)

// searchFields is the fixed field selection sent with every query.
const searchFields = "key,title,author_name,isbn,publish_year,subject,cover_i"

const defaultLimit = 20

// Client searches the catalog.
type Client struct {
	fetcher      *httputil.Fetcher
	baseURL      string
	coverBaseURL string
	limit        int
}

// New returns a Client configured from cfg.
func New(cfg types.CatalogConfig) *Client {
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Client{
		fetcher:      httputil.NewFetcher(string(types.SourceCatalog), cfg.HTTPConfig),
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		coverBaseURL: strings.TrimRight(cfg.CoverBaseURL, "/"),
		limit:        limit,
	}
}

// Name returns the source identifier.
func (c *Client) Name() string { return string(types.SourceCatalog) }

// Search returns up to limit books for query. A non-positive limit uses the
// configured default. It never fails; errors are logged and produce an
// empty slice.
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
		}).WithError(err).Warn("catalog search failed")
		return []types.Book{}
	}
	return books
}

func (c *Client) search(ctx context.Context, query string, limit int) ([]types.Book, error) {
	params := url.Values{
		"q":      {query},
		"limit":  {strconv.Itoa(limit)},
		"fields": {searchFields},
	}
	reqURL := c.baseURL + "/search.json?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	body, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("catalog API request: %w", err)
	}

	if err := schema.Validate(schema.CatalogSearch, body); err != nil {
		return nil, err
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("parsing catalog response: %w", err)
	}

	books := make([]types.Book, 0, len(sr.Docs))
	for _, doc := range sr.Docs {
		books = append(books, c.toBook(doc))
	}
	return books, nil
}

// toBook maps one catalog record, applying placeholder rules.
func (c *Client) toBook(doc searchDoc) types.Book {
	b := types.Book{
		ID:       doc.Key,
		Title:    doc.Title,
		Author:   doc.AuthorName,
		Subjects: doc.Subject,
		Source:   types.SourceCatalog,
	}
	if len(doc.ISBN) > 0 {
		b.ISBN = doc.ISBN[0]
	}
	if len(doc.PublishYear) > 0 {
		b.PublishYear = doc.PublishYear[0]
	}
	if doc.CoverID != nil && *doc.CoverID > 0 {
		b.CoverURL = fmt.Sprintf("%s/b/id/%d-L.jpg", c.coverBaseURL, *doc.CoverID)
	}
	b.Normalize()
	return b
}

// Catalog search JSON structures.
type searchResponse struct {
	NumFound int         `json:"numFound"`
	Docs     []searchDoc `json:"docs"`
}

type searchDoc struct {
	Key         string   `json:"key"`
	Title       string   `json:"title"`
	AuthorName  []string `json:"author_name"`
	ISBN        []string `json:"isbn"`
	PublishYear []int    `json:"publish_year"`
	Subject     []string `json:"subject"`
	CoverID     *int64   `json:"cover_i"`
}
