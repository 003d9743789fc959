// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pdiddy/book-finder/pkg/types"
)

// ErrUnexpectedStatus is wrapped by Fetch when the upstream answers with a
// non-200 status.
var ErrUnexpectedStatus = errors.New("unexpected HTTP status")

// maxBodyBytes bounds how much of an upstream body is read into memory.
const maxBodyBytes = 10 * 1024 * 1024

// defaultTimeout applies when an upstream is configured without a timeout.
const defaultTimeout = 15 * time.Second

// NewClient returns an http.Client whose Timeout comes from cfg. Every
// upstream request gets an explicit bound; a zero timeout is replaced by the
// default so a hung peer never stalls a branch forever.
func NewClient(cfg types.HTTPConfig) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Fetcher bundles what a client needs to issue throttled, retried requests.
type Fetcher struct {
	Client     *http.Client
	Limiter    *Limiter
	UserAgent  string
	MaxRetries int
}

// NewFetcher builds a Fetcher for one upstream from its HTTP settings.
func NewFetcher(name string, cfg types.HTTPConfig) *Fetcher {
	return &Fetcher{
		Client:     NewClient(cfg),
		Limiter:    NewLimiter(name, cfg.RequestsPerSecond),
		UserAgent:  cfg.UserAgent,
		MaxRetries: cfg.MaxRetries,
	}
}

// Fetch waits for the limiter, sends req with 429 retries, requires HTTP
// 200 and returns the body.
func (f *Fetcher) Fetch(ctx context.Context, req *http.Request) ([]byte, error) {
	if err := f.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := DoWithRetry(ctx, client, req, f.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, fmt.Errorf("%s %s returned HTTP %d: %w", req.Method, req.URL.Path, resp.StatusCode, ErrUnexpectedStatus)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", req.URL.Path, err)
	}
	return body, nil
}
