// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package recommend asks an OpenAI-compatible chat completion endpoint to
// interpret a free-text query. The model replies with an enhanced query,
// "Title by Author" suggestions and alternative search terms. Any failure
// yields the identity fallback; Recommend never returns an error.
package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/book-finder/internal/httputil"
	"github.com/pdiddy/book-finder/internal/logger"
	"github.com/pdiddy/book-finder/internal/metrics"
	"github.com/pdiddy/book-finder/internal/schema"
	"github.com/pdiddy/book-finder/pkg/types"
)

// ErrNoAPIKey is reported when no credential is configured.
var ErrNoAPIKey = errors.New("recommendation API key not configured")

// ErrEmptyReply is reported when the model returns no message content.
var ErrEmptyReply = errors.New("recommendation reply has no content")

// fencePattern matches a Markdown code fence, optionally tagged json, and
// captures its body.
var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// Client calls the chat completion endpoint.
type Client struct {
	fetcher     *httputil.Fetcher
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	siteURL     string
	siteName    string
}

// New returns a Client configured from cfg.
func New(cfg types.RecommendConfig) *Client {
	return &Client{
		fetcher:     httputil.NewFetcher(string(types.SourceRecommendation), cfg.HTTPConfig),
		endpoint:    cfg.Endpoint,
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		siteURL:     cfg.SiteURL,
		siteName:    cfg.SiteName,
	}
}

// Name returns the source identifier.
func (c *Client) Name() string { return string(types.SourceRecommendation) }

// Recommend interprets query. On any failure it logs the cause and returns
// types.FallbackRecommendation(query).
func (c *Client) Recommend(ctx context.Context, query string) types.RecommendationResult {
	if c.apiKey == "" {
		logger.For(ctx).WithField("source", c.Name()).Debug(ErrNoAPIKey.Error())
		return types.FallbackRecommendation(query)
	}

	start := time.Now()
	rec, err := c.recommend(ctx, query)
	metrics.ObserveSource(c.Name(), start, err)
	if err != nil {
		logger.For(ctx).WithFields(logrus.Fields{
			"source": c.Name(),
			"query":  query,
		}).WithError(err).Warn("recommendation failed, using fallback")
		return types.FallbackRecommendation(query)
	}
	return rec
}

// chatMessage is one message of a chat completion request or reply.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) recommend(ctx context.Context, query string) (types.RecommendationResult, error) {
	userPrompt, err := renderUserPrompt(query)
	if err != nil {
		return types.RecommendationResult{}, fmt.Errorf("rendering prompt: %w", err)
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return types.RecommendationResult{}, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return types.RecommendationResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.siteURL != "" {
		req.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		req.Header.Set("X-Title", c.siteName)
	}

	body, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		return types.RecommendationResult{}, fmt.Errorf("chat completion request: %w", err)
	}

	content, err := messageContent(body)
	if err != nil {
		return types.RecommendationResult{}, err
	}
	return parseReply(content)
}

// messageContent extracts choices[0].message.content from a chat
// completion body.
func messageContent(body []byte) (string, error) {
	if err := schema.Validate(schema.ChatCompletion, body); err != nil {
		return "", err
	}
	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("parsing chat completion: %w", err)
	}
	if len(cr.Choices) == 0 || cr.Choices[0].Message.Content == nil {
		return "", ErrEmptyReply
	}
	content := strings.TrimSpace(*cr.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyReply
	}
	return content, nil
}

// stripFences returns the body of the first fenced block in s, or s
// trimmed when it has none.
func stripFences(s string) string {
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// parseReply decodes the model's JSON object. All three fields must be
// present with the right shapes; extra fields are rejected.
func parseReply(content string) (types.RecommendationResult, error) {
	raw := []byte(stripFences(content))
	if err := schema.Validate(schema.Recommendation, raw); err != nil {
		return types.RecommendationResult{}, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var rec types.RecommendationResult
	if err := dec.Decode(&rec); err != nil {
		return types.RecommendationResult{}, fmt.Errorf("decoding recommendation: %w", err)
	}
	if rec.Suggestions == nil {
		rec.Suggestions = []string{}
	}
	if rec.AlternativeTerms == nil {
		rec.AlternativeTerms = []string{}
	}
	return rec, nil
}
