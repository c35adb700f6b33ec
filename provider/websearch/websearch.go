//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package websearch implements the fallback web search provider against a
// Tavily-style JSON search API. Result URLs double as document identifiers
// so web hits flow through fusion like any other source.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"trpc.group/trpc-go/trpc-rag-go/provider"
)

const (
	defaultEndpoint   = "https://api.tavily.com/search"
	defaultMaxResults = 3
	defaultTimeout    = 15 * time.Second
)

// Client calls an external web search API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	maxResults int
}

// Option configures the Client.
type Option func(*Client)

// WithEndpoint overrides the search API endpoint.
func WithEndpoint(url string) Option {
	return func(c *Client) {
		c.endpoint = url
	}
}

// WithMaxResults caps how many web results a search returns.
func WithMaxResults(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a Client authenticated with apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		endpoint:   defaultEndpoint,
		apiKey:     apiKey,
		maxResults: defaultMaxResults,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResult struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// Search runs one web search for queryText.
func (c *Client) Search(ctx context.Context, queryText string) ([]provider.Item, error) {
	body, err := json.Marshal(searchRequest{Query: queryText, MaxResults: c.maxResults})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search failed: %w", classify(ctx, err))
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web search returned %d: %w", res.StatusCode, provider.ErrUnavailable)
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", provider.ErrInvalidResponse)
	}

	items := make([]provider.Item, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.URL == "" {
			continue
		}
		content := r.Content
		if r.Title != "" {
			content = r.Title + "\n" + r.Content
		}
		items = append(items, provider.Item{
			DocumentID: r.URL,
			Content:    content,
			Score:      r.Score,
		})
	}
	return items, nil
}

func classify(ctx context.Context, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", provider.ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %v", provider.ErrUnavailable, err)
	}
}
