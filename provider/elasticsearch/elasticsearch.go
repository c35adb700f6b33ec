//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package elasticsearch implements the lexical index leg as a BM25 search
// over an Elasticsearch index. Expansion keywords, when present, boost
// documents without being required to match.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/elastic/go-elasticsearch/v9"

	"trpc.group/trpc-go/trpc-rag-go/provider"
)

const (
	defaultIndex        = "documents"
	defaultContentField = "content"

	// keywordBoost keeps expansion terms influential without letting them
	// outrank the full question match.
	keywordBoost = 0.5
)

// Index is a lexical index backed by an Elasticsearch BM25 index.
type Index struct {
	client       *elasticsearch.Client
	index        string
	contentField string
}

// Option configures the Index.
type Option func(*options)

type options struct {
	username     string
	password     string
	index        string
	contentField string
}

// WithAuth sets basic-auth credentials.
func WithAuth(username, password string) Option {
	return func(o *options) {
		o.username = username
		o.password = password
	}
}

// WithIndex selects the index to search.
func WithIndex(name string) Option {
	return func(o *options) {
		o.index = name
	}
}

// WithContentField overrides the document body field name.
func WithContentField(name string) Option {
	return func(o *options) {
		o.contentField = name
	}
}

// New builds an Index over the given Elasticsearch addresses.
func New(addresses []string, opts ...Option) (*Index, error) {
	o := options{index: defaultIndex, contentField: defaultContentField}
	for _, opt := range opts {
		opt(&o)
	}
	cli, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  o.username,
		Password:  o.password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &Index{client: cli, index: o.index, contentField: o.contentField}, nil
}

type searchHit struct {
	ID     string          `json:"_id"`
	Score  float64         `json:"_score"`
	Source json.RawMessage `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

// Search runs a BM25 match query for queryText, with keywords folded in as
// optional boosting clauses.
func (i *Index) Search(ctx context.Context, queryText string, keywords []string, topK int) ([]provider.Item, error) {
	body, err := json.Marshal(i.buildQuery(queryText, keywords, topK))
	if err != nil {
		return nil, fmt.Errorf("failed to encode search body: %w", err)
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.index),
		i.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", classify(ctx, err))
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch returned %s: %s: %w",
			res.Status(), strings.TrimSpace(string(msg)), provider.ErrUnavailable)
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", provider.ErrInvalidResponse)
	}

	items := make([]provider.Item, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		var src map[string]any
		if err := json.Unmarshal(hit.Source, &src); err != nil {
			continue
		}
		content, _ := src[i.contentField].(string)
		items = append(items, provider.Item{
			DocumentID: hit.ID,
			Content:    content,
			Score:      hit.Score,
		})
	}
	return items, nil
}

func (i *Index) buildQuery(queryText string, keywords []string, topK int) map[string]any {
	must := []map[string]any{{
		"match": map[string]any{
			i.contentField: map[string]any{"query": queryText},
		},
	}}
	var should []map[string]any
	for _, kw := range keywords {
		should = append(should, map[string]any{
			"match": map[string]any{
				i.contentField: map[string]any{"query": kw, "boost": keywordBoost},
			},
		})
	}
	boolQuery := map[string]any{"must": must}
	if len(should) > 0 {
		boolQuery["should"] = should
	}
	return map[string]any{
		"size":  topK,
		"query": map[string]any{"bool": boolQuery},
	}
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", provider.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", provider.ErrUnavailable, err)
}
