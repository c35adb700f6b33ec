//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package provider defines the narrow interfaces the orchestrator consumes
// for index, web-search and model backends, together with the failure
// taxonomy shared by all of them.
//
// Implementations are external collaborators. Each backend lives in its own
// subpackage (milvus, elasticsearch, ...) and is injected at construction
// time, so tests substitute deterministic fakes without network access.
package provider

import (
	"context"
	"errors"
)

// Failure taxonomy. Implementations wrap the matching sentinel so callers
// can classify failures with errors.Is regardless of backend.
var (
	// ErrTimeout reports that a provider call exceeded its deadline.
	ErrTimeout = errors.New("provider timeout")

	// ErrUnavailable reports that a provider could not be reached or
	// answered with an infrastructure error.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrInvalidResponse reports malformed or uninterpretable provider
	// output.
	ErrInvalidResponse = errors.New("invalid provider response")
)

// IsTransient reports whether err is an infrastructure failure worth
// retrying. Content errors (ErrInvalidResponse) are deliberately excluded.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable)
}

// Item is one ranked result returned by an index or web-search provider.
// Order in the returned slice is the provider's ranking, best first.
type Item struct {
	// DocumentID is the natural key of the underlying chunk.
	DocumentID string

	// Content is the chunk text.
	Content string

	// Score is the provider's own relevance score, when reported.
	Score float64
}

// VectorIndex is the semantic retrieval backend.
type VectorIndex interface {
	// Search returns the topK most similar chunks for the query text,
	// ordered best first.
	Search(ctx context.Context, queryText string, topK int) ([]Item, error)
}

// LexicalIndex is the keyword retrieval backend.
type LexicalIndex interface {
	// Search returns the topK best keyword matches for the query text,
	// ordered best first. Keywords carries optional expansion terms; an
	// empty slice means plain query-text matching.
	Search(ctx context.Context, queryText string, keywords []string, topK int) ([]Item, error)
}

// WebSearch is the external web-search fallback.
type WebSearch interface {
	// Search returns ranked web results for the query text.
	Search(ctx context.Context, queryText string) ([]Item, error)
}
