//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package cache provides a Redis-backed answer cache keyed by a digest of
// the normalized question text, so repeated questions skip the full
// retrieval and grading loop.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss reports a cache miss.
var ErrMiss = errors.New("answer cache miss")

const (
	defaultPrefix = "rag:answer:"
	defaultTTL    = time.Hour
)

// Answer is the cached terminal payload for a question.
type Answer struct {
	AnswerText       string   `json:"answer_text"`
	CitedDocumentIDs []string `json:"cited_document_ids"`
}

// Store is a Redis answer cache.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithPrefix overrides the cache key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithTTL overrides the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// New creates a Store over an existing Redis client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultPrefix, ttl: defaultTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get looks up the cached answer for question. It returns ErrMiss when no
// entry exists.
func (s *Store) Get(ctx context.Context, question string) (*Answer, error) {
	raw, err := s.client.Get(ctx, s.key(question)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("answer cache get failed: %w", err)
	}
	var ans Answer
	if err := json.Unmarshal(raw, &ans); err != nil {
		return nil, fmt.Errorf("corrupt answer cache entry: %w", err)
	}
	return &ans, nil
}

// Set stores the answer for question under the configured TTL.
func (s *Store) Set(ctx context.Context, question string, ans *Answer) error {
	raw, err := json.Marshal(ans)
	if err != nil {
		return fmt.Errorf("failed to encode answer: %w", err)
	}
	if err := s.client.Set(ctx, s.key(question), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("answer cache set failed: %w", err)
	}
	return nil
}

// key digests the normalized question so that casing and whitespace
// variants share one entry.
func (s *Store) key(question string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(question), " "))
	sum := sha256.Sum256([]byte(normalized))
	return s.prefix + hex.EncodeToString(sum[:])
}
