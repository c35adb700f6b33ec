//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, opts...), mr
}

func TestGetMiss(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Get(context.Background(), "never asked")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestSetThenGet(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	want := &Answer{AnswerText: "rank fusion merges lists", CitedDocumentIDs: []string{"d1", "d2"}}
	require.NoError(t, s.Set(ctx, "What is RRF?", want))

	got, err := s.Get(ctx, "What is RRF?")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestKeyNormalization(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "What   is RRF?", &Answer{AnswerText: "a"}))
	got, err := s.Get(ctx, "  what is rrf?  ")
	require.NoError(t, err)
	assert.Equal(t, "a", got.AnswerText)
}

func TestEntryExpires(t *testing.T) {
	s, mr := newStore(t, WithTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "q", &Answer{AnswerText: "a"}))
	mr.FastForward(2 * time.Minute)

	_, err := s.Get(ctx, "q")
	assert.ErrorIs(t, err, ErrMiss)
}
