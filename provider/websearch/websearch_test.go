//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-rag-go/provider"
)

func TestSearchParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "what is rrf", req.Query)
		assert.Equal(t, 2, req.MaxResults)
		json.NewEncoder(w).Encode(searchResponse{Results: []searchResult{
			{URL: "https://example.com/rrf", Title: "RRF", Content: "rank fusion", Score: 0.9},
			{URL: "", Content: "dropped"},
		}})
	}))
	defer srv.Close()

	c := New("test-key", WithEndpoint(srv.URL), WithMaxResults(2))
	items, err := c.Search(context.Background(), "what is rrf")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://example.com/rrf", items[0].DocumentID)
	assert.Equal(t, "RRF\nrank fusion", items[0].Content)
}

func TestSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New("test-key", WithEndpoint(srv.URL))
	_, err := c.Search(context.Background(), "q")
	assert.ErrorIs(t, err, provider.ErrUnavailable)
}

func TestSearchUnreachable(t *testing.T) {
	c := New("test-key", WithEndpoint("http://127.0.0.1:1"))
	_, err := c.Search(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, provider.IsTransient(err))
}
