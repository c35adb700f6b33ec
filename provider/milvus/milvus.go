//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package milvus implements the semantic index leg on top of a Milvus
// collection. Query text is embedded on the way in, so callers only ever
// deal in text.
package milvus

import (
	"context"
	"errors"
	"fmt"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"trpc.group/trpc-go/trpc-rag-go/embedder"
	"trpc.group/trpc-go/trpc-rag-go/provider"
)

// Field and collection defaults, matching the ingestion pipeline's schema.
const (
	defaultCollection   = "documents"
	defaultIDField      = "doc_id"
	defaultContentField = "content"
	defaultVectorField  = "embedding"
)

// Index is a vector index backed by a Milvus collection.
type Index struct {
	client   *milvusclient.Client
	embedder embedder.Embedder

	collection   string
	idField      string
	contentField string
	vectorField  string
}

// Option configures the Index.
type Option func(*options)

type options struct {
	username     string
	password     string
	dbName       string
	collection   string
	idField      string
	contentField string
	vectorField  string
}

// WithAuth sets the Milvus credentials.
func WithAuth(username, password string) Option {
	return func(o *options) {
		o.username = username
		o.password = password
	}
}

// WithDatabase selects a non-default Milvus database.
func WithDatabase(name string) Option {
	return func(o *options) {
		o.dbName = name
	}
}

// WithCollection selects the collection to search.
func WithCollection(name string) Option {
	return func(o *options) {
		o.collection = name
	}
}

// WithFields overrides the id, content and vector field names.
func WithFields(idField, contentField, vectorField string) Option {
	return func(o *options) {
		o.idField = idField
		o.contentField = contentField
		o.vectorField = vectorField
	}
}

// New connects to Milvus at the given address and returns an Index that
// embeds query text with emb before searching.
func New(ctx context.Context, address string, emb embedder.Embedder, opts ...Option) (*Index, error) {
	if emb == nil {
		return nil, errors.New("milvus index requires an embedder")
	}
	o := options{
		collection:   defaultCollection,
		idField:      defaultIDField,
		contentField: defaultContentField,
		vectorField:  defaultVectorField,
	}
	for _, opt := range opts {
		opt(&o)
	}
	cli, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  address,
		Username: o.username,
		Password: o.password,
		DBName:   o.dbName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}
	return &Index{
		client:       cli,
		embedder:     emb,
		collection:   o.collection,
		idField:      o.idField,
		contentField: o.contentField,
		vectorField:  o.vectorField,
	}, nil
}

// Search embeds queryText and runs an ANN search over the collection.
func (i *Index) Search(ctx context.Context, queryText string, topK int) ([]provider.Item, error) {
	vec, err := i.embedder.GetEmbedding(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", classify(ctx, err))
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("query embedding empty: %w", provider.ErrInvalidResponse)
	}

	vec32 := make([]float32, len(vec))
	for j, v := range vec {
		vec32[j] = float32(v)
	}

	option := milvusclient.NewSearchOption(i.collection, topK, []entity.Vector{entity.FloatVector(vec32)}).
		WithANNSField(i.vectorField).
		WithOutputFields(i.idField, i.contentField)
	resultSets, err := i.client.Search(ctx, option)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", classify(ctx, err))
	}
	if len(resultSets) == 0 {
		return nil, nil
	}

	rs := resultSets[0]
	var ids, contents []string
	for _, field := range rs.Fields {
		col, ok := field.(*column.ColumnVarChar)
		if !ok {
			continue
		}
		switch col.Name() {
		case i.idField:
			ids = col.Data()
		case i.contentField:
			contents = col.Data()
		}
	}
	if ids == nil || contents == nil {
		return nil, fmt.Errorf("missing %s or %s column: %w", i.idField, i.contentField, provider.ErrInvalidResponse)
	}

	items := make([]provider.Item, 0, rs.ResultCount)
	for j := 0; j < rs.ResultCount && j < len(ids) && j < len(contents); j++ {
		item := provider.Item{DocumentID: ids[j], Content: contents[j]}
		if j < len(rs.Scores) {
			item.Score = float64(rs.Scores[j])
		}
		items = append(items, item)
	}
	return items, nil
}

// Close releases the underlying Milvus connection.
func (i *Index) Close(ctx context.Context) error {
	return i.client.Close(ctx)
}

// classify folds transport errors into the shared provider taxonomy.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", provider.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", provider.ErrUnavailable, err)
}
