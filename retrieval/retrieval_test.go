//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package retrieval

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-rag-go/document"
	"trpc.group/trpc-go/trpc-rag-go/grader"
	"trpc.group/trpc-go/trpc-rag-go/model"
	"trpc.group/trpc-go/trpc-rag-go/provider"
)

type fakeVector struct {
	items []provider.Item
	err   error
	calls atomic.Int32
}

func (f *fakeVector) Search(ctx context.Context, queryText string, topK int) ([]provider.Item, error) {
	f.calls.Add(1)
	return f.items, f.err
}

type fakeLexical struct {
	items []provider.Item
	err   error
	calls atomic.Int32
}

func (f *fakeLexical) Search(ctx context.Context, queryText string, keywords []string, topK int) ([]provider.Item, error) {
	f.calls.Add(1)
	return f.items, f.err
}

type fakeModel struct {
	text string
	err  error
}

func (f *fakeModel) GenerateContent(ctx context.Context, req *model.Request) (*model.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Response{Text: f.text}, nil
}

func (f *fakeModel) Info() model.Info { return model.Info{Name: "fake"} }

func items(ids ...string) []provider.Item {
	out := make([]provider.Item, 0, len(ids))
	for i, id := range ids {
		out = append(out, provider.Item{DocumentID: id, Content: "doc " + id, Score: float64(len(ids) - i)})
	}
	return out
}

func newStage(vec *fakeVector, lex *fakeLexical, m model.Model, opts ...Option) *Stage {
	return New(vec, lex, grader.New(m), opts...)
}

func TestRetrieveHybridFusesBothLegs(t *testing.T) {
	vec := &fakeVector{items: items("d1", "d2", "d3")}
	lex := &fakeLexical{items: items("d2", "d4")}
	s := newStage(vec, lex, &fakeModel{text: "yes"})

	res, err := s.Retrieve(context.Background(), document.Query{Text: "q", TopK: 4}, ModeHybrid, nil)
	require.NoError(t, err)

	require.Len(t, res.Fused, 4)
	assert.Equal(t, "d2", res.Fused[0].DocumentID)
	assert.Equal(t, document.ProvenanceBoth, res.Fused[0].Provenance)
	assert.Len(t, res.Accepted, 4)
	assert.Len(t, res.Lists, 2)
	assert.Empty(t, res.Degraded)
	assert.Equal(t, int32(1), vec.calls.Load())
	assert.Equal(t, int32(1), lex.calls.Load())
}

func TestRetrieveDegradesOnSingleLegFailure(t *testing.T) {
	vec := &fakeVector{items: items("d1", "d2")}
	lex := &fakeLexical{err: provider.ErrUnavailable}
	s := newStage(vec, lex, &fakeModel{text: "yes"})

	res, err := s.Retrieve(context.Background(), document.Query{Text: "q", TopK: 5}, ModeHybrid, nil)
	require.NoError(t, err)

	assert.Equal(t, []document.Source{document.SourceLexical}, res.Degraded)
	assert.Len(t, res.Lists, 1)
	require.Len(t, res.Accepted, 2)
	assert.Equal(t, document.ProvenanceVector, res.Accepted[0].Provenance)
}

func TestRetrieveFailsWhenAllLegsFail(t *testing.T) {
	vec := &fakeVector{err: provider.ErrUnavailable}
	lex := &fakeLexical{err: provider.ErrTimeout}
	s := newStage(vec, lex, &fakeModel{text: "yes"})

	_, err := s.Retrieve(context.Background(), document.Query{Text: "q"}, ModeHybrid, nil)
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}

func TestRetrieveVectorOnlySkipsLexicalLeg(t *testing.T) {
	vec := &fakeVector{items: items("d1")}
	lex := &fakeLexical{items: items("d2")}
	s := newStage(vec, lex, &fakeModel{text: "yes"})

	res, err := s.Retrieve(context.Background(), document.Query{Text: "q", TopK: 3}, ModeVectorOnly, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(0), lex.calls.Load())
	require.Len(t, res.Accepted, 1)
	assert.Equal(t, "d1", res.Accepted[0].DocumentID)
}

func TestRetrieveGradingFailsClosed(t *testing.T) {
	vec := &fakeVector{items: items("d1", "d2")}
	lex := &fakeLexical{items: items("d1")}
	s := newStage(vec, lex, &fakeModel{err: errors.New("classifier down")})

	res, err := s.Retrieve(context.Background(), document.Query{Text: "q", TopK: 5}, ModeHybrid, nil)
	require.NoError(t, err)

	assert.Empty(t, res.Accepted)
	require.Len(t, res.Decisions, 2)
	for _, d := range res.Decisions {
		assert.Equal(t, grader.VerdictIrrelevant, d.Verdict)
	}
}

func TestRetrieveTruncatesAfterFusion(t *testing.T) {
	vec := &fakeVector{items: items("d1", "d2", "d3", "d4")}
	lex := &fakeLexical{items: items("d4", "d5", "d6")}
	s := newStage(vec, lex, &fakeModel{text: "yes"})

	res, err := s.Retrieve(context.Background(), document.Query{Text: "q", TopK: 2}, ModeHybrid, nil)
	require.NoError(t, err)

	require.Len(t, res.Fused, 2)
	// d4 appears in both lists and must survive the cut.
	assert.Equal(t, "d4", res.Fused[0].DocumentID)
}

func TestRetrieveCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	vec := &fakeVector{items: items("d1")}
	lex := &fakeLexical{items: items("d2")}
	s := newStage(vec, lex, &fakeModel{text: "yes"})

	_, err := s.Retrieve(ctx, document.Query{Text: "q"}, ModeHybrid, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
