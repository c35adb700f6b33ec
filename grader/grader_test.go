//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package grader

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-rag-go/document"
	"trpc.group/trpc-go/trpc-rag-go/model"
	"trpc.group/trpc-go/trpc-rag-go/provider"
)

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

func TestGradeRelevance(t *testing.T) {
	cand := &document.Candidate{DocumentID: "d1", Content: "torque spec"}

	g := New(&fakeModel{text: "yes"})
	d, err := g.GradeRelevance(context.Background(), "torque?", cand)
	require.NoError(t, err)
	assert.Equal(t, Decision{TargetID: "d1", Kind: KindRelevance, Verdict: VerdictRelevant}, d)

	g = New(&fakeModel{text: "No."})
	d, err = g.GradeRelevance(context.Background(), "torque?", cand)
	require.NoError(t, err)
	assert.Equal(t, VerdictIrrelevant, d.Verdict)
}

func TestGradeGroundednessAndAnswer(t *testing.T) {
	cands := []*document.Candidate{{DocumentID: "d1", Content: "fact"}}

	g := New(&fakeModel{text: "Yes, it is supported."})
	d, err := g.GradeGroundedness(context.Background(), cands, "answer")
	require.NoError(t, err)
	assert.Equal(t, VerdictGrounded, d.Verdict)

	g = New(&fakeModel{text: "no"})
	d, err = g.GradeAnswer(context.Background(), "q", "answer")
	require.NoError(t, err)
	assert.Equal(t, VerdictDoesNotAnswer, d.Verdict)
}

func TestGradeErrors(t *testing.T) {
	cand := &document.Candidate{DocumentID: "d1"}

	g := New(&fakeModel{err: errors.New("down")})
	_, err := g.GradeRelevance(context.Background(), "q", cand)
	assert.Error(t, err)

	g = New(&fakeModel{text: "maybe?"})
	_, err = g.GradeRelevance(context.Background(), "q", cand)
	assert.ErrorIs(t, err, provider.ErrInvalidResponse)
}

func TestParseBinary(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"yes", true, false},
		{"Yes.", true, false},
		{"The answer is no", false, false},
		{"NO!", false, false},
		{"definitely", false, true},
		{"", false, true},
	}
	for _, tt := range tests {
		got, err := parseBinary(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
