//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package rewriter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-rag-go/document"
	"trpc.group/trpc-go/trpc-rag-go/model"
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

func TestRewriteParsesQuestionAndKeywords(t *testing.T) {
	r := New(&fakeModel{text: "QUESTION: What is the maximum rated torque of the M4 actuator?\nKEYWORDS: torque limit, actuator rating, M4 spec, torque limit"})
	orig := document.Query{Text: "how strong is the m4", SessionID: "s1", TopK: 5}

	rw, err := r.Rewrite(context.Background(), orig, ReasonNoRelevantDocuments)
	require.NoError(t, err)
	assert.Equal(t, "What is the maximum rated torque of the M4 actuator?", rw.Query.Text)
	assert.Equal(t, []string{"torque limit", "actuator rating", "M4 spec"}, rw.Keywords)

	// Session and top-k carry over; the original value is untouched.
	assert.Equal(t, "s1", rw.Query.SessionID)
	assert.Equal(t, 5, rw.Query.TopK)
	assert.Equal(t, "how strong is the m4", orig.Text)
}

func TestRewriteUnformattedReply(t *testing.T) {
	r := New(&fakeModel{text: "  What is the rated torque?  "})
	rw, err := r.Rewrite(context.Background(), document.Query{Text: "q"}, ReasonUngrounded)
	require.NoError(t, err)
	assert.Equal(t, "What is the rated torque?", rw.Query.Text)
	assert.Empty(t, rw.Keywords)
}

func TestRewriteError(t *testing.T) {
	r := New(&fakeModel{err: errors.New("down")})
	_, err := r.Rewrite(context.Background(), document.Query{Text: "q"}, ReasonOffTopic)
	assert.Error(t, err)
}
