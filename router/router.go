//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package router classifies incoming questions into a retrieval strategy.
package router

import (
	"context"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-rag-go/document"
	"trpc.group/trpc-go/trpc-rag-go/log"
	"trpc.group/trpc-go/trpc-rag-go/model"
)

// Decision is the retrieval strategy selected for a query.
type Decision string

// Routing decisions.
const (
	DecisionHybrid     Decision = "hybrid"
	DecisionVectorOnly Decision = "vector_only"
	DecisionWebSearch  Decision = "web_search"
)

const defaultTimeout = 10 * time.Second

const systemPrompt = `You are an expert at routing a user question to a document index or web search.
The document index contains technical reports, engineering specifications, and product manuals.
Answer with exactly one word:
- "hybrid" for questions about specific technical details, parameters, or document content,
- "vector_only" for broad conceptual or explanatory questions over the same documents,
- "web_search" for questions about current events, general knowledge, or recent news.`

// Router selects a retrieval strategy per query by delegating to the
// classification model. Routing never fails a request: any model error or
// unparseable label falls back to hybrid retrieval.
type Router struct {
	classifier model.Model
	timeout    time.Duration
}

// Option configures the Router.
type Option func(*Router)

// WithTimeout sets the per-call classification timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New creates a Router backed by the given classification model.
func New(classifier model.Model, opts ...Option) *Router {
	r := &Router{
		classifier: classifier,
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route classifies the query. The zero temperature keeps routing
// deterministic for a given model snapshot.
func (r *Router) Route(ctx context.Context, q document.Query) Decision {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	temperature := 0.0
	rsp, err := r.classifier.GenerateContent(ctx, &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage(systemPrompt),
			model.NewUserMessage(q.Text),
		},
		Temperature: &temperature,
	})
	if err != nil {
		log.Warnf("query routing failed, falling back to hybrid: %v", err)
		return DecisionHybrid
	}
	return parseDecision(rsp.Text)
}

// parseDecision maps model output onto a Decision, tolerating prose around
// the label. Anything unrecognized routes to hybrid.
func parseDecision(text string) Decision {
	label := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.Contains(label, string(DecisionWebSearch)), strings.Contains(label, "websearch"):
		return DecisionWebSearch
	case strings.Contains(label, string(DecisionVectorOnly)), strings.Contains(label, "vectorstore"):
		return DecisionVectorOnly
	case strings.Contains(label, string(DecisionHybrid)):
		return DecisionHybrid
	default:
		log.Warnf("unrecognized routing label %q, falling back to hybrid", label)
		return DecisionHybrid
	}
}
