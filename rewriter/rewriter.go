//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package rewriter reformulates failing queries for another retrieval
// round, and extracts expansion keywords for the lexical index.
package rewriter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-rag-go/document"
	"trpc.group/trpc-go/trpc-rag-go/model"
)

// Reason describes why the previous round failed; it steers the rewrite
// prompt.
type Reason string

// Rewrite reasons.
const (
	ReasonNoRelevantDocuments Reason = "no_relevant_documents"
	ReasonUngrounded          Reason = "ungrounded"
	ReasonOffTopic            Reason = "off_topic"
)

const defaultTimeout = 15 * time.Second

const rewritePrompt = `You are a question re-writer that converts an input question to a better version optimized for retrieval from a technical-document index.
%s
Respond with two lines:
QUESTION: <the rewritten question>
KEYWORDS: <3-5 comma-separated synonyms or related technical terms>`

// reasonHints tailor the system prompt to the failure mode.
var reasonHints = map[Reason]string{
	ReasonNoRelevantDocuments: "The previous retrieval found no relevant documents. Reformulate with more specific technical vocabulary.",
	ReasonUngrounded:          "The previous answer was not supported by the retrieved documents. Reformulate to target verifiable document content.",
	ReasonOffTopic:            "The previous answer did not address the question. Reformulate to make the information need explicit.",
}

// Rewrite is a reformulated query plus lexical expansion terms.
type Rewrite struct {
	// Query is a new immutable query value; the input query is untouched.
	Query document.Query

	// Keywords are expansion terms for the lexical leg. May be empty.
	Keywords []string
}

// Rewriter reformulates queries through the generation model.
type Rewriter struct {
	generator model.Model
	timeout   time.Duration
}

// Option configures the Rewriter.
type Option func(*Rewriter)

// WithTimeout sets the per-call generation timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Rewriter) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New creates a Rewriter backed by the given generation model.
func New(generator model.Model, opts ...Option) *Rewriter {
	r := &Rewriter{
		generator: generator,
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rewrite produces a new query value for the given failure reason. The
// original query is never mutated. On error the caller decides whether to
// retry with the unmodified query.
func (r *Rewriter) Rewrite(ctx context.Context, q document.Query, reason Reason) (*Rewrite, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	hint, ok := reasonHints[reason]
	if !ok {
		hint = reasonHints[ReasonNoRelevantDocuments]
	}
	temperature := 0.2
	rsp, err := r.generator.GenerateContent(ctx, &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage(fmt.Sprintf(rewritePrompt, hint)),
			model.NewUserMessage(q.Text),
		},
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("query rewrite failed: %w", err)
	}

	question, keywords := parseRewrite(rsp.Text)
	if question == "" {
		// Model ignored the format; take the whole reply as the question.
		question = strings.TrimSpace(rsp.Text)
	}
	if question == "" {
		question = q.Text
	}
	return &Rewrite{
		Query:    q.WithText(question),
		Keywords: keywords,
	}, nil
}

// parseRewrite extracts the QUESTION and KEYWORDS lines from the reply.
func parseRewrite(text string) (string, []string) {
	var question string
	var keywords []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(strings.ToUpper(line), "QUESTION:"):
			question = strings.TrimSpace(line[len("QUESTION:"):])
		case strings.HasPrefix(strings.ToUpper(line), "KEYWORDS:"):
			for _, kw := range strings.Split(line[len("KEYWORDS:"):], ",") {
				if kw = strings.TrimSpace(kw); kw != "" {
					keywords = append(keywords, kw)
				}
			}
		}
	}
	return question, dedupe(keywords)
}

// dedupe removes duplicate keywords preserving order.
func dedupe(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}
