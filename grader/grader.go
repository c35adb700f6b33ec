//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package grader provides the binary classifiers used by the orchestrator:
// document relevance, answer groundedness, and answer usefulness.
package grader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-rag-go/document"
	"trpc.group/trpc-go/trpc-rag-go/model"
	"trpc.group/trpc-go/trpc-rag-go/provider"
)

// Kind identifies which grader produced a decision.
type Kind string

// Grader kinds.
const (
	KindRelevance    Kind = "relevance"
	KindGroundedness Kind = "groundedness"
	KindAnswer       Kind = "answer"
)

// Verdict is a single binary grading outcome.
type Verdict string

// Verdicts, by grader kind.
const (
	VerdictRelevant      Verdict = "relevant"
	VerdictIrrelevant    Verdict = "irrelevant"
	VerdictGrounded      Verdict = "grounded"
	VerdictUngrounded    Verdict = "ungrounded"
	VerdictAnswers       Verdict = "answers"
	VerdictDoesNotAnswer Verdict = "does_not_answer"
)

// Decision records one graded item for one round. Immutable once produced.
type Decision struct {
	TargetID string
	Verdict  Verdict
	Kind     Kind
}

const defaultTimeout = 15 * time.Second

const relevancePrompt = `You are a grader assessing relevance of a retrieved document to a user question.
If the document contains keywords or semantic meaning related to the question, grade it as relevant.
It does not need to be a stringent test; the goal is to filter out erroneous retrievals.
Answer with a single word: "yes" if the document is relevant, "no" otherwise.`

const groundedPrompt = `You are a grader assessing whether an answer is grounded in / supported by a set of retrieved facts.
Answer with a single word: "yes" if the answer is supported by the facts, "no" otherwise.`

const answersPrompt = `You are a grader assessing whether an answer addresses / resolves a question.
Answer with a single word: "yes" if the answer resolves the question, "no" otherwise.`

// Grader runs binary classifications through the classification model.
type Grader struct {
	classifier model.Model
	timeout    time.Duration
}

// Option configures the Grader.
type Option func(*Grader)

// WithTimeout sets the per-call classification timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Grader) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// New creates a Grader backed by the given classification model.
func New(classifier model.Model, opts ...Option) *Grader {
	g := &Grader{
		classifier: classifier,
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GradeRelevance classifies one (query, candidate) pair. The call is
// independent per candidate; the retrieval stage fans these out with a
// bounded worker pool and applies the fail-closed policy on error.
func (g *Grader) GradeRelevance(ctx context.Context, queryText string, cand *document.Candidate) (Decision, error) {
	yes, err := g.classify(ctx, relevancePrompt,
		fmt.Sprintf("Retrieved document:\n\n%s\n\nUser question: %s", cand.Content, queryText))
	if err != nil {
		return Decision{}, err
	}
	d := Decision{TargetID: cand.DocumentID, Kind: KindRelevance, Verdict: VerdictIrrelevant}
	if yes {
		d.Verdict = VerdictRelevant
	}
	return d, nil
}

// GradeGroundedness checks whether the generated answer is supported by
// the accepted candidates.
func (g *Grader) GradeGroundedness(ctx context.Context, cands []*document.Candidate, answer string) (Decision, error) {
	var sb strings.Builder
	for _, c := range cands {
		sb.WriteString(c.Content)
		sb.WriteString("\n\n")
	}
	yes, err := g.classify(ctx, groundedPrompt,
		fmt.Sprintf("Set of facts:\n\n%s\nLLM generation: %s", sb.String(), answer))
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Kind: KindGroundedness, Verdict: VerdictUngrounded}
	if yes {
		d.Verdict = VerdictGrounded
	}
	return d, nil
}

// GradeAnswer checks whether the generated answer addresses the question.
func (g *Grader) GradeAnswer(ctx context.Context, queryText, answer string) (Decision, error) {
	yes, err := g.classify(ctx, answersPrompt,
		fmt.Sprintf("User question:\n\n%s\n\nLLM generation: %s", queryText, answer))
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Kind: KindAnswer, Verdict: VerdictDoesNotAnswer}
	if yes {
		d.Verdict = VerdictAnswers
	}
	return d, nil
}

// classify issues one yes/no classification call.
func (g *Grader) classify(ctx context.Context, system, user string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	temperature := 0.0
	rsp, err := g.classifier.GenerateContent(ctx, &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage(system),
			model.NewUserMessage(user),
		},
		Temperature: &temperature,
	})
	if err != nil {
		return false, err
	}
	return parseBinary(rsp.Text)
}

// parseBinary interprets a yes/no reply, tolerating punctuation and case.
func parseBinary(text string) (bool, error) {
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		switch strings.Trim(tok, ".,!:;\"'") {
		case "yes":
			return true, nil
		case "no":
			return false, nil
		}
	}
	return false, fmt.Errorf("unparseable grading reply %q: %w", text, provider.ErrInvalidResponse)
}
