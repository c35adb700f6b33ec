//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package retrieval implements the hybrid retrieval stage: concurrent
// fan-out to the vector and lexical indexes, reciprocal-rank fusion of the
// surviving lists, and bounded-concurrency relevance grading of the fused
// candidates.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"trpc.group/trpc-go/trpc-rag-go/document"
	"trpc.group/trpc-go/trpc-rag-go/fusion"
	"trpc.group/trpc-go/trpc-rag-go/grader"
	"trpc.group/trpc-go/trpc-rag-go/log"
	"trpc.group/trpc-go/trpc-rag-go/provider"
	"trpc.group/trpc-go/trpc-rag-go/telemetry/trace"
)

// ErrAllProvidersFailed reports that every index leg of a retrieval round
// failed; the orchestrator treats it like an empty round.
var ErrAllProvidersFailed = errors.New("all retrieval providers failed")

// Mode selects which index legs a retrieval round uses.
type Mode string

// Retrieval modes.
const (
	ModeHybrid     Mode = "hybrid"
	ModeVectorOnly Mode = "vector_only"
)

// Defaults.
const (
	defaultProviderTimeout  = 10 * time.Second
	defaultGradeConcurrency = 4
	defaultTopK             = 5

	// sourceFetchFactor over-fetches each source so fusion has enough
	// overlap to work with before top-k truncation.
	sourceFetchFactor = 2
)

// Result is the outcome of one retrieval round.
type Result struct {
	// Accepted holds the relevant candidates in fusion order. Always a
	// subset of Fused.
	Accepted []*document.Candidate

	// Fused is the full fusion-ordered candidate list after top-k
	// truncation, before grading.
	Fused []*document.Candidate

	// Decisions carries one grading decision per fused candidate.
	Decisions []grader.Decision

	// Lists are the raw surviving source lists; the web fallback merges
	// its results against them as a third source.
	Lists []fusion.List

	// Degraded names the sources that failed this round. The round itself
	// still succeeded with the surviving legs.
	Degraded []document.Source
}

// Stage fans out to the index providers and grades the fused results.
type Stage struct {
	vector  provider.VectorIndex
	lexical provider.LexicalIndex
	engine  *fusion.Engine
	grader  *grader.Grader

	providerTimeout  time.Duration
	gradeConcurrency int
	topK             int
}

// Option configures the Stage.
type Option func(*Stage)

// WithFusionEngine replaces the default fusion engine.
func WithFusionEngine(e *fusion.Engine) Option {
	return func(s *Stage) {
		s.engine = e
	}
}

// WithProviderTimeout sets the independent per-provider search timeout.
func WithProviderTimeout(d time.Duration) Option {
	return func(s *Stage) {
		if d > 0 {
			s.providerTimeout = d
		}
	}
}

// WithGradeConcurrency bounds how many relevance-grading calls run at
// once, respecting the classification service's rate limits.
func WithGradeConcurrency(n int) Option {
	return func(s *Stage) {
		if n > 0 {
			s.gradeConcurrency = n
		}
	}
}

// WithTopK sets the default fused-list size when the query does not carry
// its own top-k.
func WithTopK(k int) Option {
	return func(s *Stage) {
		if k > 0 {
			s.topK = k
		}
	}
}

// New creates a retrieval stage over the given providers.
func New(vector provider.VectorIndex, lexical provider.LexicalIndex, g *grader.Grader, opts ...Option) *Stage {
	s := &Stage{
		vector:           vector,
		lexical:          lexical,
		engine:           fusion.New(),
		grader:           g,
		providerTimeout:  defaultProviderTimeout,
		gradeConcurrency: defaultGradeConcurrency,
		topK:             defaultTopK,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Retrieve runs one retrieval round: fan-out, fusion, relevance grading.
// keywords optionally extends the lexical leg with expansion terms.
//
// A single failing provider degrades the round instead of failing it; only
// when every requested leg fails does Retrieve return ErrAllProvidersFailed.
func (s *Stage) Retrieve(ctx context.Context, q document.Query, mode Mode, keywords []string) (*Result, error) {
	ctx, span := trace.Tracer.Start(ctx, "hybrid_retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("rag.retrieval.mode", string(mode)))

	topK := q.TopK
	if topK <= 0 {
		topK = s.topK
	}
	fetch := topK * sourceFetchFactor

	lists, degraded, err := s.fanOut(ctx, q.Text, mode, keywords, fetch)
	if err != nil {
		return nil, err
	}

	fused := s.engine.Fuse(lists...)
	if len(fused) > topK {
		fused = fused[:topK]
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	accepted, decisions, err := s.gradeDocuments(ctx, q.Text, fused)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("rag.retrieval.fused", len(fused)),
		attribute.Int("rag.retrieval.accepted", len(accepted)),
	)
	return &Result{
		Accepted:  accepted,
		Fused:     fused,
		Decisions: decisions,
		Lists:     lists,
		Degraded:  degraded,
	}, nil
}

// leg is one provider fan-out target.
type leg struct {
	source document.Source
	search func(ctx context.Context) ([]provider.Item, error)
}

// fanOut queries the requested legs concurrently, each under its own
// timeout, and keeps whichever lists survive.
func (s *Stage) fanOut(ctx context.Context, text string, mode Mode, keywords []string, fetch int) ([]fusion.List, []document.Source, error) {
	legs := []leg{{
		source: document.SourceVector,
		search: func(ctx context.Context) ([]provider.Item, error) {
			return s.vector.Search(ctx, text, fetch)
		},
	}}
	if mode != ModeVectorOnly {
		legs = append(legs, leg{
			source: document.SourceLexical,
			search: func(ctx context.Context) ([]provider.Item, error) {
				return s.lexical.Search(ctx, text, keywords, fetch)
			},
		})
	}

	type legResult struct {
		source document.Source
		items  []provider.Item
		err    error
	}
	results := make([]legResult, len(legs))

	// A failing leg must never sink the round, so leg errors are captured
	// in results rather than returned through the group.
	group, groupCtx := errgroup.WithContext(ctx)
	for i, l := range legs {
		group.Go(func() error {
			legCtx, cancel := context.WithTimeout(groupCtx, s.providerTimeout)
			defer cancel()
			items, err := l.search(legCtx)
			if err != nil && errors.Is(legCtx.Err(), context.DeadlineExceeded) {
				err = fmt.Errorf("%s leg: %w", l.source, provider.ErrTimeout)
			}
			results[i] = legResult{source: l.source, items: items, err: err}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var lists []fusion.List
	var degraded []document.Source
	for _, r := range results {
		if r.err != nil {
			log.Warnf("retrieval degraded: %s provider failed: %v", r.source, r.err)
			degraded = append(degraded, r.source)
			continue
		}
		lists = append(lists, fusion.List{Source: r.source, Items: r.items})
	}
	if len(lists) == 0 {
		return nil, degraded, fmt.Errorf("%w: %d leg(s) down", ErrAllProvidersFailed, len(degraded))
	}
	return lists, degraded, nil
}

// gradeDocuments grades each fused candidate concurrently under the
// configured concurrency bound. Grading is fail-closed: a candidate whose
// classification call fails is recorded as irrelevant and dropped, never
// blocking the batch.
func (s *Stage) gradeDocuments(ctx context.Context, queryText string, fused []*document.Candidate) ([]*document.Candidate, []grader.Decision, error) {
	if len(fused) == 0 {
		return nil, nil, nil
	}

	pool, err := ants.NewPool(s.gradeConcurrency)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create grading pool: %w", err)
	}
	defer pool.Release()

	decisions := make([]grader.Decision, len(fused))
	var wg sync.WaitGroup
	for i, cand := range fused {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			d, gerr := s.grader.GradeRelevance(ctx, queryText, cand)
			if gerr != nil {
				log.Warnf("relevance grading failed for %s, treating as irrelevant: %v", cand.DocumentID, gerr)
				d = grader.Decision{
					TargetID: cand.DocumentID,
					Kind:     grader.KindRelevance,
					Verdict:  grader.VerdictIrrelevant,
				}
			}
			decisions[i] = d
		}
		if perr := pool.Submit(task); perr != nil {
			wg.Done()
			decisions[i] = grader.Decision{
				TargetID: cand.DocumentID,
				Kind:     grader.KindRelevance,
				Verdict:  grader.VerdictIrrelevant,
			}
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	accepted := make([]*document.Candidate, 0, len(fused))
	for i, cand := range fused {
		if decisions[i].Verdict == grader.VerdictRelevant {
			accepted = append(accepted, cand)
		}
	}
	return accepted, decisions, nil
}
