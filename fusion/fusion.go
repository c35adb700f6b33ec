//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package fusion merges independently ranked retrieval lists into a single
// ranking using Reciprocal Rank Fusion.
//
// Fusion is a pure function: identical inputs always produce an identical
// output sequence. Ties are broken deterministically so results are stable
// across runs and testable.
package fusion

import (
	"sort"

	"trpc.group/trpc-go/trpc-rag-go/document"
	"trpc.group/trpc-go/trpc-rag-go/provider"
)

// DefaultK is the standard RRF rank constant.
const DefaultK = 60

// List is one already-ranked input list from a single source. Item order is
// the source ranking, best first (rank 1).
type List struct {
	Source document.Source
	Items  []provider.Item
}

// Engine computes reciprocal-rank fusion over any number of source lists.
type Engine struct {
	k       float64
	weights map[document.Source]float64
}

// Option configures the Engine.
type Option func(*Engine)

// WithK sets the RRF rank constant. Values below 1 fall back to DefaultK.
func WithK(k int) Option {
	return func(e *Engine) {
		if k >= 1 {
			e.k = float64(k)
		}
	}
}

// WithSourceWeight scales the partial scores contributed by one source.
// The default weight for every source is 1.0.
func WithSourceWeight(s document.Source, w float64) Option {
	return func(e *Engine) {
		if w > 0 {
			e.weights[s] = w
		}
	}
}

// New creates a fusion engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		k:       DefaultK,
		weights: make(map[document.Source]float64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fuse merges the given ranked lists into one fusion-ordered candidate
// sequence. Each item accumulates weight/(k+rank) per list it appears in;
// items sharing a document ID across lists are merged into one candidate.
//
// Ordering: descending accumulated score; on equal scores, candidates seen
// by more sources first, then ascending document ID. The output covers the
// union of the input ID sets with no duplicates, and is never truncated
// here: top-k truncation is the caller's job, applied after fusion.
func (e *Engine) Fuse(lists ...List) []*document.Candidate {
	byID := make(map[string]*document.Candidate)

	for _, list := range lists {
		weight := e.sourceWeight(list.Source)
		for i, item := range list.Items {
			rank := i + 1
			cand, ok := byID[item.DocumentID]
			if !ok {
				cand = &document.Candidate{
					DocumentID:   item.DocumentID,
					Content:      item.Content,
					SourceRanks:  make(map[document.Source]int),
					SourceScores: make(map[document.Source]float64),
				}
				byID[item.DocumentID] = cand
			}
			if _, seen := cand.SourceRanks[list.Source]; seen {
				// Duplicate ID inside a single list: keep the best rank.
				continue
			}
			cand.SourceRanks[list.Source] = rank
			cand.SourceScores[list.Source] = item.Score
			cand.FusedScore += weight / (e.k + float64(rank))
		}
	}

	fused := make([]*document.Candidate, 0, len(byID))
	for _, cand := range orderedValues(byID) {
		cand.Provenance = provenanceOf(cand)
		fused = append(fused, cand)
	}

	sort.SliceStable(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if len(a.SourceRanks) != len(b.SourceRanks) {
			return len(a.SourceRanks) > len(b.SourceRanks)
		}
		return a.DocumentID < b.DocumentID
	})

	for i, cand := range fused {
		cand.FusedRank = i + 1
	}
	return fused
}

// sourceWeight returns the configured weight for a source, defaulting to 1.
func (e *Engine) sourceWeight(s document.Source) float64 {
	if w, ok := e.weights[s]; ok {
		return w
	}
	return 1.0
}

// orderedValues returns the map values in deterministic key order so map
// iteration order never leaks into the (stable) sort.
func orderedValues(byID map[string]*document.Candidate) []*document.Candidate {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*document.Candidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out
}

// provenanceOf derives the candidate provenance from the sources that
// ranked it: both index sources collapse to ProvenanceBoth, web results
// keep ProvenanceWeb, a single index source keeps its own label.
func provenanceOf(c *document.Candidate) document.Provenance {
	_, vec := c.SourceRanks[document.SourceVector]
	_, lex := c.SourceRanks[document.SourceLexical]
	_, web := c.SourceRanks[document.SourceWeb]
	switch {
	case vec && lex:
		return document.ProvenanceBoth
	case web:
		return document.ProvenanceWeb
	case vec:
		return document.ProvenanceVector
	case lex:
		return document.ProvenanceLexical
	default:
		return ""
	}
}
