//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package document defines the value types that flow through the retrieval
// and orchestration pipeline.
package document

// Source identifies the retrieval backend that produced a ranked item.
type Source string

// Known retrieval sources.
const (
	SourceVector  Source = "vector"
	SourceLexical Source = "lexical"
	SourceWeb     Source = "web"
)

// Provenance records which source or combination of sources produced a
// candidate after fusion.
type Provenance string

// Provenance values. A candidate found by both the vector and the lexical
// index is marked ProvenanceBoth before fusion ranking is finalized.
const (
	ProvenanceVector  Provenance = "vector"
	ProvenanceLexical Provenance = "lexical"
	ProvenanceBoth    Provenance = "both"
	ProvenanceWeb     Provenance = "web"
)

// Query is an immutable retrieval request value. Rewrites produce new Query
// values; the original is never mutated.
type Query struct {
	// Text is the natural-language question.
	Text string

	// SessionID identifies the originating session.
	SessionID string

	// TopK limits how many fused candidates are kept. Zero means the
	// configured default.
	TopK int
}

// WithText returns a copy of the query carrying new text.
func (q Query) WithText(text string) Query {
	q.Text = text
	return q
}

// Candidate is one retrieved document chunk, annotated with per-source and
// fused ranking information. Candidates live for a single retrieval attempt
// and are discarded after grading.
type Candidate struct {
	// DocumentID is the natural key across sources. Two candidates with the
	// same DocumentID from different sources are merged before fusion
	// ranking is finalized.
	DocumentID string

	// Content is the chunk text used as generation context.
	Content string

	// Provenance records which source(s) produced this candidate.
	Provenance Provenance

	// SourceRanks holds the 1-based rank the candidate had in each source
	// list it appeared in.
	SourceRanks map[Source]int

	// SourceScores holds the raw per-source scores, when the source
	// reported any.
	SourceScores map[Source]float64

	// FusedRank is the 1-based position after rank fusion. It is a total
	// order: ties are broken deterministically by the fusion engine.
	FusedRank int

	// FusedScore is the accumulated reciprocal-rank score.
	FusedScore float64
}

// FromSource reports whether the candidate was produced by the given source.
func (c *Candidate) FromSource(s Source) bool {
	if c.SourceRanks == nil {
		return false
	}
	_, ok := c.SourceRanks[s]
	return ok
}

// GenerationResult is the answer produced by the generation service for one
// retrieval round.
type GenerationResult struct {
	// AnswerText is the generated answer.
	AnswerText string

	// CitedDocumentIDs lists the candidate document IDs that were supplied
	// as context. Always a subset of the round's accepted candidates.
	CitedDocumentIDs []string
}
