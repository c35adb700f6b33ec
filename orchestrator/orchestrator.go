//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package orchestrator drives the self-correcting answer loop: route the
// question, retrieve and grade documents, generate an answer, grade the
// answer, and either respond or spend a query rewrite or the single web
// fallback. Every loop is bounded, so a request always reaches a terminal
// result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"trpc.group/trpc-go/trpc-rag-go/cache"
	"trpc.group/trpc-go/trpc-rag-go/document"
	"trpc.group/trpc-go/trpc-rag-go/fusion"
	"trpc.group/trpc-go/trpc-rag-go/grader"
	"trpc.group/trpc-go/trpc-rag-go/log"
	"trpc.group/trpc-go/trpc-rag-go/model"
	"trpc.group/trpc-go/trpc-rag-go/provider"
	"trpc.group/trpc-go/trpc-rag-go/retrieval"
	"trpc.group/trpc-go/trpc-rag-go/rewriter"
	"trpc.group/trpc-go/trpc-rag-go/router"
	"trpc.group/trpc-go/trpc-rag-go/telemetry/trace"
)

// Sentinel errors returned by Answer.
var (
	// ErrEmptyQuery reports a request without question text.
	ErrEmptyQuery = errors.New("empty query text")

	// ErrCancelled reports that the caller's context ended before the
	// request reached a terminal result.
	ErrCancelled = errors.New("request cancelled")
)

// Status is the terminal outcome of a request.
type Status string

// Terminal statuses.
const (
	StatusAnswered            Status = "answered"
	StatusAnsweredViaWeb      Status = "answered_via_web"
	StatusLowConfidence       Status = "answered_low_confidence"
	StatusNoRelevantDocuments Status = "failed_no_relevant_documents"
	StatusGenerationFailed    Status = "failed_generation"
)

// Confidence qualifies an answered result.
type Confidence string

// Confidence levels.
const (
	ConfidenceNormal Confidence = "normal"
	ConfidenceLow    Confidence = "low"
)

// Request is one question to answer.
type Request struct {
	QueryText string
	SessionID string
	// TopK overrides the configured fused-list size when positive.
	TopK int
}

// Result is the terminal outcome of Answer.
type Result struct {
	RequestID        string
	Answer           string
	CitedDocumentIDs []string
	Confidence       Confidence
	Status           Status

	// RewritesUsed and RetriesUsed report how much of the correction
	// budget the request consumed: query rewrites and failed
	// retrieve-or-grade rounds respectively.
	RewritesUsed int
	RetriesUsed  int

	// FromCache marks an answer served from the answer cache.
	FromCache bool
}

// Answered reports whether the result carries a usable answer.
func (r *Result) Answered() bool {
	switch r.Status {
	case StatusAnswered, StatusAnsweredViaWeb, StatusLowConfidence:
		return true
	}
	return false
}

const generateSystemPrompt = `You are an assistant for question-answering tasks. ` +
	`Use the retrieved context to answer the question. ` +
	`If you don't know the answer, just say that you don't know. ` +
	`Use three sentences maximum and keep the answer concise.`

// Orchestrator runs the answer loop over its collaborators. All fields are
// fixed at construction.
type Orchestrator struct {
	cfg       Config
	router    *router.Router
	stage     *retrieval.Stage
	grader    *grader.Grader
	rewriter  *rewriter.Rewriter
	generator model.Model

	web    provider.WebSearch
	cache  *cache.Store
	engine *fusion.Engine
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithConfig replaces the default budgets and tunables.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		o.cfg = cfg.sanitize()
	}
}

// WithWebSearch enables the single-use web fallback.
func WithWebSearch(w provider.WebSearch) Option {
	return func(o *Orchestrator) {
		o.web = w
	}
}

// WithCache enables the answer cache for full-confidence answers.
func WithCache(c *cache.Store) Option {
	return func(o *Orchestrator) {
		o.cache = c
	}
}

// WithFusionEngine replaces the engine used to merge web results into the
// retained retrieval lists.
func WithFusionEngine(e *fusion.Engine) Option {
	return func(o *Orchestrator) {
		o.engine = e
	}
}

// New builds an Orchestrator. generator answers questions; rt, stage, g
// and rw cover routing, retrieval, grading and query rewriting.
func New(generator model.Model, rt *router.Router, stage *retrieval.Stage,
	g *grader.Grader, rw *rewriter.Rewriter, opts ...Option) (*Orchestrator, error) {
	if generator == nil || rt == nil || stage == nil || g == nil || rw == nil {
		return nil, errors.New("orchestrator requires generator, router, stage, grader and rewriter")
	}
	o := &Orchestrator{
		cfg:       DefaultConfig(),
		router:    rt,
		stage:     stage,
		grader:    g,
		rewriter:  rw,
		generator: generator,
		engine:    fusion.New(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

type phase int

const (
	phaseRoute phase = iota
	phaseRetrieve
	phaseWebFallback
	phaseGenerate
	phaseGradeAnswer
	phaseRewrite
	phaseRespond
	phaseFail
)

// runState is the mutable per-request state threaded through the phases.
type runState struct {
	original string
	query    document.Query
	mode     retrieval.Mode
	keywords []string

	lists    []fusion.List
	accepted []*document.Candidate
	gen      *document.GenerationResult

	// attempts counts failed retrieve-or-grade rounds against MaxAttempts.
	rewritesUsed  int
	attempts      int
	webUsed       bool
	viaWeb        bool
	lowConfidence bool

	rewriteReason rewriter.Reason
	failStatus    Status
}

// Answer resolves one question to a terminal result. It returns an error
// only for invalid input or when ctx ends first; every other outcome is a
// Result with a terminal status.
func (o *Orchestrator) Answer(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || strings.TrimSpace(req.QueryText) == "" {
		return nil, ErrEmptyQuery
	}
	requestID := uuid.NewString()
	ctx, span := trace.Tracer.Start(ctx, "answer")
	defer span.End()
	span.SetAttributes(
		attribute.String("rag.request.id", requestID),
		attribute.String("rag.session.id", req.SessionID),
	)

	if o.cache != nil {
		if ans, err := o.cache.Get(ctx, req.QueryText); err == nil {
			log.Debugf("request %s served from answer cache", requestID)
			return &Result{
				RequestID:        requestID,
				Answer:           ans.AnswerText,
				CitedDocumentIDs: ans.CitedDocumentIDs,
				Confidence:       ConfidenceNormal,
				Status:           StatusAnswered,
				FromCache:        true,
			}, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			log.Warnf("answer cache lookup failed: %v", err)
		}
	}

	topK := req.TopK
	if topK <= 0 {
		topK = o.cfg.TopK
	}
	st := &runState{
		original: req.QueryText,
		query:    document.Query{Text: req.QueryText, SessionID: req.SessionID, TopK: topK},
		mode:     retrieval.ModeHybrid,
	}

	res, err := o.run(ctx, requestID, st)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("rag.result.status", string(res.Status)),
		attribute.Int("rag.result.rewrites", res.RewritesUsed),
		attribute.Int("rag.result.retries", res.RetriesUsed),
	)
	return res, nil
}

// run drives the phase machine until a terminal phase. Cancellation is
// honored at every phase boundary.
func (o *Orchestrator) run(ctx context.Context, requestID string, st *runState) (*Result, error) {
	p := phaseRoute
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		var err error
		switch p {
		case phaseRoute:
			p = o.stepRoute(ctx, st)
		case phaseRetrieve:
			p, err = o.stepRetrieve(ctx, st)
		case phaseWebFallback:
			p, err = o.stepWebFallback(ctx, st)
		case phaseGenerate:
			p, err = o.stepGenerate(ctx, st)
		case phaseGradeAnswer:
			p = o.stepGradeAnswer(ctx, st)
		case phaseRewrite:
			p = o.stepRewrite(ctx, st)
		case phaseRespond:
			return o.respond(ctx, requestID, st), nil
		case phaseFail:
			log.Infof("request %s failed: %s (rewrites=%d retries=%d)",
				requestID, st.failStatus, st.rewritesUsed, st.attempts)
			return &Result{
				RequestID:    requestID,
				Status:       st.failStatus,
				RewritesUsed: st.rewritesUsed,
				RetriesUsed:  st.attempts,
			}, nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %v", ErrCancelled, ctxErr)
			}
			return nil, err
		}
	}
}

func (o *Orchestrator) stepRoute(ctx context.Context, st *runState) phase {
	ctx, span := trace.Tracer.Start(ctx, "route")
	defer span.End()
	switch o.router.Route(ctx, st.query) {
	case router.DecisionVectorOnly:
		st.mode = retrieval.ModeVectorOnly
		return phaseRetrieve
	case router.DecisionWebSearch:
		if o.web != nil {
			return phaseWebFallback
		}
		log.Warnf("query routed to web search but no web provider configured, using hybrid retrieval")
		return phaseRetrieve
	default:
		return phaseRetrieve
	}
}

func (o *Orchestrator) stepRetrieve(ctx context.Context, st *runState) (phase, error) {
	res, err := o.stage.Retrieve(ctx, st.query, st.mode, st.keywords)
	if err != nil {
		if errors.Is(err, retrieval.ErrAllProvidersFailed) {
			log.Errorf("retrieval round failed: %v", err)
			return o.nextAfterEmptyRound(st), nil
		}
		return phaseFail, err
	}
	st.lists = res.Lists
	if len(res.Accepted) < o.cfg.MinRelevant {
		return o.nextAfterEmptyRound(st), nil
	}
	st.accepted = res.Accepted
	return phaseGenerate, nil
}

// nextAfterEmptyRound handles a round with no usable documents: it spends
// one round of the retry budget on a rewrite while budget remains, then
// the web fallback, then fails.
func (o *Orchestrator) nextAfterEmptyRound(st *runState) phase {
	st.attempts++
	if st.attempts < o.cfg.MaxAttempts && st.rewritesUsed < o.cfg.MaxRewrites {
		st.rewriteReason = rewriter.ReasonNoRelevantDocuments
		return phaseRewrite
	}
	if o.web != nil && !st.webUsed {
		return phaseWebFallback
	}
	st.failStatus = StatusNoRelevantDocuments
	return phaseFail
}

// stepWebFallback spends the single web search and merges its results into
// whatever source lists the last retrieval round left behind. Web results
// skip relevance grading; the groundedness gate downstream still applies.
func (o *Orchestrator) stepWebFallback(ctx context.Context, st *runState) (phase, error) {
	ctx, span := trace.Tracer.Start(ctx, "web_fallback")
	defer span.End()
	st.webUsed = true
	items, err := o.web.Search(ctx, st.query.Text)
	if err != nil {
		if ctx.Err() != nil {
			return phaseFail, ctx.Err()
		}
		log.Warnf("web fallback failed: %v", err)
	}
	if len(items) == 0 {
		if len(st.accepted) > 0 {
			return phaseGenerate, nil
		}
		st.failStatus = StatusNoRelevantDocuments
		return phaseFail, nil
	}

	lists := make([]fusion.List, 0, len(st.lists)+1)
	lists = append(lists, st.lists...)
	lists = append(lists, fusion.List{Source: document.SourceWeb, Items: items})
	fused := o.engine.Fuse(lists...)
	if len(fused) > st.query.TopK {
		fused = fused[:st.query.TopK]
	}
	st.accepted = fused
	st.viaWeb = true
	return phaseGenerate, nil
}

func (o *Orchestrator) stepGenerate(ctx context.Context, st *runState) (phase, error) {
	gen, err := o.generate(ctx, st)
	if err != nil {
		if ctx.Err() != nil {
			return phaseFail, err
		}
		log.Errorf("answer generation failed: %v", err)
		st.failStatus = StatusGenerationFailed
		return phaseFail, nil
	}
	st.gen = gen
	return phaseGradeAnswer, nil
}

// generate calls the generator once per retry-policy attempt, backing off
// between transient failures. Every accepted candidate is offered as
// context, so all of them are cited.
func (o *Orchestrator) generate(ctx context.Context, st *runState) (*document.GenerationResult, error) {
	ctx, span := trace.Tracer.Start(ctx, "generate")
	defer span.End()
	temp := o.cfg.Temperature
	req := &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage(generateSystemPrompt),
			model.NewUserMessage(fmt.Sprintf("Question: %s\n\nContext:\n%s",
				st.query.Text, contextBlock(st.accepted))),
		},
		Temperature: &temp,
	}

	policy := o.cfg.GenerationRetry
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		genCtx, cancel := context.WithTimeout(ctx, o.cfg.GenerateTimeout)
		rsp, err := o.generator.GenerateContent(genCtx, req)
		cancel()
		if err == nil {
			if text := strings.TrimSpace(rsp.Text); text != "" {
				cited := make([]string, 0, len(st.accepted))
				for _, c := range st.accepted {
					cited = append(cited, c.DocumentID)
				}
				return &document.GenerationResult{AnswerText: text, CitedDocumentIDs: cited}, nil
			}
			err = fmt.Errorf("empty answer: %w", provider.ErrInvalidResponse)
		}
		lastErr = err
		if attempt == policy.MaxAttempts || !policy.Retryable(err) {
			break
		}
		log.Warnf("generation attempt %d failed, retrying: %v", attempt, err)
		if serr := sleep(ctx, policy.NextDelay(attempt)); serr != nil {
			return nil, serr
		}
	}
	return nil, lastErr
}

// stepGradeAnswer gates the generated answer: groundedness first, then
// whether it actually answers the question. Grader failures count against
// the answer, never for it. A failing grade spends one round of the retry
// budget on a rewrite; once the budgets and the web fallback are spent,
// the best-effort answer is returned flagged as low-confidence rather
// than hidden.
func (o *Orchestrator) stepGradeAnswer(ctx context.Context, st *runState) phase {
	ctx, span := trace.Tracer.Start(ctx, "grade_answer")
	defer span.End()
	gd, err := o.grader.GradeGroundedness(ctx, st.accepted, st.gen.AnswerText)
	if err != nil {
		log.Warnf("groundedness check failed, treating answer as ungrounded: %v", err)
	}
	grounded := err == nil && gd.Verdict == grader.VerdictGrounded

	answers := false
	if grounded {
		ad, aerr := o.grader.GradeAnswer(ctx, st.query.Text, st.gen.AnswerText)
		if aerr != nil {
			log.Warnf("answer-addresses-question check failed, treating as not answering: %v", aerr)
		}
		answers = aerr == nil && ad.Verdict == grader.VerdictAnswers
	}
	if grounded && answers {
		return phaseRespond
	}

	st.attempts++
	if st.attempts < o.cfg.MaxAttempts && st.rewritesUsed < o.cfg.MaxRewrites {
		if grounded {
			st.rewriteReason = rewriter.ReasonOffTopic
		} else {
			st.rewriteReason = rewriter.ReasonUngrounded
		}
		return phaseRewrite
	}
	if o.web != nil && !st.webUsed {
		return phaseWebFallback
	}
	st.lowConfidence = true
	return phaseRespond
}

// stepRewrite spends one rewrite. A failing rewriter keeps the query as is
// but still consumes the budget, so the loop stays bounded.
func (o *Orchestrator) stepRewrite(ctx context.Context, st *runState) phase {
	ctx, span := trace.Tracer.Start(ctx, "rewrite")
	defer span.End()
	st.rewritesUsed++
	rw, err := o.rewriter.Rewrite(ctx, st.query, st.rewriteReason)
	if err != nil {
		log.Warnf("query rewrite failed, retrying with unmodified query: %v", err)
	} else {
		st.query = rw.Query
		st.keywords = rw.Keywords
	}
	st.gen = nil
	st.accepted = nil
	return phaseRetrieve
}

func (o *Orchestrator) respond(ctx context.Context, requestID string, st *runState) *Result {
	status := StatusAnswered
	conf := ConfidenceNormal
	switch {
	case st.lowConfidence:
		status = StatusLowConfidence
		conf = ConfidenceLow
	case st.viaWeb:
		status = StatusAnsweredViaWeb
	}

	cited := st.gen.CitedDocumentIDs
	if status == StatusAnswered && o.cache != nil {
		err := o.cache.Set(ctx, st.original, &cache.Answer{
			AnswerText:       st.gen.AnswerText,
			CitedDocumentIDs: cited,
		})
		if err != nil {
			log.Warnf("failed to cache answer: %v", err)
		}
	}

	log.Infof("request %s answered: %s (rewrites=%d retries=%d cited=%d)",
		requestID, status, st.rewritesUsed, st.attempts, len(cited))
	return &Result{
		RequestID:        requestID,
		Answer:           st.gen.AnswerText,
		CitedDocumentIDs: cited,
		Confidence:       conf,
		Status:           status,
		RewritesUsed:     st.rewritesUsed,
		RetriesUsed:      st.attempts,
	}
}

// contextBlock renders the accepted candidates for the generation prompt,
// one block per document labelled with its identifier.
func contextBlock(cands []*document.Candidate) string {
	var b strings.Builder
	for i, c := range cands {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s]\n%s", c.DocumentID, c.Content)
	}
	return b.String()
}
