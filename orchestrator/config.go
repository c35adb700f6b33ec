//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package orchestrator

import "time"

// Config carries the orchestration budgets and tunables. It is copied at
// construction time; mutating it afterwards has no effect on a running
// Orchestrator.
type Config struct {
	// TopK is the fused-list size used when a request does not set its own.
	TopK int

	// MaxRewrites bounds how many query rewrites one request may consume.
	MaxRewrites int

	// MaxAttempts bounds the generate-and-grade cycles per request,
	// counting the first attempt.
	MaxAttempts int

	// MinRelevant is the smallest accepted-candidate count that lets a
	// retrieval round proceed to generation.
	MinRelevant int

	// GenerateTimeout bounds a single answer-generation call.
	GenerateTimeout time.Duration

	// Temperature is passed to the generator model.
	Temperature float64

	// GenerationRetry governs retries of transient generation failures
	// within one attempt.
	GenerationRetry RetryPolicy
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TopK:            5,
		MaxRewrites:     2,
		MaxAttempts:     3,
		MinRelevant:     1,
		GenerateTimeout: 30 * time.Second,
		Temperature:     0,
		GenerationRetry: RetryPolicy{
			MaxAttempts:     2,
			InitialInterval: 200 * time.Millisecond,
			BackoffFactor:   2,
			MaxInterval:     2 * time.Second,
		},
	}
}

// sanitize fills zero values with defaults so a partially built Config
// cannot disable the budgets by accident.
func (c Config) sanitize() Config {
	def := DefaultConfig()
	if c.TopK <= 0 {
		c.TopK = def.TopK
	}
	if c.MaxRewrites < 0 {
		c.MaxRewrites = def.MaxRewrites
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.MinRelevant <= 0 {
		c.MinRelevant = def.MinRelevant
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = def.GenerateTimeout
	}
	if c.GenerationRetry.MaxAttempts <= 0 {
		c.GenerationRetry = def.GenerationRetry
	}
	return c
}
