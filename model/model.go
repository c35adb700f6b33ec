//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package model provides the interface for the LLM backends used by the
// orchestrator: classification (routing, grading) and generation (answers,
// query rewrites) both go through the same Model abstraction.
package model

import "context"

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat message.
type Message struct {
	Role    Role
	Content string
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Request is a single model invocation.
type Request struct {
	// Messages is the prompt, system message first by convention.
	Messages []Message

	// Temperature overrides the sampling temperature when non-nil.
	Temperature *float64

	// MaxTokens caps the completion length when positive.
	MaxTokens int
}

// Response is the final (non-streaming) completion for a request.
type Response struct {
	// Text is the completion content.
	Text string
}

// Info contains basic information about a Model.
type Info struct {
	Name string
}

// Model is the interface for all language model backends.
//
// Implementations translate transport failures into the provider package's
// failure taxonomy (ErrTimeout, ErrUnavailable) so the orchestrator can
// distinguish retryable infrastructure errors from content errors.
type Model interface {
	// GenerateContent generates the completion for the given request.
	GenerateContent(ctx context.Context, request *Request) (*Response, error)

	// Info returns basic information about the model.
	Info() Info
}
