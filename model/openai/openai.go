//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package openai provides the OpenAI-backed implementation of model.Model.
// It also works with any OpenAI-compatible endpoint via WithBaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"trpc.group/trpc-go/trpc-rag-go/model"
	"trpc.group/trpc-go/trpc-rag-go/provider"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gpt-4o-mini"

// Model implements model.Model on top of the OpenAI chat completions API.
type Model struct {
	name    string
	apiKey  string
	baseURL string
	client  openai.Client
}

// Option configures the Model.
type Option func(*Model)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(m *Model) {
		m.apiKey = key
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(baseURL string) Option {
	return func(m *Model) {
		m.baseURL = baseURL
	}
}

// New creates an OpenAI model client for the given model name.
func New(name string, opts ...Option) *Model {
	if name == "" {
		name = DefaultModel
	}
	m := &Model{name: name}
	for _, opt := range opts {
		opt(m)
	}
	var clientOpts []option.RequestOption
	if m.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(m.apiKey))
	}
	if m.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(m.baseURL))
	}
	m.client = openai.NewClient(clientOpts...)
	return m
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name}
}

// GenerateContent implements model.Model with a single non-streaming chat
// completion call. Transport failures are mapped onto the provider failure
// taxonomy; an empty completion maps to provider.ErrInvalidResponse.
func (m *Model) GenerateContent(ctx context.Context, request *model.Request) (*model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}

	chatRequest := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(m.name),
		Messages: convertMessages(request.Messages),
	}
	if request.Temperature != nil {
		chatRequest.Temperature = openai.Float(*request.Temperature)
	}
	if request.MaxTokens > 0 {
		chatRequest.MaxTokens = openai.Int(int64(request.MaxTokens))
	}

	completion, err := m.client.Chat.Completions.New(ctx, chatRequest)
	if err != nil {
		return nil, classifyErr(err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("model %s returned no choices: %w", m.name, provider.ErrInvalidResponse)
	}
	return &model.Response{Text: completion.Choices[0].Message.Content}, nil
}

// convertMessages maps model messages onto the OpenAI union type.
func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			result = append(result, openai.AssistantMessage(msg.Content))
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}
	return result
}

// classifyErr maps transport errors onto the provider failure taxonomy.
func classifyErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("openai: %w", provider.ErrTimeout)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("openai: %w", provider.ErrTimeout)
	}
	return fmt.Errorf("openai: %v: %w", err, provider.ErrUnavailable)
}
