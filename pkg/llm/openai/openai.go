// Package openai provides an OpenAI-compatible LLM provider.
//
// Every provider in the registry except Azure speaks the OpenAI chat
// completions protocol at its own base URL, so one implementation serves
// them all. Azure uses the SDK's azure request options.
//
// Example:
//
//	// Hosted OpenAI
//	provider, _ := openai.NewProvider("sk-...", openai.WithModel("gpt-4o"))
//
//	// Local Ollama
//	provider, _ := openai.NewProvider("ollama",
//	    openai.WithBaseURL("http://localhost:11434/v1"),
//	    openai.WithModel("qwen2.5:7b"))
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"github.com/entrhq/webpilot/pkg/config"
	"github.com/entrhq/webpilot/pkg/llm"
	"github.com/entrhq/webpilot/pkg/llm/parser"
	"github.com/entrhq/webpilot/pkg/logging"
	"github.com/entrhq/webpilot/pkg/metrics"
	"github.com/entrhq/webpilot/pkg/types"
)

const (
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"

	defaultModel = "gpt-4o"
)

var debugLog = logging.MustLogger("llm")

// Provider implements llm.Provider for OpenAI-compatible APIs.
type Provider struct {
	client      openai.Client
	httpClient  *http.Client
	name        string
	apiKey      string
	baseURL     string
	model       string
	temperature *float64
	azure       bool
	modelInfo   *types.ModelInfo
}

// ProviderOption is a function that configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model to use for completions.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL points the provider at an OpenAI-compatible endpoint.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// WithTemperature sets the sampling temperature sent with every request.
func WithTemperature(t float64) ProviderOption {
	return func(p *Provider) {
		p.temperature = &t
	}
}

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithProviderName labels the provider in model info and metrics.
func WithProviderName(name string) ProviderOption {
	return func(p *Provider) {
		p.name = name
	}
}

// WithAzure treats the base URL as an Azure OpenAI resource endpoint.
func WithAzure() ProviderOption {
	return func(p *Provider) {
		p.azure = true
	}
}

// NewProvider creates a provider authenticated with apiKey.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	p := &Provider{
		name:    "openai",
		model:   defaultModel,
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.azure && (p.baseURL == "" || p.baseURL == DefaultBaseURL) {
		return nil, fmt.Errorf("azure provider requires an endpoint")
	}

	requestOpts := []option.RequestOption{option.WithMaxRetries(1)}
	if p.azure {
		requestOpts = append(requestOpts,
			azure.WithEndpoint(p.baseURL, config.AzureAPIVersion),
			azure.WithAPIKey(p.apiKey),
		)
	} else {
		requestOpts = append(requestOpts,
			option.WithAPIKey(p.apiKey),
			option.WithBaseURL(p.baseURL),
		)
	}
	if p.httpClient != nil {
		requestOpts = append(requestOpts, option.WithHTTPClient(p.httpClient))
	}
	p.client = openai.NewClient(requestOpts...)

	p.modelInfo = &types.ModelInfo{
		Provider: p.name,
		Name:     p.model,
		BaseURL:  p.baseURL,
	}
	return p, nil
}

// NewClient builds a provider for a run from the registry and the request's
// overrides. It satisfies llm.Factory.
func NewClient(cfg llm.ClientConfig) (llm.Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	entry, ok := config.LookupProvider(cfg.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", llm.ErrNoProvider, cfg.Provider)
	}

	opts := []ProviderOption{
		WithProviderName(entry.ID),
		WithModel(cfg.Model),
		WithTemperature(cfg.Temperature),
		WithBaseURL(config.ResolveBaseURL(cfg.BaseURL, entry.ID)),
	}
	if entry.Kind == config.KindAzure {
		opts = append(opts, WithAzure())
	}

	return NewProvider(cfg.APIKey, opts...)
}

// StreamCompletion streams the completion for messages.
func (p *Provider) StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *llm.StreamChunk, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages to send")
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: convertToOpenAIMessages(messages),
	}
	if p.temperature != nil {
		params.Temperature = openai.Float(*p.temperature)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	chunks := make(chan *llm.StreamChunk, 10)
	go func() {
		defer close(chunks)
		defer stream.Close()

		thinkingParser := parser.NewThinkingParser()
		firstChunk := true

		for stream.Next() {
			event := stream.Current()
			if len(event.Choices) == 0 {
				continue
			}
			choice := event.Choices[0]

			role := ""
			if firstChunk && choice.Delta.Role != "" {
				role = choice.Delta.Role
				firstChunk = false
			}

			thinking, message := thinkingParser.Parse(choice.Delta.Content)
			if !p.send(ctx, chunks, withRole(thinking, role)) || !p.send(ctx, chunks, withRole(message, role)) {
				return
			}
			if role != "" && thinking == nil && message == nil {
				if !p.send(ctx, chunks, &llm.StreamChunk{Role: role}) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			chunks <- &llm.StreamChunk{Error: fmt.Errorf("completion stream failed: %w", err)}
			return
		}

		thinking, message := thinkingParser.Flush()
		if p.send(ctx, chunks, thinking) && p.send(ctx, chunks, message) {
			p.send(ctx, chunks, &llm.StreamChunk{Finished: true})
		}
	}()

	return chunks, nil
}

func withRole(chunk *llm.StreamChunk, role string) *llm.StreamChunk {
	if chunk != nil {
		chunk.Role = role
	}
	return chunk
}

// send forwards chunk unless ctx ends first. A nil chunk is a no-op.
func (p *Provider) send(ctx context.Context, chunks chan<- *llm.StreamChunk, chunk *llm.StreamChunk) bool {
	if chunk == nil {
		return true
	}
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		chunks <- &llm.StreamChunk{Error: ctx.Err()}
		return false
	}
}

// Complete accumulates the stream into one assistant message. Reasoning
// content is logged at debug level and dropped.
func (p *Provider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	stream, err := p.StreamCompletion(ctx, messages)
	if err != nil {
		metrics.LLMRequests.WithLabelValues(p.name, metrics.OutcomeError).Inc()
		return nil, err
	}

	var content, thinking strings.Builder
	role := ""
	for chunk := range stream {
		if chunk.IsError() {
			metrics.LLMRequests.WithLabelValues(p.name, metrics.OutcomeError).Inc()
			// Drain so the producer goroutine can exit.
			for range stream {
			}
			return nil, chunk.Error
		}
		if chunk.Role != "" {
			role = chunk.Role
		}
		if chunk.IsThinking() {
			thinking.WriteString(chunk.Content)
			continue
		}
		content.WriteString(chunk.Content)
	}
	metrics.LLMRequests.WithLabelValues(p.name, metrics.OutcomeSuccess).Inc()

	if thinking.Len() > 0 {
		debugLog.Debugf("%s reasoning: %s", p.model, thinking.String())
	}

	if role == "" {
		role = string(types.RoleAssistant)
	}
	return &types.Message{
		Role:    types.MessageRole(role),
		Content: content.String(),
	}, nil
}

// GetModelInfo returns information about the model being used.
func (p *Provider) GetModelInfo() *types.ModelInfo {
	return p.modelInfo
}

// GetModel returns the model name being used.
func (p *Provider) GetModel() string {
	return p.model
}

// GetBaseURL returns the base URL being used.
func (p *Provider) GetBaseURL() string {
	return p.baseURL
}

// convertToOpenAIMessages converts our Message format to OpenAI's ChatCompletionMessageParamUnion format.
func convertToOpenAIMessages(messages []*types.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case types.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}

	return out
}
