// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/entrhq/webpilot/pkg/llm"
	"github.com/entrhq/webpilot/pkg/types"
)

// ErrScriptExhausted is returned once every scripted reply has been used.
var ErrScriptExhausted = errors.New("llmtest: no more scripted replies")

// Reply is one scripted completion.
type Reply struct {
	Content string
	Err     error
}

// Provider replays scripted replies in order and records every request.
type Provider struct {
	Model   string
	BaseURL string

	// Block, when set, makes Complete wait for it to close or for ctx to end.
	Block chan struct{}

	mu       sync.Mutex
	replies  []Reply
	requests [][]*types.Message
}

var _ llm.Provider = (*Provider)(nil)

// New creates a provider that answers with contents in order.
func New(contents ...string) *Provider {
	p := &Provider{Model: "test-model"}
	for _, c := range contents {
		p.replies = append(p.replies, Reply{Content: c})
	}
	return p
}

// Then appends a reply.
func (p *Provider) Then(r Reply) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, r)
	return p
}

// Requests returns copies of the message lists received so far.
func (p *Provider) Requests() [][]*types.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]*types.Message, len(p.requests))
	copy(out, p.requests)
	return out
}

func (p *Provider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	if p.Block != nil {
		select {
		case <-p.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := make([]*types.Message, len(messages))
	for i, m := range messages {
		c := *m
		snapshot[i] = &c
	}
	p.requests = append(p.requests, snapshot)

	if len(p.replies) == 0 {
		return nil, ErrScriptExhausted
	}
	r := p.replies[0]
	p.replies = p.replies[1:]
	if r.Err != nil {
		return nil, r.Err
	}
	return types.NewAssistantMessage(r.Content), nil
}

func (p *Provider) StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *llm.StreamChunk, error) {
	msg, err := p.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}
	ch := make(chan *llm.StreamChunk, 2)
	ch <- &llm.StreamChunk{Role: string(types.RoleAssistant), Content: msg.Content, Type: llm.ContentTypeMessage}
	ch <- &llm.StreamChunk{Finished: true}
	close(ch)
	return ch, nil
}

func (p *Provider) GetModelInfo() *types.ModelInfo {
	return &types.ModelInfo{Provider: "test", Name: p.Model, BaseURL: p.BaseURL}
}

func (p *Provider) GetModel() string   { return p.Model }
func (p *Provider) GetBaseURL() string { return p.BaseURL }
