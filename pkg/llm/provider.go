// Package llm defines the chat-completion abstraction the browser agent
// talks to, independent of any particular vendor.
//
// Example usage:
//
//	provider, err := openai.NewClient(llm.ClientConfig{
//	    Provider:    "openai",
//	    Model:       "gpt-4o",
//	    Temperature: 0.6,
//	    APIKey:      os.Getenv("OPENAI_API_KEY"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reply, err := provider.Complete(ctx, []*types.Message{
//	    types.NewSystemMessage("You are a browser agent."),
//	    types.NewUserMessage("Open example.com"),
//	})
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/webpilot/pkg/types"
)

// ErrNoProvider is returned when a client is requested for an unregistered provider.
var ErrNoProvider = errors.New("unsupported llm provider")

// Provider defines the interface for LLM integrations.
//
// Providers handle API communication and return plain StreamChunks. The
// agent layer owns prompts, history and action parsing.
type Provider interface {
	// StreamCompletion sends messages and streams back response chunks.
	//
	// The channel is closed when streaming completes or fails. Stream-time
	// errors arrive as chunks with Error set; the returned error covers only
	// failures to start the request.
	StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *StreamChunk, error)

	// Complete accumulates StreamCompletion into a single assistant message.
	// Reasoning ("thinking") content is not part of the returned message.
	Complete(ctx context.Context, messages []*types.Message) (*types.Message, error)

	GetModelInfo() *types.ModelInfo
	GetModel() string
	GetBaseURL() string
}

// ClientConfig carries everything needed to construct a Provider for a run.
type ClientConfig struct {
	Provider    string
	Model       string
	Temperature float64
	BaseURL     string
	APIKey      string
}

// Validate checks the fields every provider requires.
func (c ClientConfig) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("%w: provider is empty", ErrNoProvider)
	}
	if c.Model == "" {
		return fmt.Errorf("no model configured for provider %q", c.Provider)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", c.Temperature)
	}
	return nil
}

// Factory builds a Provider from a ClientConfig.
type Factory func(ClientConfig) (Provider, error)
