package types

import (
	"fmt"
	"strings"
)

const (
	// DefaultProvider is used when a run request names no provider.
	DefaultProvider = "google"

	// DefaultTemperature is used when a run request carries no temperature.
	DefaultTemperature = 0.6

	maxTemperature = 2.0
)

// RunRequest describes one agent run as submitted by the UI.
// It is immutable once admitted by the supervisor.
type RunRequest struct {
	// Task is the natural-language instruction for the agent.
	Task string `json:"task"`

	// Provider is the LLM provider identifier (e.g. "openai", "google").
	Provider string `json:"llm_provider"`

	// ModelName overrides the provider's default model when non-empty.
	ModelName string `json:"llm_model_name,omitempty"`

	// Temperature is the sampling temperature. Nil means DefaultTemperature.
	Temperature *float64 `json:"llm_temperature,omitempty"`

	// BaseURL overrides the provider endpoint when non-empty.
	BaseURL string `json:"llm_base_url,omitempty"`

	// APIKey is an explicit credential; when empty it is looked up in the environment.
	APIKey string `json:"llm_api_key,omitempty"`
}

// Normalize fills defaults for omitted fields and trims whitespace.
func (r *RunRequest) Normalize() {
	r.Task = strings.TrimSpace(r.Task)
	r.Provider = strings.TrimSpace(r.Provider)
	if r.Provider == "" {
		r.Provider = DefaultProvider
	}
	r.ModelName = strings.TrimSpace(r.ModelName)
	r.BaseURL = strings.TrimSpace(r.BaseURL)
	r.APIKey = strings.TrimSpace(r.APIKey)
	if r.Temperature == nil {
		t := DefaultTemperature
		r.Temperature = &t
	}
}

// GetTemperature returns the temperature, falling back to DefaultTemperature.
func (r RunRequest) GetTemperature() float64 {
	if r.Temperature == nil {
		return DefaultTemperature
	}
	return *r.Temperature
}

// Validate checks the request after normalization.
func (r RunRequest) Validate() error {
	if r.Task == "" {
		return fmt.Errorf("task is required")
	}
	if t := r.GetTemperature(); t < 0 || t > maxTemperature {
		return fmt.Errorf("llm_temperature must be between 0 and %.1f, got %g", maxTemperature, t)
	}
	return nil
}
