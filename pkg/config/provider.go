package config

import (
	"os"
	"sort"
	"strings"
)

const (
	apiKeySuffix   = "_API_KEY"
	endpointSuffix = "_ENDPOINT"
)

// ProviderKind selects the wire protocol used for a provider.
type ProviderKind string

const (
	// KindOpenAICompatible speaks the OpenAI chat completions API at BaseURL.
	KindOpenAICompatible ProviderKind = "openai_compatible"
	// KindAzure speaks Azure OpenAI; the endpoint must come from the request or environment.
	KindAzure ProviderKind = "azure"
)

// AzureAPIVersion is the Azure OpenAI API version requested.
const AzureAPIVersion = "2024-10-21"

// Provider describes an LLM provider selectable in the UI.
type Provider struct {
	ID          string
	DisplayName string
	Kind        ProviderKind
	BaseURL     string
	Models      []string
}

// DefaultModel returns the provider's first configured model, or "".
func (p Provider) DefaultModel() string {
	if len(p.Models) == 0 {
		return ""
	}
	return p.Models[0]
}

var providers = []Provider{
	{
		ID:          "openai",
		DisplayName: "OpenAI",
		Kind:        KindOpenAICompatible,
		BaseURL:     "https://api.openai.com/v1",
		Models:      []string{"gpt-4o", "gpt-4", "gpt-3.5-turbo", "o3-mini"},
	},
	{
		ID:          "azure_openai",
		DisplayName: "Azure OpenAI",
		Kind:        KindAzure,
		Models:      []string{"gpt-4o", "gpt-4", "gpt-3.5-turbo"},
	},
	{
		ID:          "anthropic",
		DisplayName: "Anthropic",
		Kind:        KindOpenAICompatible,
		BaseURL:     "https://api.anthropic.com/v1/",
		Models:      []string{"claude-3-5-sonnet-20241022", "claude-3-5-sonnet-20240620", "claude-3-opus-20240229"},
	},
	{
		ID:          "deepseek",
		DisplayName: "DeepSeek",
		Kind:        KindOpenAICompatible,
		BaseURL:     "https://api.deepseek.com/v1",
		Models:      []string{"deepseek-chat", "deepseek-reasoner"},
	},
	{
		ID:          "google",
		DisplayName: "Google",
		Kind:        KindOpenAICompatible,
		BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai/",
		Models:      []string{"gemini-2.0-flash", "gemini-2.0-flash-thinking-exp", "gemini-1.5-flash-latest", "gemini-1.5-pro-latest"},
	},
	{
		ID:          "ollama",
		DisplayName: "Ollama",
		Kind:        KindOpenAICompatible,
		BaseURL:     "http://localhost:11434/v1",
		Models:      []string{"qwen2.5:7b", "qwen2.5:14b", "llama2:7b", "deepseek-r1:14b"},
	},
	{
		ID:          "mistral",
		DisplayName: "Mistral",
		Kind:        KindOpenAICompatible,
		BaseURL:     "https://api.mistral.ai/v1",
		Models:      []string{"mistral-large-latest", "mistral-small-latest", "pixtral-large-latest"},
	},
	{
		ID:          "alibaba",
		DisplayName: "Alibaba",
		Kind:        KindOpenAICompatible,
		BaseURL:     "https://dashscope.aliyuncs.com/compatible-mode/v1",
		Models:      []string{"qwen-plus", "qwen-max", "qwen-turbo", "qwen-long"},
	},
	{
		ID:          "moonshot",
		DisplayName: "MoonShot",
		Kind:        KindOpenAICompatible,
		BaseURL:     "https://api.moonshot.cn/v1",
		Models:      []string{"moonshot-v1-32k-vision-preview", "moonshot-v1-8k-vision-preview"},
	},
	{
		ID:          "siliconflow",
		DisplayName: "SiliconFlow",
		Kind:        KindOpenAICompatible,
		BaseURL:     "https://api.siliconflow.cn/v1",
		Models:      []string{"deepseek-ai/DeepSeek-V3", "Qwen/Qwen2.5-72B-Instruct"},
	},
}

// LookupProvider returns the provider registered under id.
func LookupProvider(id string) (Provider, bool) {
	for _, p := range providers {
		if p.ID == id {
			return p, true
		}
	}
	return Provider{}, false
}

// Providers returns all registered providers sorted by ID.
func Providers() []Provider {
	out := make([]Provider, len(providers))
	copy(out, providers)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DisplayNames maps provider ID to human-readable name.
func DisplayNames() map[string]string {
	names := make(map[string]string, len(providers))
	for _, p := range providers {
		names[p.ID] = p.DisplayName
	}
	return names
}

// DisplayName returns the provider's display name, or the ID when unknown.
func DisplayName(id string) string {
	if p, ok := LookupProvider(id); ok {
		return p.DisplayName
	}
	return id
}

// APIKeyEnvVar returns the environment variable holding a provider's key,
// e.g. "openai" -> "OPENAI_API_KEY".
func APIKeyEnvVar(provider string) string {
	return strings.ToUpper(provider) + apiKeySuffix
}

// EndpointEnvVar returns the environment variable overriding a provider's endpoint.
func EndpointEnvVar(provider string) string {
	return strings.ToUpper(provider) + endpointSuffix
}

// ResolveAPIKey applies precedence: explicit value > environment.
// It returns the key ("" when unresolved) and the environment variable consulted.
func ResolveAPIKey(explicit, provider string) (string, string) {
	envVar := APIKeyEnvVar(provider)
	if explicit != "" {
		return explicit, envVar
	}
	return os.Getenv(envVar), envVar
}

// ResolveModel applies precedence: explicit value > provider default.
// Unknown providers resolve to "".
func ResolveModel(explicit, provider string) string {
	if explicit != "" {
		return explicit
	}
	p, ok := LookupProvider(provider)
	if !ok {
		return ""
	}
	return p.DefaultModel()
}

// ResolveBaseURL applies precedence: explicit value > environment > registry.
func ResolveBaseURL(explicit, provider string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EndpointEnvVar(provider)); env != "" {
		return env
	}
	p, _ := LookupProvider(provider)
	return p.BaseURL
}
