package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupProvider(t *testing.T) {
	p, ok := LookupProvider("openai")
	require.True(t, ok)
	assert.Equal(t, "OpenAI", p.DisplayName)
	assert.Equal(t, "gpt-4o", p.DefaultModel())
	assert.Equal(t, KindOpenAICompatible, p.Kind)

	_, ok = LookupProvider("unknown")
	assert.False(t, ok)
}

func TestDisplayNames(t *testing.T) {
	names := DisplayNames()

	assert.Equal(t, "Google", names["google"])
	assert.Equal(t, "Azure OpenAI", names["azure_openai"])
	assert.Len(t, names, len(Providers()))

	assert.Equal(t, "Anthropic", DisplayName("anthropic"))
	assert.Equal(t, "mystery", DisplayName("mystery"))
}

func TestProvidersSorted(t *testing.T) {
	list := Providers()
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].ID, list[i].ID)
	}
}

func TestEveryProviderHasModels(t *testing.T) {
	for _, p := range Providers() {
		assert.NotEmpty(t, p.Models, p.ID)
		if p.Kind == KindOpenAICompatible {
			assert.NotEmpty(t, p.BaseURL, p.ID)
		}
	}
}

func TestEnvVarNames(t *testing.T) {
	assert.Equal(t, "OPENAI_API_KEY", APIKeyEnvVar("openai"))
	assert.Equal(t, "AZURE_OPENAI_API_KEY", APIKeyEnvVar("azure_openai"))
	assert.Equal(t, "OLLAMA_ENDPOINT", EndpointEnvVar("ollama"))
}

func TestResolveAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		explicit string
		env      string
		expected string
	}{
		{name: "explicit wins over env", explicit: "ui-key", env: "env-key", expected: "ui-key"},
		{name: "env used when explicit empty", explicit: "", env: "env-key", expected: "env-key"},
		{name: "neither set", explicit: "", env: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DEEPSEEK_API_KEY", tt.env)

			key, envVar := ResolveAPIKey(tt.explicit, "deepseek")
			assert.Equal(t, tt.expected, key)
			assert.Equal(t, "DEEPSEEK_API_KEY", envVar)
		})
	}
}

func TestResolveModel(t *testing.T) {
	assert.Equal(t, "gpt-4", ResolveModel("gpt-4", "openai"))
	assert.Equal(t, "gemini-2.0-flash", ResolveModel("", "google"))
	assert.Equal(t, "", ResolveModel("", "unknown"))
}

func TestResolveBaseURL(t *testing.T) {
	t.Setenv("OLLAMA_ENDPOINT", "")
	assert.Equal(t, "http://localhost:11434/v1", ResolveBaseURL("", "ollama"))

	t.Setenv("OLLAMA_ENDPOINT", "http://gpu-box:11434/v1")
	assert.Equal(t, "http://gpu-box:11434/v1", ResolveBaseURL("", "ollama"))

	assert.Equal(t, "http://explicit/v1", ResolveBaseURL("http://explicit/v1", "ollama"))

	t.Setenv("AZURE_OPENAI_ENDPOINT", "")
	assert.Equal(t, "", ResolveBaseURL("", "azure_openai"))
}
