package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("MEMORY_BACKEND", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.BindAddr)
	assert.Equal(t, "groq", cfg.LLMProvider)
	assert.Equal(t, "chromem", cfg.MemoryBackend)
	assert.Equal(t, 600, cfg.ContextTokenBudget)
	assert.Equal(t, 8, cfg.ContextCandidates)
	assert.InDelta(t, 0.7, cfg.LLMTemperature, 1e-9)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("APP_BIND_ADDR", ":9999")
	t.Setenv("LLM_PROVIDER", "Anthropic")
	t.Setenv("ANTHROPIC_API_KEY", " sk-test ")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("MEMORY_MAX_RESULTS", "12")
	t.Setenv("APP_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("MEMORY_BACKEND", "hnsw")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.BindAddr)
	assert.Equal(t, "anthropic", cfg.LLMProvider)
	assert.Equal(t, "sk-test", cfg.APIKey())
	assert.InDelta(t, 0.2, cfg.LLMTemperature, 1e-9)
	assert.Equal(t, 12, cfg.MaxResults)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "hnsw", cfg.MemoryBackend)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm_provider: openai
llm_model: gpt-4o-mini
memory_backend: hnsw
context_token_budget: 300
shutdown_timeout: 5s
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("MEMORY_BACKEND", "")
	t.Setenv("CONTEXT_TOKEN_BUDGET", "450")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLMModel)
	assert.Equal(t, "hnsw", cfg.MemoryBackend)
	assert.Equal(t, 450, cfg.ContextTokenBudget)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"bad int":           {"MEMORY_MAX_RESULTS": "many"},
		"bad float":         {"LLM_TEMPERATURE": "warm"},
		"bad duration":      {"APP_SHUTDOWN_TIMEOUT": "soon"},
		"bad provider":      {"LLM_PROVIDER": "parrot"},
		"bad backend":       {"MEMORY_BACKEND": "floppy"},
		"postgres no dsn":   {"MEMORY_BACKEND": "postgres", "DATABASE_URL": ""},
		"negative results":  {"MEMORY_MAX_RESULTS": "-1"},
		"temperature range": {"LLM_TEMPERATURE": "3"},
		"threshold range":   {"MEMORY_SIMILARITY_THRESHOLD": "1.5"},
		"missing file":      {"CONFIG_FILE": "/nonexistent/recall.yaml"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			t.Setenv("LLM_PROVIDER", "")
			t.Setenv("MEMORY_BACKEND", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
