package herbex

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/herbex/llm"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"HERBEX_DB_PATH", "HERBEX_CHAT_PROVIDER", "HERBEX_CHAT_MODEL",
		"HERBEX_CHAT_BASE_URL", "HERBEX_CHAT_API_KEY",
		"OPENAI_API_KEY", "GROQ_API_KEY", "GEMINI_API_KEY", "ZHIPU_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "Data_llm", cfg.Input)
	assert.Equal(t, "entity_types.txt", cfg.EntityTypesPath)
	assert.Equal(t, "relation_types.txt", cfg.RelationTypesPath)
	assert.Equal(t, "output_results", cfg.Output.Dir)
	assert.Equal(t, []string{"csv", "xlsx"}, cfg.Output.Summaries)
	assert.True(t, cfg.Validation)
	assert.Equal(t, "auto", cfg.Mode)
	assert.Equal(t, 1, cfg.Passes)
	// GLM models are served by the zhipu preset, not api.openai.com.
	assert.Equal(t, "zhipu", cfg.Chat.Provider)
	assert.Equal(t, "glm-4", cfg.Chat.Model)
	assert.Empty(t, cfg.Chat.BaseURL)
	assert.True(t, llm.RequiresAPIKey(cfg.Chat.Provider))
	assert.Equal(t, 0.3, cfg.Chat.Temperature)
	assert.Equal(t, 4096, cfg.Chat.MaxTokens)

	window, threshold := cfg.Convergence.Resolve()
	assert.Equal(t, 10, window)
	assert.Equal(t, 0.9, threshold)
}

func TestProfileSmall(t *testing.T) {
	c := ConvergenceConfig{Profile: "Small", Threshold: 0.5, Window: 40}
	window, threshold := c.Resolve()
	assert.Equal(t, 3, window)
	assert.Equal(t, 0.95, threshold)
}

func TestLoadConfigYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "herbex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
input: corpus
validation: false
mode: strict
range:
  start: 2
  end: 5
convergence:
  profile: small
chat:
  provider: zhipu
  model: glm-4-flash
  requests_per_second: 2
output:
  dir: out
  summaries: [csv]
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "corpus", cfg.Input)
	assert.False(t, cfg.Validation)
	assert.Equal(t, "strict", cfg.Mode)
	require.NotNil(t, cfg.Range.Start)
	require.NotNil(t, cfg.Range.End)
	assert.Equal(t, 2, *cfg.Range.Start)
	assert.Equal(t, 5, *cfg.Range.End)
	assert.Equal(t, "zhipu", cfg.Chat.Provider)
	assert.Equal(t, 2.0, cfg.Chat.RequestsPerSecond)
	assert.Equal(t, []string{"csv"}, cfg.Output.Summaries)
	// Unset keys keep their defaults.
	assert.Equal(t, "entity_types.txt", cfg.EntityTypesPath)
	assert.Equal(t, 4096, cfg.Chat.MaxTokens)

	window, threshold := cfg.Convergence.Resolve()
	assert.Equal(t, 3, window)
	assert.Equal(t, 0.95, threshold)
}

func TestLoadConfigJSON(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "herbex.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"input": "one.txt", "passes": 3, "convergence": {"threshold": 0.8, "window": 4}}`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "one.txt", cfg.Input)
	assert.Equal(t, 3, cfg.Passes)
	window, threshold := cfg.Convergence.Resolve()
	assert.Equal(t, 4, window)
	assert.Equal(t, 0.8, threshold)
}

func TestLoadConfigErrors(t *testing.T) {
	clearEnv(t)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("passes: [not, a, number]"), 0o644))
	_, err = LoadConfig(bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestApplyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HERBEX_CHAT_PROVIDER", "groq")
	t.Setenv("HERBEX_CHAT_MODEL", "llama-3.1-8b-instant")
	t.Setenv("HERBEX_DB_PATH", "/tmp/journal.db")
	t.Setenv("GROQ_API_KEY", "gsk-test")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "groq", cfg.Chat.Provider)
	assert.Equal(t, "llama-3.1-8b-instant", cfg.Chat.Model)
	assert.Equal(t, "/tmp/journal.db", cfg.DBPath)
	assert.Equal(t, "gsk-test", cfg.Chat.APIKey)

	clearEnv(t)
	t.Setenv("ZHIPU_API_KEY", "zp-test")
	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "zhipu", cfg.Chat.Provider)
	assert.Equal(t, "zp-test", cfg.Chat.APIKey)

	t.Setenv("HERBEX_CHAT_API_KEY", "explicit")
	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "explicit", cfg.Chat.APIKey)
}

func TestValidate(t *testing.T) {
	good := DefaultConfig()
	good.Chat.APIKey = "sk-test"
	require.NoError(t, good.Validate())

	local := DefaultConfig()
	local.Chat.Provider = "ollama"
	assert.NoError(t, local.Validate(), "local providers need no key")

	noKey := DefaultConfig()
	assert.ErrorIs(t, noKey.Validate(), ErrMissingCredentials)

	bad := DefaultConfig()
	bad.Chat.APIKey = "sk-test"
	bad.Input = ""
	bad.Mode = "simple"
	bad.Passes = -1
	bad.Convergence.Threshold = 1.5
	bad.Convergence.Window = 0
	bad.Output.Summaries = []string{"csv", "parquet"}
	err := bad.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.False(t, errors.Is(err, ErrMissingCredentials))
	for _, want := range []string{"input path", "unknown mode", "passes", "threshold", "window", "parquet"} {
		assert.Contains(t, err.Error(), want)
	}
}
