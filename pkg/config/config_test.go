package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(WithDotEnv(), WithLookupEnv(envMap(nil)))
	require.NoError(t, err)

	assert.Equal(t, ProviderGemini, cfg.Provider)
	assert.Empty(t, cfg.Gemini.APIKey)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.False(t, cfg.Tracing.OTel.Enabled)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	configFile := writeFile(t, dir, "guardrails.yaml", `
provider: vertex
model: gemini-2.0-flash
vertex:
  project_id: from-yaml
  location: europe-west4
log:
  level: debug
server:
  read_timeout: 30s
`)
	dotEnv := writeFile(t, dir, ".env", "VERTEX_PROJECT_ID=from-dotenv\nGUARDRAILS_LOG_LEVEL=warn\nGEMINI_API_KEY=dotenv-key\n")

	cfg, err := Load(
		WithConfigFile(configFile),
		WithDotEnv(dotEnv),
		WithLookupEnv(envMap(map[string]string{
			"GUARDRAILS_LOG_LEVEL": "error",
		})),
	)
	require.NoError(t, err)

	assert.Equal(t, ProviderVertex, cfg.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.Model)
	assert.Equal(t, "from-dotenv", cfg.Vertex.ProjectID)
	assert.Equal(t, "europe-west4", cfg.Vertex.Location)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, "dotenv-key", cfg.Gemini.APIKey)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}

func TestLoadConfigFileFromEnv(t *testing.T) {
	configFile := writeFile(t, t.TempDir(), "c.yaml", "provider: openai\n")

	cfg, err := Load(WithDotEnv(), WithLookupEnv(envMap(map[string]string{
		EnvConfigFile: configFile,
	})))
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
}

func TestGeminiKeyFallsBackToAPIKey(t *testing.T) {
	cfg, err := Load(WithDotEnv(), WithLookupEnv(envMap(map[string]string{
		"API_KEY": "  legacy-key  ",
	})))
	require.NoError(t, err)
	assert.Equal(t, "legacy-key", cfg.Gemini.APIKey)

	cfg, err = Load(WithDotEnv(), WithLookupEnv(envMap(map[string]string{
		"API_KEY":        "legacy-key",
		"GEMINI_API_KEY": "gemini-key",
	})))
	require.NoError(t, err)
	assert.Equal(t, "gemini-key", cfg.Gemini.APIKey)
}

func TestMissingDotEnvIsIgnored(t *testing.T) {
	_, err := Load(WithDotEnv(filepath.Join(t.TempDir(), "nope.env")), WithLookupEnv(envMap(nil)))
	assert.NoError(t, err)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{name: "unknown provider", env: map[string]string{"GUARDRAILS_PROVIDER": "bard"}},
		{name: "bad duration", env: map[string]string{"GUARDRAILS_READ_TIMEOUT": "soon"}},
		{name: "bad bool", env: map[string]string{"GUARDRAILS_OTEL_ENABLED": "maybe"}},
		{name: "bad log level", env: map[string]string{"GUARDRAILS_LOG_LEVEL": "loud"}},
		{name: "bad yaml", file: "provider: [gemini"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []LoadOption{WithDotEnv(), WithLookupEnv(envMap(tt.env))}
			if tt.file != "" {
				opts = append(opts, WithConfigFile(writeFile(t, t.TempDir(), "c.yaml", tt.file)))
			}

			_, err := Load(opts...)
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Provider = "  OpenAI "
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ProviderOpenAI, cfg.Provider)

	cfg.Server.WriteTimeout = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}
