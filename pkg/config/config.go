package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported providers
const (
	ProviderGemini = "gemini"
	ProviderVertex = "vertex"
	ProviderOpenAI = "openai"
)

// EnvConfigFile names the YAML file to load when no explicit path is given
const EnvConfigFile = "GUARDRAILS_CONFIG"

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds everything the binaries need to build an adapter and its surfaces
type Config struct {
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model"`
	Gemini   GeminiConfig  `yaml:"gemini"`
	Vertex   VertexConfig  `yaml:"vertex"`
	OpenAI   OpenAIConfig  `yaml:"openai"`
	Log      LogConfig     `yaml:"log"`
	Server   ServerConfig  `yaml:"server"`
	Tracing  TracingConfig `yaml:"tracing"`
}

// GeminiConfig configures the Gemini Developer API transport
type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// VertexConfig configures the Vertex AI transport
type VertexConfig struct {
	ProjectID       string `yaml:"project_id"`
	Location        string `yaml:"location"`
	CredentialsFile string `yaml:"credentials_file"`
}

// OpenAIConfig configures the OpenAI transport
type OpenAIConfig struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	ModerationModel string `yaml:"moderation_model"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `yaml:"cors_origins"`
}

// TracingConfig configures the tracing backends
type TracingConfig struct {
	OTel     OTelConfig     `yaml:"otel"`
	Langfuse LangfuseConfig `yaml:"langfuse"`
}

// OTelConfig configures the OTLP exporter
type OTelConfig struct {
	Enabled           bool   `yaml:"enabled"`
	ServiceName       string `yaml:"service_name"`
	CollectorEndpoint string `yaml:"collector_endpoint"`
}

// LangfuseConfig configures Langfuse. Keys are read by the Langfuse SDK from
// LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY.
type LangfuseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Environment string `yaml:"environment"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Provider: ProviderGemini,
		Vertex: VertexConfig{
			Location: "us-central1",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 5 * time.Minute,
			CORSOrigins:  []string{"*"},
		},
		Tracing: TracingConfig{
			OTel: OTelConfig{
				ServiceName:       "llm-guardrails",
				CollectorEndpoint: "localhost:4317",
			},
			Langfuse: LangfuseConfig{
				Environment: "development",
			},
		},
	}
}

type loader struct {
	configFile string
	dotEnv     []string
	lookupEnv  func(string) (string, bool)
}

// LoadOption configures Load
type LoadOption func(*loader)

// WithConfigFile loads the given YAML file instead of $GUARDRAILS_CONFIG
func WithConfigFile(path string) LoadOption {
	return func(l *loader) {
		l.configFile = path
	}
}

// WithDotEnv sets the .env files to read. Missing files are skipped.
func WithDotEnv(paths ...string) LoadOption {
	return func(l *loader) {
		l.dotEnv = paths
	}
}

// WithLookupEnv replaces os.LookupEnv, mainly for tests
func WithLookupEnv(lookup func(string) (string, bool)) LoadOption {
	return func(l *loader) {
		l.lookupEnv = lookup
	}
}

// Load builds a Config from defaults, an optional YAML file, .env files and the
// process environment, in increasing order of precedence
func Load(opts ...LoadOption) (*Config, error) {
	l := &loader{
		dotEnv:    []string{".env"},
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(l)
	}

	cfg := Default()

	configFile := l.configFile
	if configFile == "" {
		configFile, _ = l.lookupEnv(EnvConfigFile)
	}
	if configFile != "" {
		if err := cfg.loadFile(configFile); err != nil {
			return nil, err
		}
	}

	dotEnv := map[string]string{}
	for _, path := range l.dotEnv {
		values, err := godotenv.Read(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		for k, v := range values {
			if _, ok := dotEnv[k]; !ok {
				dotEnv[k] = v
			}
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := l.lookupEnv(key); ok {
			return v, true
		}
		v, ok := dotEnv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the operator
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(target *string, keys ...string) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
				*target = strings.TrimSpace(v)
				return
			}
		}
	}

	str(&c.Provider, "GUARDRAILS_PROVIDER")
	str(&c.Model, "GUARDRAILS_MODEL")
	str(&c.Gemini.APIKey, "GEMINI_API_KEY", "API_KEY")
	str(&c.Gemini.BaseURL, "GEMINI_BASE_URL")
	str(&c.Vertex.ProjectID, "VERTEX_PROJECT_ID", "GOOGLE_CLOUD_PROJECT")
	str(&c.Vertex.Location, "VERTEX_LOCATION")
	str(&c.Vertex.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	str(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	str(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	str(&c.OpenAI.ModerationModel, "OPENAI_MODERATION_MODEL")
	str(&c.Log.Level, "GUARDRAILS_LOG_LEVEL")
	str(&c.Log.Format, "GUARDRAILS_LOG_FORMAT")
	str(&c.Server.Addr, "GUARDRAILS_ADDR")
	str(&c.Tracing.OTel.ServiceName, "OTEL_SERVICE_NAME")
	str(&c.Tracing.OTel.CollectorEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	str(&c.Tracing.Langfuse.Environment, "LANGFUSE_ENVIRONMENT")

	if v, ok := lookup("GUARDRAILS_CORS_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		c.Server.CORSOrigins = splitList(v)
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"GUARDRAILS_READ_TIMEOUT", &c.Server.ReadTimeout},
		{"GUARDRAILS_WRITE_TIMEOUT", &c.Server.WriteTimeout},
	}
	for _, d := range durations {
		v, ok := lookup(d.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, d.key, err)
		}
		*d.target = parsed
	}

	bools := []struct {
		key    string
		target *bool
	}{
		{"GUARDRAILS_OTEL_ENABLED", &c.Tracing.OTel.Enabled},
		{"GUARDRAILS_LANGFUSE_ENABLED", &c.Tracing.Langfuse.Enabled},
	}
	for _, b := range bools {
		v, ok := lookup(b.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, b.key, err)
		}
		*b.target = parsed
	}

	return nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate checks the configuration. A missing credential is not an error: it
// is reported by the transport when a call is made.
func (c *Config) Validate() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	switch c.Provider {
	case ProviderGemini, ProviderVertex, ProviderOpenAI:
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}

	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Log.Level)
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}

	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("%w: server timeouts must be positive", ErrInvalidConfig)
	}

	return nil
}
