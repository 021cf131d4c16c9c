package guardrailsdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/run-bigpig/llm-guardrails/pkg/config"
	"github.com/run-bigpig/llm-guardrails/pkg/guardrails"
	"github.com/run-bigpig/llm-guardrails/pkg/interfaces"
	"github.com/run-bigpig/llm-guardrails/pkg/llm/gemini"
	"github.com/run-bigpig/llm-guardrails/pkg/llm/openai"
	"github.com/run-bigpig/llm-guardrails/pkg/llm/vertex"
	"github.com/run-bigpig/llm-guardrails/pkg/logging"
	"github.com/run-bigpig/llm-guardrails/pkg/tracing"
)

// Runtime is everything a binary needs to serve guardrail checks
type Runtime struct {
	Config    *config.Config
	Logger    logging.Logger
	Transport interfaces.Transport
	Guardrail *guardrails.Adapter

	otel     *tracing.OTelTracer
	langfuse *tracing.LangfuseTracer
	closers  []io.Closer
}

// NewLogger builds the logger described by the log configuration
func NewLogger(cfg config.LogConfig) *logging.ZeroLogger {
	options := []logging.Option{}
	if cfg.Format == "json" {
		options = append(options, logging.WithJSON(os.Stderr))
	}
	options = append(options, logging.WithLevel(cfg.Level))
	return logging.New(options...)
}

// NewTransport builds the provider transport selected by cfg.Provider. Missing
// credentials are not reported here; the transport returns them per call.
func NewTransport(cfg *config.Config, logger logging.Logger) (interfaces.Transport, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		options := []gemini.Option{gemini.WithLogger(logger)}
		if cfg.Model != "" {
			options = append(options, gemini.WithModel(cfg.Model))
		}
		if cfg.Gemini.BaseURL != "" {
			options = append(options, gemini.WithBaseURL(cfg.Gemini.BaseURL))
		}
		return gemini.NewClient(cfg.Gemini.APIKey, options...), nil

	case config.ProviderVertex:
		options := []vertex.ClientOption{vertex.WithLogger(logger)}
		if cfg.Model != "" {
			options = append(options, vertex.WithModel(cfg.Model))
		}
		if cfg.Vertex.Location != "" {
			options = append(options, vertex.WithLocation(cfg.Vertex.Location))
		}
		if cfg.Vertex.CredentialsFile != "" {
			options = append(options, vertex.WithCredentialsFile(cfg.Vertex.CredentialsFile))
		}
		return vertex.NewClient(cfg.Vertex.ProjectID, options...), nil

	case config.ProviderOpenAI:
		options := []openai.Option{openai.WithLogger(logger)}
		if cfg.Model != "" {
			options = append(options, openai.WithModel(cfg.Model))
		}
		if cfg.OpenAI.BaseURL != "" {
			options = append(options, openai.WithBaseURL(cfg.OpenAI.BaseURL))
		}
		if cfg.OpenAI.ModerationModel != "" {
			options = append(options, openai.WithModerationModel(cfg.OpenAI.ModerationModel))
		}
		return openai.NewClient(cfg.OpenAI.APIKey, options...), nil

	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

// New wires a Runtime from configuration: logger, transport, tracing
// middleware and the adapter on top
func New(cfg *config.Config) (*Runtime, error) {
	return NewWithLogger(cfg, NewLogger(cfg.Log))
}

// NewWithLogger is New with a caller supplied logger
func NewWithLogger(cfg *config.Config, logger logging.Logger) (*Runtime, error) {
	transport, err := NewTransport(cfg, logger)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Config: cfg,
		Logger: logger,
	}
	if closer, ok := transport.(io.Closer); ok {
		rt.closers = append(rt.closers, closer)
	}

	rt.otel, err = tracing.NewOTelTracer(tracing.OTelConfig{
		Enabled:           cfg.Tracing.OTel.Enabled,
		ServiceName:       cfg.Tracing.OTel.ServiceName,
		CollectorEndpoint: cfg.Tracing.OTel.CollectorEndpoint,
	})
	if err != nil {
		return nil, err
	}
	if rt.otel.Enabled() {
		transport = tracing.NewTransportOTelMiddleware(transport, rt.otel)
	}

	rt.langfuse = tracing.NewLangfuseTracer(tracing.LangfuseConfig{
		Enabled:     cfg.Tracing.Langfuse.Enabled,
		Environment: cfg.Tracing.Langfuse.Environment,
	})
	if rt.langfuse.Enabled() {
		transport = tracing.NewTransportLangfuseMiddleware(transport, rt.langfuse, logger)
	}

	rt.Transport = transport
	rt.Guardrail = guardrails.New(transport, guardrails.WithLogger(logger))

	logger.Debug(context.Background(), "Guardrail runtime ready", map[string]interface{}{
		"provider":  cfg.Provider,
		"transport": transport.Name(),
		"otel":      rt.otel.Enabled(),
		"langfuse":  rt.langfuse.Enabled(),
	})

	return rt, nil
}

// Shutdown flushes tracers and releases provider clients
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	r.langfuse.Flush(ctx)
	if err := r.otel.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, closer := range r.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
