package tracing

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/henomis/langfuse-go"
	"github.com/henomis/langfuse-go/model"

	"github.com/run-bigpig/llm-guardrails/pkg/interfaces"
	"github.com/run-bigpig/llm-guardrails/pkg/llm"
	"github.com/run-bigpig/llm-guardrails/pkg/logging"
	"github.com/run-bigpig/llm-guardrails/pkg/requestid"
)

// LangfuseTracer implements tracing using Langfuse
type LangfuseTracer struct {
	client      *langfuse.Langfuse
	enabled     bool
	environment string
}

// LangfuseConfig contains configuration for Langfuse. The client reads its
// host and keys from LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY.
type LangfuseConfig struct {
	// Enabled determines whether Langfuse tracing is enabled
	Enabled bool

	// Environment is the environment name (e.g., "production", "staging")
	Environment string
}

// NewLangfuseTracer creates a new Langfuse tracer
func NewLangfuseTracer(config LangfuseConfig) *LangfuseTracer {
	if !config.Enabled {
		return &LangfuseTracer{
			enabled: false,
		}
	}

	return &LangfuseTracer{
		client:      langfuse.New(context.Background()),
		enabled:     true,
		environment: config.Environment,
	}
}

// Enabled reports whether observations are sent
func (t *LangfuseTracer) Enabled() bool {
	return t != nil && t.enabled
}

func (t *LangfuseTracer) metadata(ctx context.Context, extra map[string]interface{}) model.M {
	metadata := model.M{
		"environment": t.environment,
	}
	if id, err := requestid.GetRequestID(ctx); err == nil {
		metadata["request_id"] = id
	}
	for k, v := range extra {
		metadata[k] = v
	}
	return metadata
}

// TraceGeneration records one completed call with its safety ratings
func (t *LangfuseTracer) TraceGeneration(ctx context.Context, modelName string, prompt string, response *llm.Response, startTime time.Time, endTime time.Time, metadata map[string]interface{}) (string, error) {
	if !t.Enabled() {
		return "", nil
	}

	ratings := make([]model.M, 0, len(response.SafetyRatings))
	for _, r := range response.SafetyRatings {
		ratings = append(ratings, model.M{
			"category":    r.Category,
			"probability": r.Probability,
		})
	}

	generation := &model.Generation{
		Name:      "guardrails-check",
		StartTime: &startTime,
		EndTime:   &endTime,
		Model:     modelName,
		Input: []model.M{
			{
				"prompt": prompt,
			},
		},
		Output: model.M{
			"completion":     response.Text,
			"safety_ratings": ratings,
		},
		Metadata: t.metadata(ctx, metadata),
	}

	created, err := t.client.Generation(generation, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create Langfuse generation: %w", err)
	}

	return created.ID, nil
}

// TraceEvent records a failed call
func (t *LangfuseTracer) TraceEvent(ctx context.Context, name string, input interface{}, output interface{}, level string, metadata map[string]interface{}) (string, error) {
	if !t.Enabled() {
		return "", nil
	}

	event := &model.Event{
		Name:     name,
		Input:    input,
		Output:   output,
		Level:    model.ObservationLevel(level),
		Metadata: t.metadata(ctx, metadata),
	}

	created, err := t.client.Event(event, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create Langfuse event: %w", err)
	}

	return created.ID, nil
}

// Flush flushes the Langfuse client
func (t *LangfuseTracer) Flush(ctx context.Context) {
	if !t.Enabled() {
		return
	}
	t.client.Flush(ctx)
}

// TransportLangfuseMiddleware records every call of a Transport in Langfuse
type TransportLangfuseMiddleware struct {
	transport interfaces.Transport
	tracer    *LangfuseTracer
	logger    logging.Logger
}

// NewTransportLangfuseMiddleware creates a new Transport middleware with Langfuse tracing
func NewTransportLangfuseMiddleware(transport interfaces.Transport, tracer *LangfuseTracer, logger logging.Logger) *TransportLangfuseMiddleware {
	if logger == nil {
		logger = logging.Nop()
	}
	return &TransportLangfuseMiddleware{
		transport: transport,
		tracer:    tracer,
		logger:    logger,
	}
}

// Generate implements interfaces.Transport.Generate
func (m *TransportLangfuseMiddleware) Generate(ctx context.Context, prompt string) (*llm.Response, error) {
	startTime := time.Now()
	resp, err := m.transport.Generate(ctx, prompt)
	m.record(ctx, prompt, resp, err, startTime, map[string]interface{}{"mode": "check"})
	return resp, err
}

// GenerateStream implements interfaces.Transport.GenerateStream
func (m *TransportLangfuseMiddleware) GenerateStream(ctx context.Context, prompt string) iter.Seq2[*llm.Response, error] {
	return func(yield func(*llm.Response, error) bool) {
		startTime := time.Now()

		var (
			text      strings.Builder
			collected = &llm.Response{SafetyRatings: []llm.SafetyRating{}}
			chunks    int
			abandoned bool
			streamErr error
		)
		for resp, err := range m.transport.GenerateStream(ctx, prompt) {
			if err != nil {
				streamErr = err
			} else if resp != nil {
				chunks++
				text.WriteString(resp.Text)
				collected.SafetyRatings = append(collected.SafetyRatings, resp.SafetyRatings...)
			}
			if !yield(resp, err) {
				abandoned = err == nil
				break
			}
		}
		collected.Text = text.String()

		m.record(ctx, prompt, collected, streamErr, startTime, map[string]interface{}{
			"mode":      "stream",
			"chunks":    chunks,
			"abandoned": abandoned,
		})
	}
}

func (m *TransportLangfuseMiddleware) record(ctx context.Context, prompt string, resp *llm.Response, err error, startTime time.Time, metadata map[string]interface{}) {
	if !m.tracer.Enabled() {
		return
	}

	metadata["transport"] = m.transport.Name()

	var traceErr error
	if err == nil && resp != nil {
		_, traceErr = m.tracer.TraceGeneration(ctx, m.transport.Name(), prompt, resp, startTime, time.Now(), metadata)
	} else {
		if err != nil {
			metadata["error"] = err.Error()
		}
		_, traceErr = m.tracer.TraceEvent(ctx, "transport_error", prompt, nil, "ERROR", metadata)
	}

	if traceErr != nil {
		m.logger.Warn(ctx, "Failed to record Langfuse trace", map[string]interface{}{
			"error": traceErr.Error(),
		})
	}
}

// Name implements interfaces.Transport.Name
func (m *TransportLangfuseMiddleware) Name() string {
	return m.transport.Name()
}
