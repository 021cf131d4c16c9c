package tracing

import (
	"context"
	"iter"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/run-bigpig/llm-guardrails/pkg/interfaces"
	"github.com/run-bigpig/llm-guardrails/pkg/llm"
)

// TransportOTelMiddleware wraps a Transport with OpenTelemetry tracing
type TransportOTelMiddleware struct {
	transport interfaces.Transport
	tracer    *OTelTracer
}

// NewTransportOTelMiddleware creates a new TransportOTelMiddleware
func NewTransportOTelMiddleware(transport interfaces.Transport, tracer *OTelTracer) *TransportOTelMiddleware {
	return &TransportOTelMiddleware{
		transport: transport,
		tracer:    tracer,
	}
}

// Generate implements interfaces.Transport.Generate
func (m *TransportOTelMiddleware) Generate(ctx context.Context, prompt string) (*llm.Response, error) {
	ctx, span := m.tracer.StartSpan(ctx, "transport.generate", map[string]string{
		"transport":     m.transport.Name(),
		"prompt.length": strconv.Itoa(len(prompt)),
	})

	resp, err := m.transport.Generate(ctx, prompt)
	if err == nil && resp != nil {
		span.SetAttributes(
			attribute.Int("response.length", len(resp.Text)),
			attribute.Int("safety_ratings.count", len(resp.SafetyRatings)),
		)
	}

	m.tracer.EndSpan(span, err)
	return resp, err
}

// GenerateStream implements interfaces.Transport.GenerateStream. The span covers
// the whole stream and ends when the consumer stops ranging.
func (m *TransportOTelMiddleware) GenerateStream(ctx context.Context, prompt string) iter.Seq2[*llm.Response, error] {
	return func(yield func(*llm.Response, error) bool) {
		ctx, span := m.tracer.StartSpan(ctx, "transport.generate_stream", map[string]string{
			"transport":     m.transport.Name(),
			"prompt.length": strconv.Itoa(len(prompt)),
		})

		var (
			chunks    int
			length    int
			ratings   int
			abandoned bool
			streamErr error
		)
		for resp, err := range m.transport.GenerateStream(ctx, prompt) {
			if err != nil {
				streamErr = err
			} else if resp != nil {
				chunks++
				length += len(resp.Text)
				ratings += len(resp.SafetyRatings)
			}
			if !yield(resp, err) {
				abandoned = err == nil
				break
			}
		}

		span.SetAttributes(
			attribute.Int("stream.chunks", chunks),
			attribute.Int("response.length", length),
			attribute.Int("safety_ratings.count", ratings),
			attribute.Bool("stream.abandoned", abandoned),
		)
		m.tracer.EndSpan(span, streamErr)
	}
}

// Name implements interfaces.Transport.Name
func (m *TransportOTelMiddleware) Name() string {
	return m.transport.Name()
}
