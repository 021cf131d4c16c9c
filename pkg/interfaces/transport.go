package interfaces

import (
	"context"
	"iter"

	"github.com/run-bigpig/llm-guardrails/pkg/llm"
)

// Transport is a hosted generative-content API that returns text together with
// per-category safety ratings
type Transport interface {
	// Generate sends the prompt verbatim and waits for the complete response
	Generate(ctx context.Context, prompt string) (*llm.Response, error)

	// GenerateStream sends the prompt verbatim and yields each increment as it
	// arrives. A non-nil error ends the sequence. Returning false from yield must
	// release the underlying connection.
	GenerateStream(ctx context.Context, prompt string) iter.Seq2[*llm.Response, error]

	// Name returns the provider and model, e.g. "gemini:gemini-2.5-flash"
	Name() string
}
