package guardrails

import (
	"context"
	"errors"
	"iter"

	"github.com/run-bigpig/llm-guardrails/pkg/llm"
)

const (
	// NoTextSentinel is the result text when the provider returned no text, which
	// usually means its safety filters blocked the prompt or the output
	NoTextSentinel = "No text generated (potentially blocked by safety filters)."

	// ErrorSentinel is the result text when the provider could not be reached or
	// rejected the call
	ErrorSentinel = "Error communicating with AI service. Please check your API key or connection."
)

var (
	// ErrStreamFailed wraps the transport error that terminated a stream
	ErrStreamFailed = errors.New("guardrail stream failed")

	// ErrMalformedResponse is returned when a transport hands back nothing at all
	ErrMalformedResponse = errors.New("malformed provider response")
)

// Guardrail is the surface callers consume
type Guardrail interface {
	// Check runs a one-shot generation and never fails
	Check(ctx context.Context, prompt string) Result

	// Stream runs a streaming generation; a terminal error is yielded at most once
	Stream(ctx context.Context, prompt string) iter.Seq2[Chunk, error]
}

// SafetyRating is a harm category with the provider's probability for it
type SafetyRating struct {
	Category    string   `json:"category"`
	Probability Severity `json:"probability"`
}

// Label returns the display label of the rating's probability
func (r SafetyRating) Label() string {
	return r.Probability.Label()
}

// DisplayCategory returns the category in human-readable form
func (r SafetyRating) DisplayCategory() string {
	return DisplayCategory(r.Category)
}

// Result is the outcome of a one-shot check
type Result struct {
	Text          string         `json:"text"`
	SafetyRatings []SafetyRating `json:"safety_ratings"`
}

// Failed reports whether the check could not reach the provider
func (r Result) Failed() bool {
	return r.Text == ErrorSentinel
}

// Filtered reports whether the provider returned no text
func (r Result) Filtered() bool {
	return r.Text == NoTextSentinel
}

// MaxSeverity returns the highest probability among the ratings, or
// SeverityUnknown when there are none
func (r Result) MaxSeverity() Severity {
	return maxSeverity(r.SafetyRatings)
}

// Chunk is one increment of a streamed check
type Chunk struct {
	TextDelta     string         `json:"text_delta"`
	SafetyRatings []SafetyRating `json:"safety_ratings"`
}

func newResult(resp *llm.Response) Result {
	text := resp.Text
	if text == "" {
		text = NoTextSentinel
	}
	return Result{
		Text:          text,
		SafetyRatings: convertRatings(resp.SafetyRatings),
	}
}

func errorResult() Result {
	return Result{
		Text:          ErrorSentinel,
		SafetyRatings: []SafetyRating{},
	}
}

func newChunk(resp *llm.Response) Chunk {
	return Chunk{
		TextDelta:     resp.Text,
		SafetyRatings: convertRatings(resp.SafetyRatings),
	}
}

func convertRatings(raw []llm.SafetyRating) []SafetyRating {
	ratings := make([]SafetyRating, 0, len(raw))
	for _, r := range raw {
		ratings = append(ratings, SafetyRating{
			Category:    r.Category,
			Probability: ParseSeverity(r.Probability),
		})
	}
	return ratings
}

func maxSeverity(ratings []SafetyRating) Severity {
	highest := SeverityUnknown
	for _, r := range ratings {
		if r.Probability.Rank() > highest.Rank() {
			highest = r.Probability
		}
	}
	return highest
}
