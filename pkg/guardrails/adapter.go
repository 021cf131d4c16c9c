package guardrails

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/run-bigpig/llm-guardrails/pkg/interfaces"
	"github.com/run-bigpig/llm-guardrails/pkg/logging"
)

// Adapter relays prompts to a Transport and normalizes what comes back into
// Results and Chunks. It holds no mutable state and is safe for concurrent use.
type Adapter struct {
	transport interfaces.Transport
	logger    logging.Logger
	stateHook StateHook
}

// Option configures an Adapter
type Option func(*Adapter)

// WithLogger sets the logger for the adapter
func WithLogger(logger logging.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithStateHook registers a hook that sees every stream state transition
func WithStateHook(hook StateHook) Option {
	return func(a *Adapter) {
		a.stateHook = hook
	}
}

// New creates an Adapter on top of the given transport
func New(transport interfaces.Transport, options ...Option) *Adapter {
	adapter := &Adapter{
		transport: transport,
		logger:    logging.Nop(),
	}

	for _, option := range options {
		option(adapter)
	}

	return adapter
}

// Name returns the name of the underlying transport
func (a *Adapter) Name() string {
	if a.transport == nil {
		return "none"
	}
	return a.transport.Name()
}

// Check sends the prompt once and waits for the full response. Any failure,
// including a panic in the transport, comes back as ErrorSentinel text with no
// ratings.
func (a *Adapter) Check(ctx context.Context, prompt string) (result Result) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error(ctx, "Guardrail check panicked", map[string]interface{}{
				"transport": a.Name(),
				"panic":     fmt.Sprint(r),
			})
			result = errorResult()
		}
	}()

	resp, err := a.transport.Generate(ctx, prompt)
	if err == nil && resp == nil {
		err = ErrMalformedResponse
	}
	if err != nil {
		a.logger.Error(ctx, "Guardrail check failed", map[string]interface{}{
			"transport":  a.Name(),
			"error":      err.Error(),
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
		return errorResult()
	}

	result = newResult(resp)

	a.logger.Info(ctx, "Guardrail check completed", map[string]interface{}{
		"transport":    a.Name(),
		"prompt_len":   len(prompt),
		"text_len":     len(resp.Text),
		"ratings":      len(result.SafetyRatings),
		"max_severity": result.MaxSeverity().String(),
		"filtered":     result.Filtered(),
		"elapsed_ms":   time.Since(start).Milliseconds(),
	})

	return result
}

// Stream returns a lazy sequence of chunks. Nothing is sent until the caller
// ranges over it, and every range issues a fresh call. Chunks arrive in transport
// order. A transport failure, including a panic inside the transport, is yielded
// once as (Chunk{}, err) with err wrapping ErrStreamFailed; a clean end yields no
// error. The connection is released when the loop ends for any reason, including
// an early break.
func (a *Adapter) Stream(ctx context.Context, prompt string) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		streamCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		start := time.Now()
		run := a.newStreamRun()

		// inYield is set while the caller's loop body runs; its panics are not ours
		var inYield, stopped bool
		emit := func(chunk Chunk, err error) bool {
			inYield = true
			ok := yield(chunk, err)
			inYield = false
			stopped = !ok
			return ok
		}

		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if inYield {
				panic(r)
			}

			run.transition(streamCtx, StateFailed)
			a.logger.Error(ctx, "Guardrail stream panicked", map[string]interface{}{
				"transport": a.Name(),
				"chunks":    run.chunks,
				"panic":     fmt.Sprint(r),
			})
			if !stopped {
				yield(Chunk{}, fmt.Errorf("%w: transport panicked: %v", ErrStreamFailed, r))
			}
		}()

		run.transition(streamCtx, StateConnecting)

		for resp, err := range a.transport.GenerateStream(streamCtx, prompt) {
			if err == nil && resp == nil {
				err = ErrMalformedResponse
			}
			if err != nil {
				run.transition(streamCtx, StateFailed)
				a.logger.Error(ctx, "Guardrail stream failed", map[string]interface{}{
					"transport":  a.Name(),
					"chunks":     run.chunks,
					"error":      err.Error(),
					"elapsed_ms": time.Since(start).Milliseconds(),
				})
				emit(Chunk{}, fmt.Errorf("%w: %w", ErrStreamFailed, err))
				return
			}

			run.transition(streamCtx, StateTransmitting)
			run.chunks++

			if !emit(newChunk(resp), nil) {
				run.transition(streamCtx, StateComplete)
				a.logger.Debug(ctx, "Guardrail stream abandoned by caller", map[string]interface{}{
					"transport": a.Name(),
					"chunks":    run.chunks,
					"abandoned": true,
				})
				return
			}
		}

		run.transition(streamCtx, StateComplete)
		a.logger.Info(ctx, "Guardrail stream completed", map[string]interface{}{
			"transport":  a.Name(),
			"prompt_len": len(prompt),
			"chunks":     run.chunks,
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
	}
}

// Collect drains a stream into a Result the way Check would build it. It stops
// at the first error and returns it along with what was gathered so far.
func Collect(chunks iter.Seq2[Chunk, error]) (Result, error) {
	var text []byte
	ratings := []SafetyRating{}

	for chunk, err := range chunks {
		if err != nil {
			return Result{Text: string(text), SafetyRatings: ratings}, err
		}
		text = append(text, chunk.TextDelta...)
		ratings = append(ratings, chunk.SafetyRatings...)
	}

	result := Result{Text: string(text), SafetyRatings: ratings}
	if result.Text == "" {
		result.Text = NoTextSentinel
	}
	return result, nil
}
