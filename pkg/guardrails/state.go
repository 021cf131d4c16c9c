package guardrails

import "context"

// StreamState is the lifecycle state of a single streaming call
type StreamState string

const (
	StateIdle         StreamState = "idle"
	StateConnecting   StreamState = "connecting"
	StateTransmitting StreamState = "transmitting"
	StateComplete     StreamState = "complete"
	StateFailed       StreamState = "failed"
)

// Terminal reports whether no further transition can happen
func (s StreamState) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// StateHook observes state transitions of streaming calls
type StateHook func(ctx context.Context, state StreamState)

// streamRun tracks one streaming call
type streamRun struct {
	adapter *Adapter
	state   StreamState
	chunks  int
}

func (a *Adapter) newStreamRun() *streamRun {
	return &streamRun{adapter: a, state: StateIdle}
}

// transition moves to next unless the run already reached a terminal state
func (r *streamRun) transition(ctx context.Context, next StreamState) {
	if r.state.Terminal() || r.state == next {
		return
	}

	r.adapter.logger.Debug(ctx, "Guardrail stream state changed", map[string]interface{}{
		"from": string(r.state),
		"to":   string(next),
	})
	r.state = next

	if r.adapter.stateHook != nil {
		r.adapter.stateHook(ctx, next)
	}
}
