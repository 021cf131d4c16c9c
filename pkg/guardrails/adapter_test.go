package guardrails

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/run-bigpig/llm-guardrails/pkg/llm"
)

var errConnRefused = errors.New("dial tcp 127.0.0.1:443: connect: connection refused")

// scriptedTransport replays a fixed one-shot response and a fixed list of stream
// increments, optionally failing or panicking after failAfter increments
type scriptedTransport struct {
	response    *llm.Response
	generateErr error
	panicWith   any

	increments []*llm.Response
	streamErr  error
	failAfter  int

	mu        sync.Mutex
	prompts   []string
	yielded   int
	released  bool
	ctxClosed bool
}

func (s *scriptedTransport) Name() string { return "scripted:test" }

func (s *scriptedTransport) Generate(ctx context.Context, prompt string) (*llm.Response, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	if s.panicWith != nil {
		panic(s.panicWith)
	}
	return s.response, s.generateErr
}

func (s *scriptedTransport) GenerateStream(ctx context.Context, prompt string) iter.Seq2[*llm.Response, error] {
	return func(yield func(*llm.Response, error) bool) {
		s.mu.Lock()
		s.prompts = append(s.prompts, prompt)
		s.mu.Unlock()

		defer func() {
			s.mu.Lock()
			s.released = true
			s.mu.Unlock()
		}()

		// the adapter must cancel the per-stream context once the loop ends
		go func() {
			<-ctx.Done()
			s.mu.Lock()
			s.ctxClosed = true
			s.mu.Unlock()
		}()

		for i, inc := range s.increments {
			if s.panicWith != nil && i == s.failAfter {
				panic(s.panicWith)
			}
			if s.streamErr != nil && i == s.failAfter {
				yield(nil, s.streamErr)
				return
			}
			s.mu.Lock()
			s.yielded++
			s.mu.Unlock()
			if !yield(inc, nil) {
				return
			}
		}
		if s.streamErr != nil && s.failAfter >= len(s.increments) {
			yield(nil, s.streamErr)
		}
	}
}

func (s *scriptedTransport) wasReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

func threeChunkStream() []*llm.Response {
	return []*llm.Response{
		{Text: "Hel"},
		{Text: "lo wo"},
		{Text: "rld", SafetyRatings: []llm.SafetyRating{
			{Category: "HARM_CATEGORY_HARASSMENT", Probability: "NEGLIGIBLE"},
			{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Probability: "LOW"},
		}},
	}
}

func TestCheckReturnsTextAndRatings(t *testing.T) {
	transport := &scriptedTransport{
		response: &llm.Response{
			Text: "Here is a poem...",
			SafetyRatings: []llm.SafetyRating{
				{Category: "HARM_CATEGORY_HARASSMENT", Probability: "NEGLIGIBLE"},
			},
		},
	}
	adapter := New(transport)

	result := adapter.Check(context.Background(), "Write a poem about cyber security.")

	assert.Equal(t, "Here is a poem...", result.Text)
	require.Len(t, result.SafetyRatings, 1)
	assert.Equal(t, "HARM_CATEGORY_HARASSMENT", result.SafetyRatings[0].Category)
	assert.Equal(t, SeverityNegligible, result.SafetyRatings[0].Probability)
	assert.Equal(t, "Safe", result.SafetyRatings[0].Label())
	assert.False(t, result.Failed())
	assert.Equal(t, []string{"Write a poem about cyber security."}, transport.prompts)
}

func TestCheckEmptyTextFallsBackToSentinel(t *testing.T) {
	adapter := New(&scriptedTransport{response: &llm.Response{Text: "", SafetyRatings: nil}})

	result := adapter.Check(context.Background(), "Explain how to make a dangerous chemical.")

	assert.Equal(t, NoTextSentinel, result.Text)
	assert.NotNil(t, result.SafetyRatings)
	assert.Empty(t, result.SafetyRatings)
	assert.True(t, result.Filtered())
	assert.False(t, result.Failed())
}

func TestCheckFilteredKeepsProviderRatings(t *testing.T) {
	adapter := New(&scriptedTransport{response: &llm.Response{
		SafetyRatings: []llm.SafetyRating{{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Probability: "HIGH"}},
	}})

	result := adapter.Check(context.Background(), "risky")

	assert.Equal(t, NoTextSentinel, result.Text)
	require.Len(t, result.SafetyRatings, 1)
	assert.Equal(t, SeverityHigh, result.MaxSeverity())
}

func TestCheckNeverFails(t *testing.T) {
	tests := []struct {
		name      string
		transport *scriptedTransport
	}{
		{"connection error", &scriptedTransport{generateErr: errConnRefused}},
		{"error with partial response", &scriptedTransport{response: &llm.Response{Text: "half"}, generateErr: errors.New("401 unauthenticated")}},
		{"nil response", &scriptedTransport{}},
		{"transport panic", &scriptedTransport{panicWith: "boom"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := New(tt.transport)

			var result Result
			require.NotPanics(t, func() {
				result = adapter.Check(context.Background(), "hello")
			})

			assert.Equal(t, ErrorSentinel, result.Text)
			assert.NotNil(t, result.SafetyRatings)
			assert.Empty(t, result.SafetyRatings)
			assert.True(t, result.Failed())
		})
	}
}

func TestCheckAlwaysReturnsText(t *testing.T) {
	prompts := []string{"", "   ", "hello", strings.Repeat("x", 10000), "\x00\xff"}
	transports := []*scriptedTransport{
		{response: &llm.Response{Text: "ok"}},
		{response: &llm.Response{}},
		{generateErr: errConnRefused},
	}

	for _, transport := range transports {
		adapter := New(transport)
		for _, p := range prompts {
			assert.NotEmpty(t, adapter.Check(context.Background(), p).Text)
		}
	}
}

func TestStreamYieldsChunksInOrder(t *testing.T) {
	transport := &scriptedTransport{increments: threeChunkStream()}
	adapter := New(transport)

	var chunks []Chunk
	for chunk, err := range adapter.Stream(context.Background(), "say hello") {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}

	require.Len(t, chunks, 3)
	assert.Equal(t, "Hel", chunks[0].TextDelta)
	assert.Equal(t, "lo wo", chunks[1].TextDelta)
	assert.Equal(t, "rld", chunks[2].TextDelta)

	assert.Empty(t, chunks[0].SafetyRatings)
	assert.Empty(t, chunks[1].SafetyRatings)
	require.Len(t, chunks[2].SafetyRatings, 2)
	assert.Equal(t, SeverityNegligible, chunks[2].SafetyRatings[0].Probability)
	assert.Equal(t, SeverityLow, chunks[2].SafetyRatings[1].Probability)

	var text strings.Builder
	for _, c := range chunks {
		text.WriteString(c.TextDelta)
	}
	assert.Equal(t, "Hello world", text.String())
	assert.True(t, transport.wasReleased())
}

func TestStreamConcatenationMatchesCheck(t *testing.T) {
	increments := threeChunkStream()
	full := &llm.Response{Text: "Hello world", SafetyRatings: increments[2].SafetyRatings}
	adapter := New(&scriptedTransport{response: full, increments: increments})

	checked := adapter.Check(context.Background(), "p")
	streamed, err := Collect(adapter.Stream(context.Background(), "p"))

	require.NoError(t, err)
	assert.Equal(t, checked.Text, streamed.Text)
	assert.Equal(t, checked.SafetyRatings, streamed.SafetyRatings)
}

func TestStreamAbandonReleasesTransport(t *testing.T) {
	transport := &scriptedTransport{increments: threeChunkStream()}
	var states []StreamState
	adapter := New(transport, WithStateHook(func(_ context.Context, s StreamState) {
		states = append(states, s)
	}))

	seen := 0
	require.NotPanics(t, func() {
		for chunk, err := range adapter.Stream(context.Background(), "p") {
			require.NoError(t, err)
			assert.Equal(t, "Hel", chunk.TextDelta)
			seen++
			break
		}
	})

	assert.Equal(t, 1, seen)
	assert.Equal(t, 1, transport.yielded)
	assert.True(t, transport.wasReleased())
	assert.Eventually(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return transport.ctxClosed
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []StreamState{StateConnecting, StateTransmitting, StateComplete}, states)
}

func TestStreamTerminalError(t *testing.T) {
	transport := &scriptedTransport{increments: threeChunkStream(), streamErr: errConnRefused, failAfter: 2}
	var states []StreamState
	adapter := New(transport, WithStateHook(func(_ context.Context, s StreamState) {
		states = append(states, s)
	}))

	var chunks []Chunk
	var errs []error
	for chunk, err := range adapter.Stream(context.Background(), "p") {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		chunks = append(chunks, chunk)
	}

	assert.Len(t, chunks, 2)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrStreamFailed)
	assert.ErrorIs(t, errs[0], errConnRefused)
	assert.True(t, transport.wasReleased())
	assert.Equal(t, []StreamState{StateConnecting, StateTransmitting, StateFailed}, states)
}

func TestStreamRecoversTransportPanic(t *testing.T) {
	transport := &scriptedTransport{increments: threeChunkStream(), panicWith: "nil map write", failAfter: 1}
	var states []StreamState
	adapter := New(transport, WithStateHook(func(_ context.Context, s StreamState) {
		states = append(states, s)
	}))

	var chunks []Chunk
	var errs []error
	require.NotPanics(t, func() {
		for chunk, err := range adapter.Stream(context.Background(), "p") {
			if err != nil {
				errs = append(errs, err)
				continue
			}
			chunks = append(chunks, chunk)
		}
	})

	assert.Len(t, chunks, 1)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrStreamFailed)
	assert.Contains(t, errs[0].Error(), "nil map write")
	assert.True(t, transport.wasReleased())
	assert.Equal(t, []StreamState{StateConnecting, StateTransmitting, StateFailed}, states)
}

func TestStreamTransportPanicBeforeFirstChunk(t *testing.T) {
	adapter := New(&scriptedTransport{increments: threeChunkStream(), panicWith: "boom", failAfter: 0})

	var result Result
	var err error
	require.NotPanics(t, func() {
		result, err = Collect(adapter.Stream(context.Background(), "p"))
	})

	assert.ErrorIs(t, err, ErrStreamFailed)
	assert.Empty(t, result.Text)
}

func TestStreamDoesNotSwallowCallerPanic(t *testing.T) {
	adapter := New(&scriptedTransport{increments: threeChunkStream()})

	assert.PanicsWithValue(t, "caller bug", func() {
		for range adapter.Stream(context.Background(), "p") {
			panic("caller bug")
		}
	})
}

func TestStreamFailsBeforeFirstChunk(t *testing.T) {
	adapter := New(&scriptedTransport{streamErr: errors.New("401 API key not valid"), failAfter: 0})

	result, err := Collect(adapter.Stream(context.Background(), "p"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStreamFailed)
	assert.Empty(t, result.Text)
}

func TestStreamIsLazyAndFreshPerRange(t *testing.T) {
	transport := &scriptedTransport{increments: threeChunkStream()}
	adapter := New(transport)

	seq := adapter.Stream(context.Background(), "p")
	assert.Empty(t, transport.prompts)

	for range seq {
	}
	for range seq {
	}
	assert.Equal(t, []string{"p", "p"}, transport.prompts)
}

func TestStreamEmptyIsNotAnError(t *testing.T) {
	var states []StreamState
	adapter := New(&scriptedTransport{}, WithStateHook(func(_ context.Context, s StreamState) {
		states = append(states, s)
	}))

	count := 0
	for _, err := range adapter.Stream(context.Background(), "p") {
		require.NoError(t, err)
		count++
	}

	assert.Zero(t, count)
	assert.Equal(t, []StreamState{StateConnecting, StateComplete}, states)
}
