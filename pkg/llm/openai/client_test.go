package openai_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	gopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/run-bigpig/llm-guardrails/pkg/llm"
	"github.com/run-bigpig/llm-guardrails/pkg/llm/openai"
)

const moderationResponse = `{
  "id": "modr-1",
  "model": "omni-moderation-latest",
  "results": [{
    "flagged": true,
    "categories": {"harassment": false, "violence": true, "self-harm/intent": false},
    "category_scores": {"harassment": 0.02, "violence": 0.91, "self-harm/intent": 0.3}
  }]
}`

type testServer struct {
	*httptest.Server
	moderations atomic.Int32
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error", "code": "invalid_api_key"}}`)
			return
		}

		switch {
		case strings.HasSuffix(r.URL.Path, "/moderations"):
			ts.moderations.Add(1)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, moderationResponse)

		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			var req gopenai.ChatCompletionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("Failed to decode request body: %v", err)
			}
			if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
				t.Errorf("Expected a single user message, got %+v", req.Messages)
			}

			if !req.Stream {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(gopenai.ChatCompletionResponse{
					Choices: []gopenai.ChatCompletionChoice{
						{Message: gopenai.ChatCompletionMessage{Role: "assistant", Content: "test response"}},
					},
				})
				return
			}

			w.Header().Set("Content-Type", "text/event-stream")
			for _, delta := range []string{"Hel", "lo wo", "rld"} {
				fmt.Fprintf(w, `data: {"id":"c1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":%q}}]}`+"\n\n", delta)
				w.(http.Flusher).Flush()
			}
			fmt.Fprint(w, "data: [DONE]\n\n")

		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	return ts
}

func ratingsByCategory(ratings []llm.SafetyRating) map[string]string {
	out := make(map[string]string, len(ratings))
	for _, r := range ratings {
		out[r.Category] = r.Probability
	}
	return out
}

func TestGenerate(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	client := openai.NewClient("test-key", openai.WithModel("gpt-4"), openai.WithBaseURL(server.URL))

	resp, err := client.Generate(context.Background(), "test prompt")
	require.NoError(t, err)

	assert.Equal(t, "test response", resp.Text)
	ratings := ratingsByCategory(resp.SafetyRatings)
	assert.Equal(t, "HIGH", ratings["HARM_CATEGORY_VIOLENCE"])
	assert.Equal(t, "NEGLIGIBLE", ratings["HARM_CATEGORY_HARASSMENT"])
	assert.Equal(t, "LOW", ratings["HARM_CATEGORY_SELF_HARM_INTENT"])
	assert.Equal(t, int32(1), server.moderations.Load())
}

func TestGenerateWithoutModeration(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	client := openai.NewClient("test-key", openai.WithBaseURL(server.URL), openai.WithoutModeration())

	resp, err := client.Generate(context.Background(), "test prompt")
	require.NoError(t, err)

	assert.Equal(t, "test response", resp.Text)
	assert.NotNil(t, resp.SafetyRatings)
	assert.Empty(t, resp.SafetyRatings)
	assert.Zero(t, server.moderations.Load())
}

func TestGenerateStream(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	client := openai.NewClient("test-key", openai.WithBaseURL(server.URL))

	var deltas []string
	var last *llm.Response
	for resp, err := range client.GenerateStream(context.Background(), "say hello") {
		require.NoError(t, err)
		deltas = append(deltas, resp.Text)
		last = resp
	}

	assert.Equal(t, []string{"Hel", "lo wo", "rld", ""}, deltas)
	require.NotNil(t, last)
	assert.Equal(t, "HIGH", ratingsByCategory(last.SafetyRatings)["HARM_CATEGORY_VIOLENCE"])
}

func TestGenerateStreamStopsEarly(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	client := openai.NewClient("test-key", openai.WithBaseURL(server.URL))

	count := 0
	for _, err := range client.GenerateStream(context.Background(), "say hello") {
		require.NoError(t, err)
		count++
		break
	}
	assert.Equal(t, 1, count)
	assert.Zero(t, server.moderations.Load())
}

func TestBadCredential(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	client := openai.NewClient("wrong-key", openai.WithBaseURL(server.URL))

	_, err := client.Generate(context.Background(), "hello")
	assert.Error(t, err)

	var errs int
	for _, err := range client.GenerateStream(context.Background(), "hello") {
		assert.Error(t, err)
		errs++
	}
	assert.Equal(t, 1, errs)
}

func TestMissingAPIKey(t *testing.T) {
	client := openai.NewClient("")

	_, err := client.Generate(context.Background(), "hello")
	assert.ErrorIs(t, err, openai.ErrMissingAPIKey)

	for resp, err := range client.GenerateStream(context.Background(), "hello") {
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, openai.ErrMissingAPIKey)
	}
}

func TestName(t *testing.T) {
	assert.Equal(t, "openai:gpt-4o-mini", openai.NewClient("k").Name())
}
