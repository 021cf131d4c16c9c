package mcp

import (
	"context"
	"encoding/json"
	"iter"
	"testing"

	mcplib "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport/stdio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/run-bigpig/llm-guardrails/pkg/guardrails"
	"github.com/run-bigpig/llm-guardrails/pkg/prompts"
	"github.com/run-bigpig/llm-guardrails/pkg/requestid"
)

type stubGuardrail struct {
	result  guardrails.Result
	prompts []string
	ids     []string
}

func (s *stubGuardrail) Check(ctx context.Context, prompt string) guardrails.Result {
	s.prompts = append(s.prompts, prompt)
	id, _ := requestid.GetRequestID(ctx)
	s.ids = append(s.ids, id)
	return s.result
}

func (s *stubGuardrail) Stream(ctx context.Context, prompt string) iter.Seq2[guardrails.Chunk, error] {
	return func(func(guardrails.Chunk, error) bool) {}
}

func toolText(t *testing.T, resp *mcplib.ToolResponse) string {
	t.Helper()
	require.NotNil(t, resp)
	require.Len(t, resp.Content, 1)
	require.NotNil(t, resp.Content[0].TextContent)
	return resp.Content[0].TextContent.Text
}

func TestFormatResult(t *testing.T) {
	tests := []struct {
		name   string
		result guardrails.Result
		want   string
	}{
		{
			name: "with ratings",
			result: guardrails.Result{
				Text: "Here is a poem...",
				SafetyRatings: []guardrails.SafetyRating{
					{Category: "HARM_CATEGORY_HARASSMENT", Probability: guardrails.SeverityNegligible},
					{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Probability: guardrails.SeverityHigh},
				},
			},
			want: "Here is a poem...\n\nSafety ratings:" +
				"\n- harassment: Safe (NEGLIGIBLE)" +
				"\n- dangerous content: High (HIGH)" +
				"\nHighest severity: High",
		},
		{
			name:   "failed call",
			result: guardrails.Result{Text: guardrails.ErrorSentinel, SafetyRatings: []guardrails.SafetyRating{}},
			want:   guardrails.ErrorSentinel + "\n\nSafety ratings: none reported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatResult(tt.result))
		})
	}
}

func TestCheckGuardrailsTool(t *testing.T) {
	guardrail := &stubGuardrail{result: guardrails.Result{Text: "ok", SafetyRatings: []guardrails.SafetyRating{}}}
	server := NewToolServer(context.Background(), guardrail, nil, "test")

	resp, err := server.CheckGuardrails(CheckArgs{Prompt: "  hello  "})
	require.NoError(t, err)

	assert.Equal(t, "ok\n\nSafety ratings: none reported", toolText(t, resp))
	assert.Equal(t, []string{"  hello  "}, guardrail.prompts)
	require.Len(t, guardrail.ids, 1)
	assert.NotEmpty(t, guardrail.ids[0])
}

func TestCheckGuardrailsRejectsBlankPrompt(t *testing.T) {
	guardrail := &stubGuardrail{}
	server := NewToolServer(context.Background(), guardrail, nil, "test")

	_, err := server.CheckGuardrails(CheckArgs{Prompt: " "})
	assert.ErrorIs(t, err, prompts.ErrEmptyPrompt)
	assert.Empty(t, guardrail.prompts)
}

func TestListTools(t *testing.T) {
	server := NewToolServer(context.Background(), &stubGuardrail{}, nil, "test")

	resp, err := server.ListLayers(ListArgs{})
	require.NoError(t, err)
	var layers []prompts.Layer
	require.NoError(t, json.Unmarshal([]byte(toolText(t, resp)), &layers))
	assert.Len(t, layers, 3)

	resp, err = server.ListSamples(ListArgs{})
	require.NoError(t, err)
	var samples []prompts.Sample
	require.NoError(t, json.Unmarshal([]byte(toolText(t, resp)), &samples))
	assert.Len(t, samples, 2)
}

func TestRegisterTools(t *testing.T) {
	server := NewToolServer(context.Background(), &stubGuardrail{}, nil, "test")

	mcpServer, err := server.NewServer(stdio.NewStdioServerTransport())
	require.NoError(t, err)
	assert.NotNil(t, mcpServer)
}
