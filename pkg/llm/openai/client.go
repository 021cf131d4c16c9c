package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/run-bigpig/llm-guardrails/pkg/llm"
	"github.com/run-bigpig/llm-guardrails/pkg/logging"
)

const (
	// DefaultModel is the chat model used when none is configured
	DefaultModel = "gpt-4o-mini"

	// DefaultModerationModel scores the generated text
	DefaultModerationModel = "omni-moderation-latest"
)

// ErrMissingAPIKey is returned by every call when the client has no API key
var ErrMissingAPIKey = errors.New("openai: API key is not configured")

// OpenAIClient is a Transport that generates with the chat API and rates the
// output with the moderation API
type OpenAIClient struct {
	Client          *openai.Client
	Model           string
	moderationModel string
	moderate        bool
	apiKey          string
	baseURL         string
	httpClient      *http.Client
	logger          logging.Logger
}

// Option represents an option for configuring the OpenAI client
type Option func(*OpenAIClient)

// WithModel sets the model for the OpenAI client
func WithModel(model string) Option {
	return func(c *OpenAIClient) {
		c.Model = model
	}
}

// WithLogger sets the logger for the OpenAI client
func WithLogger(logger logging.Logger) Option {
	return func(c *OpenAIClient) {
		c.logger = logger
	}
}

// WithBaseURL points the client at an OpenAI compatible endpoint
func WithBaseURL(baseURL string) Option {
	return func(c *OpenAIClient) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client used for API calls
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *OpenAIClient) {
		c.httpClient = httpClient
	}
}

// WithModerationModel sets the model used to produce safety ratings
func WithModerationModel(model string) Option {
	return func(c *OpenAIClient) {
		c.moderationModel = model
	}
}

// WithoutModeration skips the moderation call; responses carry no ratings
func WithoutModeration() Option {
	return func(c *OpenAIClient) {
		c.moderate = false
	}
}

// NewClient creates a new OpenAI client
func NewClient(apiKey string, options ...Option) *OpenAIClient {
	client := &OpenAIClient{
		Model:           DefaultModel,
		moderationModel: DefaultModerationModel,
		moderate:        true,
		apiKey:          strings.TrimSpace(apiKey),
		logger:          logging.Nop(),
	}

	for _, option := range options {
		option(client)
	}

	config := openai.DefaultConfig(client.apiKey)
	if client.baseURL != "" {
		config.BaseURL = client.baseURL
	}
	if client.httpClient != nil {
		config.HTTPClient = client.httpClient
	}
	client.Client = openai.NewClientWithConfig(config)

	return client
}

// Name implements interfaces.Transport.Name
func (c *OpenAIClient) Name() string {
	return fmt.Sprintf("openai:%s", c.Model)
}

func (c *OpenAIClient) chatRequest(prompt string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: c.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
}

// Generate implements interfaces.Transport.Generate
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (*llm.Response, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	c.logger.Debug(ctx, "Executing OpenAI API request", map[string]interface{}{
		"model":      c.Model,
		"prompt_len": len(prompt),
	})

	resp, err := c.Client.CreateChatCompletion(ctx, c.chatRequest(prompt))
	if err != nil {
		c.logger.Error(ctx, "Error from OpenAI API", map[string]interface{}{
			"error": err.Error(),
			"model": c.Model,
		})
		return nil, fmt.Errorf("failed to generate text: %w", err)
	}

	out := &llm.Response{SafetyRatings: []llm.SafetyRating{}}
	if len(resp.Choices) > 0 {
		out.Text = resp.Choices[0].Message.Content
	}
	out.SafetyRatings = c.rate(ctx, out.Text)

	return out, nil
}

// GenerateStream implements interfaces.Transport.GenerateStream. Ratings arrive
// on a final increment with no text once the completion has been moderated.
func (c *OpenAIClient) GenerateStream(ctx context.Context, prompt string) iter.Seq2[*llm.Response, error] {
	return func(yield func(*llm.Response, error) bool) {
		if c.apiKey == "" {
			yield(nil, ErrMissingAPIKey)
			return
		}

		c.logger.Debug(ctx, "Executing OpenAI streaming request", map[string]interface{}{
			"model":      c.Model,
			"prompt_len": len(prompt),
		})

		req := c.chatRequest(prompt)
		req.Stream = true

		stream, err := c.Client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			yield(nil, fmt.Errorf("failed to start stream: %w", err))
			return
		}
		defer stream.Close()

		var text strings.Builder
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield(nil, fmt.Errorf("failed to stream text: %w", err))
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}

			delta := resp.Choices[0].Delta.Content
			text.WriteString(delta)
			if !yield(&llm.Response{Text: delta, SafetyRatings: []llm.SafetyRating{}}, nil) {
				return
			}
		}

		if ratings := c.rate(ctx, text.String()); len(ratings) > 0 {
			yield(&llm.Response{SafetyRatings: ratings}, nil)
		}
	}
}

// rate scores text with the moderation API. A failed moderation call leaves the
// response unrated rather than failing the generation.
func (c *OpenAIClient) rate(ctx context.Context, text string) []llm.SafetyRating {
	if !c.moderate || strings.TrimSpace(text) == "" {
		return []llm.SafetyRating{}
	}

	resp, err := c.Client.Moderations(ctx, openai.ModerationRequest{
		Input: text,
		Model: c.moderationModel,
	})
	if err != nil {
		c.logger.Warn(ctx, "Moderation request failed", map[string]interface{}{
			"error": err.Error(),
			"model": c.moderationModel,
		})
		return []llm.SafetyRating{}
	}
	if len(resp.Results) == 0 {
		return []llm.SafetyRating{}
	}

	ratings, err := convertModeration(resp.Results[0])
	if err != nil {
		c.logger.Warn(ctx, "Failed to read moderation result", map[string]interface{}{
			"error": err.Error(),
		})
		return []llm.SafetyRating{}
	}
	return ratings
}

// convertModeration turns per-category flags and scores into ratings. A flagged
// category is HIGH; otherwise the score picks the level.
func convertModeration(result openai.Result) ([]llm.SafetyRating, error) {
	var flagged map[string]bool
	if err := remarshal(result.Categories, &flagged); err != nil {
		return nil, err
	}
	var scores map[string]float64
	if err := remarshal(result.CategoryScores, &scores); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)

	ratings := make([]llm.SafetyRating, 0, len(names))
	for _, name := range names {
		ratings = append(ratings, llm.SafetyRating{
			Category:    categoryName(name),
			Probability: probabilityName(flagged[name], scores[name]),
		})
	}
	return ratings, nil
}

func remarshal(in, out interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal moderation result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal moderation result: %w", err)
	}
	return nil
}

// categoryName maps "self-harm/intent" to "HARM_CATEGORY_SELF_HARM_INTENT"
func categoryName(name string) string {
	name = strings.NewReplacer("/", "_", "-", "_").Replace(name)
	return "HARM_CATEGORY_" + strings.ToUpper(name)
}

func probabilityName(flagged bool, score float64) string {
	switch {
	case flagged:
		return "HIGH"
	case score >= 0.5:
		return "MEDIUM"
	case score >= 0.1:
		return "LOW"
	default:
		return "NEGLIGIBLE"
	}
}
