package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/run-bigpig/llm-guardrails/pkg/llm"
	"github.com/run-bigpig/llm-guardrails/pkg/logging"
)

// Gemini model constants
const (
	ModelGemini25Flash = "gemini-2.5-flash"
	ModelGemini25Pro   = "gemini-2.5-pro"
	ModelGemini20Flash = "gemini-2.0-flash"
)

// DefaultModel is the default Gemini model
const DefaultModel = ModelGemini25Flash

// ErrMissingAPIKey is returned by every call when the client has no API key
var ErrMissingAPIKey = errors.New("gemini: API key is not configured")

// Client is a Transport on the Gemini Developer API
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger

	once      sync.Once
	client    *genai.Client
	clientErr error
}

// Option configures the Client
type Option func(*Client)

// WithModel sets the model for the client
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithBaseURL points the client at a different API endpoint
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client used for API calls
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger for the client
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Gemini client. It never fails: a missing key or a bad
// configuration surfaces on the first call instead.
func NewClient(apiKey string, options ...Option) *Client {
	client := &Client{
		apiKey: strings.TrimSpace(apiKey),
		model:  DefaultModel,
		logger: logging.Nop(),
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// Name returns the client name
func (c *Client) Name() string {
	return fmt.Sprintf("gemini:%s", c.model)
}

// genaiClient builds the SDK client on first use
func (c *Client) genaiClient(ctx context.Context) (*genai.Client, error) {
	c.once.Do(func() {
		if c.apiKey == "" {
			c.clientErr = ErrMissingAPIKey
			return
		}

		config := &genai.ClientConfig{
			APIKey:     c.apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: c.httpClient,
		}
		if c.baseURL != "" {
			config.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
		}

		// the SDK client is long-lived, so it must not inherit the caller's deadline
		c.client, c.clientErr = genai.NewClient(context.WithoutCancel(ctx), config)
		if c.clientErr != nil {
			c.clientErr = fmt.Errorf("failed to create Gemini client: %w", c.clientErr)
		}
	})
	return c.client, c.clientErr
}

// Generate implements interfaces.Transport.Generate
func (c *Client) Generate(ctx context.Context, prompt string) (*llm.Response, error) {
	client, err := c.genaiClient(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Debug(ctx, "Executing Gemini generateContent", map[string]interface{}{
		"model":      c.model,
		"prompt_len": len(prompt),
	})

	resp, err := client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	return convertResponse(resp), nil
}

// GenerateStream implements interfaces.Transport.GenerateStream
func (c *Client) GenerateStream(ctx context.Context, prompt string) iter.Seq2[*llm.Response, error] {
	return func(yield func(*llm.Response, error) bool) {
		client, err := c.genaiClient(ctx)
		if err != nil {
			yield(nil, err)
			return
		}

		c.logger.Debug(ctx, "Executing Gemini streamGenerateContent", map[string]interface{}{
			"model":      c.model,
			"prompt_len": len(prompt),
		})

		// leaving this loop stops the SDK iterator, which closes the response body
		for resp, err := range client.Models.GenerateContentStream(ctx, c.model, genai.Text(prompt), nil) {
			if err != nil {
				yield(nil, fmt.Errorf("failed to stream content: %w", err))
				return
			}
			if !yield(convertResponse(resp), nil) {
				return
			}
		}
	}
}

// convertResponse keeps the text and ratings of the first candidate
func convertResponse(resp *genai.GenerateContentResponse) *llm.Response {
	out := &llm.Response{SafetyRatings: []llm.SafetyRating{}}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return out
	}

	candidate := resp.Candidates[0]

	if candidate.Content != nil {
		var text strings.Builder
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text.WriteString(part.Text)
		}
		out.Text = text.String()
	}

	for _, rating := range candidate.SafetyRatings {
		if rating == nil {
			continue
		}
		out.SafetyRatings = append(out.SafetyRatings, llm.SafetyRating{
			Category:    string(rating.Category),
			Probability: string(rating.Probability),
		})
	}

	return out
}
