package vertex

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/run-bigpig/llm-guardrails/pkg/llm"
	"github.com/run-bigpig/llm-guardrails/pkg/logging"
)

// VertexAI model constants
const (
	ModelGemini25Flash = "gemini-2.5-flash"
	ModelGemini25Pro   = "gemini-2.5-pro"
	ModelGemini20Flash = "gemini-2.0-flash"
	ModelGemini15Pro   = "gemini-1.5-pro"
)

// DefaultModel is the default Vertex AI model
const DefaultModel = ModelGemini25Flash

// DefaultLocation is the default Vertex AI region
const DefaultLocation = "us-central1"

var (
	// ErrMissingProject is returned by every call when no project ID is configured
	ErrMissingProject = errors.New("vertex: project ID is not configured")

	// ErrClientClosed is returned by calls on a client closed before it connected
	ErrClientClosed = errors.New("vertex: client is closed")
)

// Client represents a Vertex AI client
type Client struct {
	model           string
	projectID       string
	location        string
	credentialsFile string
	clientOptions   []option.ClientOption
	logger          logging.Logger

	once      sync.Once
	client    *genai.Client
	clientErr error
}

// ClientOption is a function that configures the Client
type ClientOption func(*Client)

// WithModel sets the model for the client
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithLocation sets the location for the client
func WithLocation(location string) ClientOption {
	return func(c *Client) {
		c.location = location
	}
}

// WithLogger sets the logger for the client
func WithLogger(logger logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithCredentialsFile sets the path to the service account credentials file
func WithCredentialsFile(credentialsFile string) ClientOption {
	return func(c *Client) {
		c.credentialsFile = credentialsFile
	}
}

// WithClientOptions passes extra options to the underlying Google API client
func WithClientOptions(opts ...option.ClientOption) ClientOption {
	return func(c *Client) {
		c.clientOptions = append(c.clientOptions, opts...)
	}
}

// NewClient creates a new Vertex AI client. Connecting is deferred to the first
// call, so a missing project or credential never fails construction.
func NewClient(projectID string, options ...ClientOption) *Client {
	client := &Client{
		model:     DefaultModel,
		projectID: strings.TrimSpace(projectID),
		location:  DefaultLocation,
		logger:    logging.Nop(),
	}

	for _, opt := range options {
		opt(client)
	}

	return client
}

// Name returns the client name
func (c *Client) Name() string {
	return fmt.Sprintf("vertex:%s", c.model)
}

func (c *Client) vertexClient(ctx context.Context) (*genai.Client, error) {
	c.once.Do(func() {
		if c.projectID == "" {
			c.clientErr = ErrMissingProject
			return
		}

		clientOptions := append([]option.ClientOption{}, c.clientOptions...)
		if c.credentialsFile != "" {
			clientOptions = append(clientOptions, option.WithCredentialsFile(c.credentialsFile))
		}

		c.client, c.clientErr = genai.NewClient(context.WithoutCancel(ctx), c.projectID, c.location, clientOptions...)
		if c.clientErr != nil {
			c.clientErr = fmt.Errorf("failed to create Vertex AI client: %w", c.clientErr)
		}
	})
	return c.client, c.clientErr
}

// Generate implements interfaces.Transport.Generate
func (c *Client) Generate(ctx context.Context, prompt string) (*llm.Response, error) {
	client, err := c.vertexClient(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Debug(ctx, "Executing Vertex AI GenerateContent", map[string]interface{}{
		"model":      c.model,
		"location":   c.location,
		"prompt_len": len(prompt),
	})

	response, err := client.GenerativeModel(c.model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	return convertResponse(response), nil
}

// GenerateStream implements interfaces.Transport.GenerateStream
func (c *Client) GenerateStream(ctx context.Context, prompt string) iter.Seq2[*llm.Response, error] {
	return func(yield func(*llm.Response, error) bool) {
		client, err := c.vertexClient(ctx)
		if err != nil {
			yield(nil, err)
			return
		}

		// the gRPC stream lives until this context is cancelled
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		c.logger.Debug(ctx, "Executing Vertex AI GenerateContentStream", map[string]interface{}{
			"model":      c.model,
			"location":   c.location,
			"prompt_len": len(prompt),
		})

		responses := client.GenerativeModel(c.model).GenerateContentStream(ctx, genai.Text(prompt))
		for {
			response, err := responses.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("failed to stream content: %w", err))
				return
			}
			if !yield(convertResponse(response), nil) {
				return
			}
		}
	}
}

// Close closes the Vertex AI client. It waits for a connect already in progress;
// a client closed before its first call never connects and returns
// ErrClientClosed from then on.
func (c *Client) Close() error {
	c.once.Do(func() {
		c.clientErr = ErrClientClosed
	})
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// convertResponse keeps the text and ratings of the first candidate
func convertResponse(response *genai.GenerateContentResponse) *llm.Response {
	out := &llm.Response{SafetyRatings: []llm.SafetyRating{}}
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0] == nil {
		return out
	}

	candidate := response.Candidates[0]

	if candidate.Content != nil {
		var text strings.Builder
		for _, part := range candidate.Content.Parts {
			if textPart, ok := part.(genai.Text); ok {
				text.WriteString(string(textPart))
			}
		}
		out.Text = text.String()
	}

	for _, rating := range candidate.SafetyRatings {
		if rating == nil {
			continue
		}
		out.SafetyRatings = append(out.SafetyRatings, llm.SafetyRating{
			Category:    harmCategoryName(rating.Category),
			Probability: harmProbabilityName(rating.Probability),
		})
	}

	return out
}

// harmCategoryName renders the SDK enum in the provider's wire vocabulary
func harmCategoryName(category genai.HarmCategory) string {
	switch category {
	case genai.HarmCategoryHateSpeech:
		return "HARM_CATEGORY_HATE_SPEECH"
	case genai.HarmCategoryDangerousContent:
		return "HARM_CATEGORY_DANGEROUS_CONTENT"
	case genai.HarmCategoryHarassment:
		return "HARM_CATEGORY_HARASSMENT"
	case genai.HarmCategorySexuallyExplicit:
		return "HARM_CATEGORY_SEXUALLY_EXPLICIT"
	case genai.HarmCategoryUnspecified:
		return "HARM_CATEGORY_UNSPECIFIED"
	default:
		return category.String()
	}
}

func harmProbabilityName(probability genai.HarmProbability) string {
	switch probability {
	case genai.HarmProbabilityNegligible:
		return "NEGLIGIBLE"
	case genai.HarmProbabilityLow:
		return "LOW"
	case genai.HarmProbabilityMedium:
		return "MEDIUM"
	case genai.HarmProbabilityHigh:
		return "HIGH"
	default:
		return "HARM_PROBABILITY_UNSPECIFIED"
	}
}
