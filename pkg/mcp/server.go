package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport"
	"github.com/metoro-io/mcp-golang/transport/http"
	"github.com/metoro-io/mcp-golang/transport/stdio"

	"github.com/run-bigpig/llm-guardrails/pkg/guardrails"
	"github.com/run-bigpig/llm-guardrails/pkg/logging"
	"github.com/run-bigpig/llm-guardrails/pkg/prompts"
	"github.com/run-bigpig/llm-guardrails/pkg/requestid"
)

// Tool names
const (
	ToolCheckGuardrails = "check_guardrails"
	ToolListLayers      = "list_guardrail_layers"
	ToolListSamples     = "list_sample_prompts"
)

// DefaultHTTPPath is where the HTTP transport listens
const DefaultHTTPPath = "/mcp"

// CheckArgs are the arguments of the check_guardrails tool
type CheckArgs struct {
	Prompt string `json:"prompt" jsonschema:"description=Prompt to run through the model and its safety filters" required:"true"`
}

// ListArgs takes no arguments
type ListArgs struct{}

// ToolServer exposes a Guardrail as MCP tools
type ToolServer struct {
	ctx       context.Context
	guardrail guardrails.Guardrail
	logger    logging.Logger
	version   string
}

// NewToolServer creates a ToolServer. ctx is the parent of every tool call.
func NewToolServer(ctx context.Context, guardrail guardrails.Guardrail, logger logging.Logger, version string) *ToolServer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &ToolServer{
		ctx:       ctx,
		guardrail: guardrail,
		logger:    logger,
		version:   version,
	}
}

// CheckGuardrails runs a one-shot check and reports text and ratings
func (s *ToolServer) CheckGuardrails(args CheckArgs) (*mcplib.ToolResponse, error) {
	prompt, err := prompts.Validate(args.Prompt)
	if err != nil {
		return nil, err
	}

	ctx, id := requestid.Ensure(s.ctx)
	s.logger.Info(ctx, "MCP tool call", map[string]interface{}{
		"tool":       ToolCheckGuardrails,
		"request_id": id,
	})

	result := s.guardrail.Check(ctx, prompt)
	return mcplib.NewToolResponse(mcplib.NewTextContent(FormatResult(result))), nil
}

// ListLayers returns the governance layers as JSON
func (s *ToolServer) ListLayers(args ListArgs) (*mcplib.ToolResponse, error) {
	return jsonResponse(prompts.Layers())
}

// ListSamples returns the demo prompts as JSON
func (s *ToolServer) ListSamples(args ListArgs) (*mcplib.ToolResponse, error) {
	return jsonResponse(prompts.Samples())
}

func jsonResponse(v interface{}) (*mcplib.ToolResponse, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool response: %w", err)
	}
	return mcplib.NewToolResponse(mcplib.NewTextContent(string(data))), nil
}

// Register adds the tools to an MCP server
func (s *ToolServer) Register(server *mcplib.Server) error {
	if err := server.RegisterTool(ToolCheckGuardrails, "Sends a prompt to the configured model and returns its text with the provider's safety ratings", s.CheckGuardrails); err != nil {
		return fmt.Errorf("failed to register %s: %w", ToolCheckGuardrails, err)
	}
	if err := server.RegisterTool(ToolListLayers, "Lists the governance layers that decide what AI content is visible", s.ListLayers); err != nil {
		return fmt.Errorf("failed to register %s: %w", ToolListLayers, err)
	}
	if err := server.RegisterTool(ToolListSamples, "Lists demo prompts, one benign and one the filters should flag", s.ListSamples); err != nil {
		return fmt.Errorf("failed to register %s: %w", ToolListSamples, err)
	}
	return nil
}

// NewServer builds an MCP server on the transport with the tools registered
func (s *ToolServer) NewServer(t transport.Transport) (*mcplib.Server, error) {
	server := mcplib.NewServer(
		t,
		mcplib.WithName("llm-guardrails"),
		mcplib.WithInstructions("Check prompts against a hosted model's safety filters"),
		mcplib.WithVersion(s.version),
	)
	if err := s.Register(server); err != nil {
		return nil, err
	}
	return server, nil
}

// ServeStdio serves the tools over stdin/stdout until ctx is cancelled
func (s *ToolServer) ServeStdio(ctx context.Context) error {
	server, err := s.NewServer(stdio.NewStdioServerTransport())
	if err != nil {
		return err
	}
	return s.serve(ctx, server)
}

// ServeHTTP serves the tools over stateless HTTP on addr until ctx is cancelled
func (s *ToolServer) ServeHTTP(ctx context.Context, addr string) error {
	server, err := s.NewServer(http.NewHTTPTransport(DefaultHTTPPath).WithAddr(addr))
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "Starting MCP HTTP server", map[string]interface{}{
		"address": addr,
		"path":    DefaultHTTPPath,
	})
	return s.serve(ctx, server)
}

func (s *ToolServer) serve(ctx context.Context, server *mcplib.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("mcp server failed: %w", err)
		}
		// the stdio transport serves in the background
		<-ctx.Done()
		return nil
	case <-ctx.Done():
		return nil
	}
}

// FormatResult renders a Result as plain text for tool output
func FormatResult(result guardrails.Result) string {
	var b strings.Builder
	b.WriteString(result.Text)
	b.WriteString("\n\nSafety ratings:")

	if len(result.SafetyRatings) == 0 {
		b.WriteString(" none reported")
		return b.String()
	}

	for _, r := range result.SafetyRatings {
		fmt.Fprintf(&b, "\n- %s: %s (%s)", r.DisplayCategory(), r.Label(), r.Probability)
	}
	fmt.Fprintf(&b, "\nHighest severity: %s", result.MaxSeverity().Label())
	return b.String()
}
