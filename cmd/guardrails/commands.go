package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/run-bigpig/llm-guardrails/pkg/guardrails"
	"github.com/run-bigpig/llm-guardrails/pkg/mcp"
	"github.com/run-bigpig/llm-guardrails/pkg/prompts"
	"github.com/run-bigpig/llm-guardrails/pkg/server"
)

func (a *app) newCheckCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check <prompt>",
		Short: "Run a prompt once and print the text with its safety ratings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := prompts.Validate(strings.Join(args, " "))
			if err != nil {
				return err
			}

			rt, shutdown, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdown()

			result := rt.Guardrail.Check(cmd.Context(), prompt)

			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			fmt.Fprintln(a.out, result.Text)
			fmt.Fprintln(a.out)
			a.printRatings(result.SafetyRatings)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")

	return cmd
}

func (a *app) newStreamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stream <prompt>",
		Short: "Stream a prompt's response as it is generated, then print the safety ratings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := prompts.Validate(strings.Join(args, " "))
			if err != nil {
				return err
			}

			rt, shutdown, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdown()

			ratings := []guardrails.SafetyRating{}
			text := false
			for chunk, err := range rt.Guardrail.Stream(cmd.Context(), prompt) {
				if err != nil {
					fmt.Fprintln(a.out)
					fmt.Fprintln(a.errOut, guardrails.ErrorSentinel)
					return err
				}
				text = text || chunk.TextDelta != ""
				fmt.Fprint(a.out, chunk.TextDelta)
				ratings = append(ratings, chunk.SafetyRatings...)
			}

			if !text {
				fmt.Fprint(a.out, guardrails.NoTextSentinel)
			}
			fmt.Fprintln(a.out)
			fmt.Fprintln(a.out)
			a.printRatings(ratings)
			return nil
		},
	}
}

func (a *app) newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the guardrails HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, shutdown, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdown()

			serverCfg := rt.Config.Server
			if addr != "" {
				serverCfg.Addr = addr
			}

			srv := server.New(serverCfg, rt.Guardrail, rt.Transport.Name(), server.WithLogger(rt.Logger))
			return srv.ListenAndServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")

	return cmd
}

func (a *app) newMCPCmd() *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the guardrails tools over the Model Context Protocol",
		Long:  "Serves check_guardrails and the catalog tools over stdio, or over stateless HTTP when --http is set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, shutdown, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdown()

			tools := mcp.NewToolServer(cmd.Context(), rt.Guardrail, rt.Logger, server.Version)
			if httpAddr != "" {
				return tools.ServeHTTP(cmd.Context(), httpAddr)
			}
			return tools.ServeStdio(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "Serve over HTTP on this address instead of stdio")

	return cmd
}

func (a *app) newLayersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layers",
		Short: "Show who decides what AI content is visible",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for i, layer := range prompts.Layers() {
				if i > 0 {
					fmt.Fprintln(a.out)
				}
				fmt.Fprintf(a.out, "%s  %s (%s)\n", a.bold(layer.Name), layer.Owner, layer.Role)
				fmt.Fprintf(a.out, "  %s\n", layer.Description)
				fmt.Fprintf(a.out, "  Basis for decision: %s\n", layer.Basis)
				for _, policy := range layer.Policies {
					fmt.Fprintf(a.out, "  - %s: %s\n", policy.Title, policy.Description)
					for _, item := range policy.Items {
						fmt.Fprintf(a.out, "      * %s\n", item)
					}
				}
			}
			return nil
		},
	}
}

func (a *app) newSamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "samples",
		Short: "List demo prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			samples := prompts.Samples()
			if len(samples) == 0 {
				return errors.New("no samples available")
			}
			for _, s := range samples {
				fmt.Fprintf(a.out, "%-6s %-22s %s\n", s.Kind, s.Label, s.Prompt)
			}
			return nil
		},
	}
}
