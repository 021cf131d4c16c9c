package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	guardrailsdk "github.com/run-bigpig/llm-guardrails/pkg"
	"github.com/run-bigpig/llm-guardrails/pkg/config"
)

type app struct {
	configFile string
	provider   string
	model      string
	logLevel   string
	noColor    bool

	out    io.Writer
	errOut io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "guardrails",
		Short:         "Check prompts against a hosted model's safety filters",
		Long:          "Sends prompts to a generative AI provider and reports the generated text together with the provider's per-category safety ratings.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "YAML config file (default $"+config.EnvConfigFile+")")
	flags.StringVarP(&a.provider, "provider", "p", "", "Provider: gemini, vertex or openai")
	flags.StringVarP(&a.model, "model", "m", "", "Model name")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVar(&a.noColor, "no-color", os.Getenv("NO_COLOR") != "", "Disable colored output")

	root.AddCommand(
		a.newCheckCmd(),
		a.newStreamCmd(),
		a.newServeCmd(),
		a.newMCPCmd(),
		a.newLayersCmd(),
		a.newSamplesCmd(),
	)

	return root
}

// loadConfig applies command line overrides on top of the loaded configuration
func (a *app) loadConfig() (*config.Config, error) {
	var opts []config.LoadOption
	if a.configFile != "" {
		opts = append(opts, config.WithConfigFile(a.configFile))
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, err
	}

	if a.provider != "" {
		cfg.Provider = a.provider
	}
	if a.model != "" {
		cfg.Model = a.model
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) runtime(ctx context.Context) (*guardrailsdk.Runtime, func(), error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	rt, err := guardrailsdk.New(cfg)
	if err != nil {
		return nil, nil, err
	}

	shutdown := func() {
		if err := rt.Shutdown(context.WithoutCancel(ctx)); err != nil {
			fmt.Fprintf(a.errOut, "shutdown: %v\n", err)
		}
	}
	return rt, shutdown, nil
}
