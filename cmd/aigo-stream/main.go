// Command aigo-stream streams a single chat completion to stdout against
// any provider configured in an aigo config file.
//
// Usage:
//
//	aigo-stream ask --provider openai --model gpt-4o "write a haiku about rivers"
//
// Without --provider, the provider named by the config's default.provider
// key is used. Ctrl-C cancels the in-flight stream and exits cleanly.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aigohq/aigo/internal/config"
	"github.com/aigohq/aigo/providers/ai"
	"github.com/aigohq/aigo/providers/ai/anthropic"
	"github.com/aigohq/aigo/providers/ai/bedrock"
	"github.com/aigohq/aigo/providers/ai/gemini"
	"github.com/aigohq/aigo/providers/ai/openai"
	"github.com/aigohq/aigo/providers/observability"
	"github.com/aigohq/aigo/providers/observability/slogobs"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "aigo-stream",
		Short:        "Stream a single chat completion against a configured provider",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildAskCmd())
	return rootCmd
}

func buildAskCmd() *cobra.Command {
	var (
		configPath string
		provider   string
		model      string
		system     string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Stream a prompt to the chosen provider and print chunks as they arrive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			name := provider
			if name == "" {
				name = cfg.Default.Provider
			}
			if name == "" {
				return fmt.Errorf("no provider specified and no default.provider set in config")
			}

			pcfg := cfg.Providers[name]
			chatProvider, err := buildProvider(name, pcfg)
			if err != nil {
				return err
			}

			streamer, ok := chatProvider.(ai.StreamProvider)
			if !ok {
				return fmt.Errorf("provider %q does not support streaming", name)
			}

			if model == "" {
				model = cfg.Default.Model
			}

			obs := slogobs.New()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			request := ai.ChatRequest{
				Model:        model,
				SystemPrompt: system,
				Messages: []ai.Message{
					{Role: ai.RoleUser, Content: args[0]},
				},
			}

			ctx, span := obs.StartSpan(ctx, "cmd.ask", observability.String("provider", name), observability.String("model", model))
			defer span.End()

			stream, err := streamer.StreamMessage(ctx, request)
			if err != nil {
				span.RecordError(err)
				return fmt.Errorf("starting stream: %w", err)
			}

			out := cmd.OutOrStdout()
			for event, err := range stream.Iter() {
				if err != nil {
					span.RecordError(err)
					if ctx.Err() != nil {
						fmt.Fprintln(out)
						return fmt.Errorf("stream cancelled: %w", ctx.Err())
					}
					return fmt.Errorf("stream error: %w", err)
				}
				switch event.Type {
				case ai.StreamEventContent:
					fmt.Fprint(out, event.Content)
				case ai.StreamEventReasoning:
					if verbose {
						fmt.Fprintf(cmd.ErrOrStderr(), "[reasoning] %s", event.Reasoning)
					}
				case ai.StreamEventToolCall:
					if verbose {
						fmt.Fprintf(cmd.ErrOrStderr(), "\n[tool_call] %s %s%s\n", event.ToolCall.ID, event.ToolCall.Name, event.ToolCall.Arguments)
					}
				case ai.StreamEventUsage:
					if verbose && event.Usage != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "\n[usage] prompt=%d completion=%d total=%d\n",
							event.Usage.PromptTokens, event.Usage.CompletionTokens, event.Usage.TotalTokens)
					}
				case ai.StreamEventDone:
					fmt.Fprintln(out)
					if verbose {
						fmt.Fprintf(cmd.ErrOrStderr(), "[done] finish_reason=%s\n", event.FinishReason)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&provider, "provider", "", "Provider name (overrides default.provider)")
	cmd.Flags().StringVar(&model, "model", "", "Model name (overrides default.model)")
	cmd.Flags().StringVar(&system, "system", "", "System prompt")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print reasoning, tool-call, and usage events to stderr")
	return cmd
}

func buildProvider(name string, pcfg config.ProviderConfig) (ai.Provider, error) {
	switch strings.ToLower(name) {
	case "openai":
		p := openai.NewOpenAIProvider()
		if pcfg.APIKey != "" {
			p.WithAPIKey(pcfg.APIKey)
		}
		if pcfg.BaseURL != "" {
			p.WithBaseURL(pcfg.BaseURL)
		}
		return p, nil
	case "anthropic":
		p := anthropic.New()
		if pcfg.APIKey != "" {
			p.WithAPIKey(pcfg.APIKey)
		}
		if pcfg.BaseURL != "" {
			p.WithBaseURL(pcfg.BaseURL)
		}
		return p, nil
	case "gemini":
		p := gemini.New()
		if pcfg.APIKey != "" {
			p.WithAPIKey(pcfg.APIKey)
		}
		if pcfg.BaseURL != "" {
			p.WithBaseURL(pcfg.BaseURL)
		}
		return p, nil
	case "bedrock":
		p := bedrock.New()
		return p, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
