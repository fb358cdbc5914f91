package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/n0madic/go-callview/internal/chat"
	"github.com/n0madic/go-callview/internal/chatformat"
	"github.com/n0madic/go-callview/internal/config"
	"github.com/n0madic/go-callview/internal/models"
	"github.com/n0madic/go-callview/internal/playground"
	"github.com/n0madic/go-callview/internal/refs"
	"github.com/n0madic/go-callview/internal/server"
	"github.com/n0madic/go-callview/internal/telemetry"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
				Endpoint:    a.cfg.Telemetry.OTLPEndpoint,
				Insecure:    a.cfg.Telemetry.Insecure,
				ServiceName: a.cfg.Telemetry.ServiceName,
				Version:     config.Version,
			}, a.log)
			if err != nil {
				return err
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(flushCtx); err != nil {
					a.log.Warn("telemetry.shutdown_failed", zap.Error(err))
				}
			}()

			r, err := a.resolver(ctx, "")
			if err != nil {
				return err
			}
			srv := server.New(a.cfg.Server, a.cfg.Telemetry.ServiceName, a.builder(r), a.runner(), a.log)

			errCh := make(chan error, 1)
			go func() {
				a.log.Info("server.start",
					zap.String("addr", a.cfg.Server.Addr()),
					zap.String("version", config.Version),
					zap.Bool("auth", a.cfg.Server.AccessToken != ""),
					zap.Bool("resolver", r != nil))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			a.log.Info("server.shutdown")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Bind host (overrides server.host)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides server.port)")
	return cmd
}

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Report the chat format of a call",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			call, err := readCall(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			format := chatformat.Classify(call)
			return writeOutput(cmd.OutOrStdout(), opts.output, map[string]any{
				"format":               format,
				"is_chat":              chatformat.IsChat(call),
				"is_structured_output": chatformat.IsStructuredOutput(call),
			})
		},
	}
	addFileFlag(cmd, &file)
	return cmd
}

func newRefsCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "refs",
		Short: "List the references a call's inputs and output point at",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			call, err := readCall(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			found := refs.Collect(call)
			if found == nil {
				found = []string{}
			}
			return writeOutput(cmd.OutOrStdout(), opts.output, map[string]any{"refs": found})
		},
	}
	addFileFlag(cmd, &file)
	return cmd
}

func newNormalizeCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Rewrite a call so its inputs and output follow the canonical chat schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			call, err := readCall(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.output, chatformat.NormalizeTraceCall(call))
		},
	}
	addFileFlag(cmd, &file)
	return cmd
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var file, refsFile string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Resolve a call's references and print its chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			call, err := readCall(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			r, err := a.resolver(ctx, refsFile)
			if err != nil {
				return err
			}

			session := chat.NewSession(a.builder(r))
			defer session.Close()
			session.Load(ctx, call)
			result, err := session.Wait(ctx)
			if result == nil {
				return err
			}
			if err != nil {
				a.log.Warn("chat.partial", zap.Error(err))
			}
			return writeOutput(cmd.OutOrStdout(), opts.output, result)
		},
	}
	addFileFlag(cmd, &file)
	cmd.Flags().StringVar(&refsFile, "refs", "", "JSON object mapping reference URIs to values; replaces the trace server")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Time allowed for reference resolution")
	return cmd
}

func newPlaygroundCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "playground",
		Short: "Seed and replay a call in the playground",
	}

	var stateFile string
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Print the playground state and request seeded from a call",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			call, err := readCall(stateFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			state := playground.FromCall(call)
			return writeOutput(cmd.OutOrStdout(), opts.output, map[string]any{
				"state":  state,
				"inputs": playground.Inputs(state),
			})
		},
	}
	addFileFlag(stateCmd, &stateFile)

	var runFile, model string
	var maxTokens int
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Replay a call against its model provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			call, err := readCall(runFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			state := playground.FromCall(call)
			if model != "" {
				state.Model = models.Resolve(model)
				state.MaxTokensLimit = models.MaxTokens(state.Model)
			}
			if maxTokens > 0 {
				state.MaxTokens = min(maxTokens, state.MaxTokensLimit)
			}
			comp, err := a.runner().Run(cmd.Context(), state)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.output, map[string]any{"completion": comp})
		},
	}
	addFileFlag(runCmd, &runFile)
	runCmd.Flags().StringVar(&model, "model", "", "Model to replay with (resolved against the catalog)")
	runCmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Completion token limit")

	cmd.AddCommand(stateCmd, runCmd)
	return cmd
}

func newModelsCmd(opts *rootOptions) *cobra.Command {
	var resolve string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the playground model catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if resolve != "" {
				id := models.Resolve(resolve)
				return writeOutput(cmd.OutOrStdout(), opts.output, map[string]any{
					"query":      resolve,
					"model":      id,
					"provider":   models.ProviderFor(id),
					"max_tokens": models.MaxTokens(id),
				})
			}
			return writeOutput(cmd.OutOrStdout(), opts.output, models.Catalog())
		},
	}
	cmd.Flags().StringVar(&resolve, "resolve", "", "Show which catalog model a recorded model name maps to")
	return cmd
}

func addFileFlag(cmd *cobra.Command, file *string) {
	cmd.Flags().StringVarP(file, "file", "f", "", "Call JSON file (default: stdin)")
}
