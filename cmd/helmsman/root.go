package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/rahul/helmsman/internal/gateway"
	"github.com/rahul/helmsman/internal/observability"
	"github.com/rahul/helmsman/pkg/config"
)

var (
	cfgFile     string
	autoApprove bool
	cfg         *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "helmsman",
	Short: "Helmsman turns assistant replies into terminal and browser actions.",
	Long: `Helmsman asks a language model for help, extracts the commands and browser
actions from its reply, and runs them after you confirm. Without a
subcommand it starts an interactive console.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	RunE: runConsole,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "helmsman.yaml", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVarP(&autoApprove, "yes", "y", false, "approve plans without asking (flagged commands are still confirmed)")
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func runConsole(cmd *cobra.Command, args []string) error {
	observability.InitializeLogger(cfg.Logger)
	defer observability.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	rt.serveMetrics(ctx)

	console := gateway.NewConsole(rt.agent, os.Stdin, os.Stdout, gateway.ConsoleOptions{
		Interactive: stdinIsTerminal(),
		AutoApprove: autoApprove,
	}, rt.logger)

	fmt.Println("Type a request, or \"exit\" to quit.")
	done := make(chan error, 1)
	go func() { done <- console.Start(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			rt.logger.Error("Console stopped", zap.Error(err))
		}
		return err
	case <-ctx.Done():
		fmt.Println()
		return nil
	}
}
