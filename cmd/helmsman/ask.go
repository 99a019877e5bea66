package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rahul/helmsman/internal/gateway"
	"github.com/rahul/helmsman/internal/observability"
)

var askCmd = &cobra.Command{
	Use:   "ask <request>",
	Short: "Run a single request and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		observability.InitializePlain(cfg.Logger)
		defer observability.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := newRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		console := gateway.NewConsole(rt.agent, os.Stdin, cmd.OutOrStdout(), gateway.ConsoleOptions{
			Interactive: stdinIsTerminal(),
			AutoApprove: autoApprove,
		}, rt.logger)
		console.Ask(ctx, strings.Join(args, " "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}
