package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rahul/helmsman/internal/gateway"
	"github.com/rahul/helmsman/internal/observability"
)

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Serve requests from a Telegram bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		tgCfg, ok := cfg.GetTelegramConfig()
		if !ok {
			return fmt.Errorf("telegram gateway is not enabled or token is missing")
		}

		observability.PrintBanner()
		observability.InitializeTerminal()
		defer observability.CleanupTerminal()
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

		tg, err := gateway.NewTelegramGateway(tgCfg.Token, rt.agent, tgCfg.ConfirmTimeout, rt.logger)
		if err != nil {
			return err
		}

		if observability.IsTerminal() {
			go tick(ctx, time.Second, observability.PrintLiveStatus)
		}
		go tick(ctx, 30*time.Second, func() {
			observability.Heartbeat()
			rt.events.LogHeartbeat()
		})

		errCh := make(chan error, 1)
		go func() { errCh <- tg.Start(ctx) }()

		select {
		case err := <-errCh:
			if err != nil {
				rt.logger.Error("Gateway stopped", zap.Error(err))
				return err
			}
		case <-ctx.Done():
			tg.Stop()
			<-errCh
		}
		rt.logger.Info("Shut down")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(telegramCmd)
}

// tick calls fn every interval until ctx is done.
func tick(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
