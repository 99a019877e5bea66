package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/rahul/helmsman/internal/adaptive"
	"github.com/rahul/helmsman/internal/agent"
	"github.com/rahul/helmsman/internal/executor"
	"github.com/rahul/helmsman/internal/governance"
	"github.com/rahul/helmsman/internal/observability"
	"github.com/rahul/helmsman/internal/oracle"
	"github.com/rahul/helmsman/internal/orchestrator"
	"github.com/rahul/helmsman/internal/store"
	"github.com/rahul/helmsman/internal/tools"
	"github.com/rahul/helmsman/pkg/config"
)

// runtime holds everything a command needs to answer requests.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	agent   *agent.Agent
	history *store.HistoryStore
	browser *tools.Browser
	events  *observability.EventLogger
	metrics *observability.Metrics
}

func newModel(cfg *config.Config) (llms.Model, error) {
	name, p := cfg.GetDefaultProvider()
	if name == "" {
		return nil, fmt.Errorf("no enabled provider found in config")
	}

	switch name {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(p.APIKey),
			openai.WithModel(p.Model),
		}
		if p.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(p.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("provider %s is not supported", name)
	}
}

func newGate(cfg config.SafetyConfig) (*governance.DefaultPolicyEngine, error) {
	gate := governance.NewDefaultPolicyEngine()
	for _, c := range cfg.ExtraCommands {
		gate.FlagCommand(c)
	}
	for _, p := range cfg.ExtraPatterns {
		if err := gate.FlagPattern(p); err != nil {
			return nil, fmt.Errorf("safety pattern %q: %w", p, err)
		}
	}
	return gate, nil
}

func newRuntime(cfg *config.Config) (*runtime, error) {
	logger := observability.GetLogger()

	model, err := newModel(cfg)
	if err != nil {
		return nil, err
	}
	gate, err := newGate(cfg.Safety)
	if err != nil {
		return nil, err
	}

	history, err := store.NewHistoryStore(cfg.Memory.Path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	events := observability.NewEventLogger(logger, cfg.Logger.OracleLog, cfg.Logger.MaxSize)
	metrics := observability.NewMetrics()
	client := oracle.NewClient(model, oracle.NewPromptManager(cfg.App.PromptsDir), logger, events)

	cwd := cfg.Executor.WorkDir
	if cwd == "" {
		if cwd, err = os.Getwd(); err != nil {
			history.Close()
			return nil, err
		}
	}
	terminal := executor.NewTerminalRunner(tools.NewShell(cfg.Executor.Shell), cwd, cfg.Executor.Timeout, logger)

	browser := tools.NewBrowser(tools.BrowserConfig{
		Headless:      cfg.Browser.Headless,
		ActionTimeout: cfg.Browser.ActionTimeout,
		ScreenshotDir: cfg.Browser.ScreenshotDir,
		SearchURL:     cfg.Browser.SearchURL,
	}, logger)
	web := executor.NewBrowserRegistry(browser, logger)

	var loop orchestrator.Loop
	if cfg.Browser.Adaptive {
		loop = adaptive.NewController(client, web, adaptive.Config{
			MaxIterations:    cfg.Browser.MaxIterations,
			StepDelay:        cfg.Browser.StepDelay,
			FallbackDistance: cfg.Browser.FallbackDistance,
		}, logger, events, metrics)
	}

	orch := orchestrator.New(orchestrator.Config{
		Concurrent:  cfg.Orchestrator.Concurrent,
		AutoApprove: cfg.Orchestrator.AutoApprove,
		Adaptive:    cfg.Browser.Adaptive,
	}, terminal, web, gate, loop, logger, events, metrics)

	return &runtime{
		cfg:     cfg,
		logger:  logger,
		agent:   agent.New(client, orch, history, cfg.Memory.HistoryLimit, logger, metrics),
		history: history,
		browser: browser,
		events:  events,
		metrics: metrics,
	}, nil
}

// serveMetrics exposes /metrics in the background when an address is set.
func (r *runtime) serveMetrics(ctx context.Context) {
	if r.cfg.Metrics.Addr == "" {
		return
	}
	go func() {
		if err := r.metrics.Serve(ctx, r.cfg.Metrics.Addr, r.logger); err != nil {
			r.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
}

func (r *runtime) Close() {
	r.browser.Close()
	if err := r.history.Close(); err != nil {
		r.logger.Warn("Failed to close history", zap.Error(err))
	}
}
