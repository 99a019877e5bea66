package executor

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rahul/helmsman/internal/action"
)

// BrowserHandler runs one browser action type against the driver.
type BrowserHandler func(ctx context.Context, b Browser, a action.Action) (string, error)

// BrowserRegistry dispatches browser actions by type. Calls are serialized
// because the driver controls a single page.
type BrowserRegistry struct {
	browser  Browser
	logger   *zap.Logger
	handlers map[string]BrowserHandler
	mu       sync.Mutex
}

// NewBrowserRegistry creates a registry with handlers for every browser type.
func NewBrowserRegistry(b Browser, logger *zap.Logger) *BrowserRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &BrowserRegistry{
		browser:  b,
		logger:   logger.Named("browser_registry"),
		handlers: make(map[string]BrowserHandler),
	}
	r.Register(action.Navigate, handleNavigate)
	r.Register(action.Search, handleSearch)
	r.Register(action.Click, handleClick)
	r.Register(action.Input, handleInput)
	r.Register(action.Scroll, handleScroll)
	r.Register(action.Wait, handleWait)
	return r
}

// Register associates a handler with an action type, replacing any previous one.
func (r *BrowserRegistry) Register(actionType string, h BrowserHandler) {
	r.handlers[actionType] = h
}

// Run executes one browser action.
func (r *BrowserRegistry) Run(ctx context.Context, a action.Action) action.ExecutionResult {
	h, ok := r.handlers[a.Type()]
	if !ok {
		return action.Failed(action.ExecutorFailure, fmt.Sprintf("no handler registered for browser action %q", a.Type()), 0)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	out, err := h(ctx, r.browser, a)
	elapsed := time.Since(start)
	if err != nil {
		kind, fatal := errorKind(err)
		r.logger.Warn("Browser action failed",
			zap.String("type", a.Type()),
			zap.String("error_kind", string(kind)),
			zap.Bool("driver_failure", fatal),
			zap.Error(err))
		return action.ExecutionResult{Output: err.Error(), ErrorKind: kind, Duration: elapsed, Fatal: fatal}
	}
	return action.ExecutionResult{Succeeded: true, Output: out, Duration: elapsed}
}

// Capture asks the driver for a snapshot of the current page.
func (r *BrowserRegistry) Capture(ctx context.Context) (action.EnvironmentState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.browser.CaptureState(ctx)
}

func field(a action.Action, key string) string {
	v, _ := a.Field(key)
	return v
}

func handleNavigate(ctx context.Context, b Browser, a action.Action) (string, error) {
	return b.Navigate(ctx, field(a, action.FieldURL))
}

func handleSearch(ctx context.Context, b Browser, a action.Action) (string, error) {
	return b.Search(ctx, field(a, action.FieldQuery), field(a, action.FieldSelector))
}

func handleClick(ctx context.Context, b Browser, a action.Action) (string, error) {
	return b.Click(ctx, field(a, action.FieldSelector), field(a, action.FieldSelectorType))
}

func handleInput(ctx context.Context, b Browser, a action.Action) (string, error) {
	return b.FillInput(ctx, field(a, action.FieldSelector), field(a, action.FieldValue))
}

func handleScroll(ctx context.Context, b Browser, a action.Action) (string, error) {
	distance, err := strconv.Atoi(field(a, action.FieldDistance))
	if err != nil || distance <= 0 {
		distance = 500
	}
	return b.Scroll(ctx, field(a, action.FieldDirection), distance)
}

func handleWait(ctx context.Context, b Browser, a action.Action) (string, error) {
	ms, err := strconv.ParseInt(field(a, action.FieldDurationMs), 10, 64)
	if err != nil || ms < 0 {
		ms = 2000
	}
	return b.Wait(ctx, time.Duration(ms)*time.Millisecond)
}
