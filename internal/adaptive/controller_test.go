package adaptive_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/rahul/helmsman/internal/action"
	"github.com/rahul/helmsman/internal/adaptive"
	"github.com/rahul/helmsman/internal/executor"
	"github.com/rahul/helmsman/internal/mocks"
	"github.com/rahul/helmsman/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var page = action.EnvironmentState{URL: "https://example.com", Title: "Example"}

func click(selector string) action.Decision {
	return action.Decision{
		Action: action.NewBrowser(action.Click, map[string]string{action.FieldSelector: selector}, "", action.FromOracle),
	}
}

func newController(t *testing.T, max int) (*adaptive.Controller, *mocks.MockPageOracle, *mocks.MockBrowser, *observability.Metrics) {
	t.Helper()
	oracle := new(mocks.MockPageOracle)
	browser := new(mocks.MockBrowser)
	metrics := observability.NewMetrics()
	reg := executor.NewBrowserRegistry(browser, zap.NewNop())
	c := adaptive.NewController(oracle, reg, adaptive.Config{MaxIterations: max}, zap.NewNop(), nil, metrics)
	return c, oracle, browser, metrics
}

func TestRun_StopsAtIterationCap(t *testing.T) {
	c, oracle, browser, metrics := newController(t, 3)

	browser.On("CaptureState", mock.Anything).Return(page, nil)
	browser.On("Click", mock.Anything, "#next", "").Return("clicked", nil)
	oracle.On("AnalyzePage", mock.Anything, page, "read every page", mock.Anything).Return(click("#next"), nil)

	report := c.Run(context.Background(), "read every page")

	assert.Equal(t, action.IterationLimitExceeded, report.Termination)
	assert.Equal(t, 3, report.Iterations)
	require.Len(t, report.Steps, 3)
	for _, s := range report.Steps {
		assert.Equal(t, action.Click, s.Action.Type())
		assert.True(t, s.Result.Succeeded)
	}
	oracle.AssertNumberOfCalls(t, "AnalyzePage", 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AdaptiveSessions.WithLabelValues(string(action.IterationLimitExceeded))))
	assert.NotEmpty(t, report.SessionID)
}

func TestRun_OracleFailureUsesFallbackOnce(t *testing.T) {
	c, oracle, browser, metrics := newController(t, 10)

	browser.On("CaptureState", mock.Anything).Return(page, nil)
	browser.On("Scroll", mock.Anything, "down", adaptive.DefaultFallbackDistance).Return("scrolled", nil)
	browser.On("Click", mock.Anything, "#buy", "").Return("clicked", nil)

	oracle.On("AnalyzePage", mock.Anything, page, "buy it", mock.Anything).
		Return(action.Decision{}, errors.New("rate limited")).Once()
	oracle.On("AnalyzePage", mock.Anything, page, "buy it", mock.Anything).
		Return(click("#buy"), nil).Once()
	oracle.On("AnalyzePage", mock.Anything, page, "buy it", mock.Anything).
		Return(action.Decision{Done: true, Reasoning: "bought"}, nil).Once()

	report := c.Run(context.Background(), "buy it")

	assert.Equal(t, action.GoalReached, report.Termination)
	assert.Equal(t, 2, report.Iterations)
	require.Len(t, report.Steps, 2)

	first := report.Steps[0].Action
	assert.Equal(t, action.Scroll, first.Type())
	assert.Equal(t, action.FromFallback, first.Provenance())
	dir, _ := first.Field(action.FieldDirection)
	assert.Equal(t, "down", dir)
	assert.Equal(t, action.Click, report.Steps[1].Action.Type())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OracleFailures))
}

func TestRun_InvalidDecisionFallsBack(t *testing.T) {
	c, oracle, browser, _ := newController(t, 1)

	browser.On("CaptureState", mock.Anything).Return(page, nil)
	browser.On("Scroll", mock.Anything, "down", adaptive.DefaultFallbackDistance).Return("scrolled", nil)

	// navigate without a url cannot run
	bad := action.Decision{Action: action.NewBrowser(action.Navigate, nil, "", action.FromOracle)}
	oracle.On("AnalyzePage", mock.Anything, page, "go", mock.Anything).Return(bad, nil)

	report := c.Run(context.Background(), "go")

	require.Len(t, report.Steps, 1)
	assert.Equal(t, action.FromFallback, report.Steps[0].Action.Provenance())
	assert.Equal(t, action.IterationLimitExceeded, report.Termination)
}

func TestRun_TerminalDecisionFallsBack(t *testing.T) {
	c, oracle, browser, _ := newController(t, 1)

	browser.On("CaptureState", mock.Anything).Return(page, nil)
	browser.On("Scroll", mock.Anything, "down", adaptive.DefaultFallbackDistance).Return("scrolled", nil)
	oracle.On("AnalyzePage", mock.Anything, page, "go", mock.Anything).
		Return(action.Decision{Action: action.NewTerminal("rm -rf /", "", action.FromOracle)}, nil)

	report := c.Run(context.Background(), "go")

	require.Len(t, report.Steps, 1)
	assert.Equal(t, action.Scroll, report.Steps[0].Action.Type())
}

func TestRun_GoalReachedImmediately(t *testing.T) {
	c, oracle, browser, _ := newController(t, 5)

	browser.On("CaptureState", mock.Anything).Return(page, nil)
	oracle.On("AnalyzePage", mock.Anything, page, "look", mock.Anything).
		Return(action.Decision{Done: true}, nil)

	report := c.Run(context.Background(), "look")

	assert.Equal(t, action.GoalReached, report.Termination)
	assert.Zero(t, report.Iterations)
	assert.Empty(t, report.Steps)
	assert.Equal(t, page, report.FinalState)
}

func TestRun_TwoDriverFailuresInARowEndSession(t *testing.T) {
	c, oracle, browser, _ := newController(t, 10)
	lost := fmt.Errorf("net::ERR_NAME_NOT_RESOLVED: %w", executor.ErrUnrecoverable)

	browser.On("CaptureState", mock.Anything).Return(page, nil).Once()
	browser.On("CaptureState", mock.Anything).Return(action.EnvironmentState{}, lost)
	browser.On("Navigate", mock.Anything, "https://nowhere.invalid").Return("", lost)
	oracle.On("AnalyzePage", mock.Anything, mock.Anything, "open it", mock.Anything).
		Return(action.Decision{Action: action.NewBrowser(action.Navigate,
			map[string]string{action.FieldURL: "https://nowhere.invalid"}, "", action.FromOracle)}, nil)

	report := c.Run(context.Background(), "open it")

	assert.Equal(t, action.UnrecoverableError, report.Termination)
	assert.Equal(t, 1, report.Iterations)
	require.Len(t, report.Steps, 1)
	assert.True(t, report.Steps[0].Result.Fatal)
	assert.True(t, report.FinalState.Degraded())
}

func TestRun_UnreachablePageEndsSessionDespiteCaptures(t *testing.T) {
	c, oracle, browser, metrics := newController(t, 10)
	lost := fmt.Errorf("net::ERR_NAME_NOT_RESOLVED: %w", executor.ErrUnrecoverable)
	errorPage := action.EnvironmentState{URL: "chrome-error://chromewebdata/", Title: "nowhere.invalid"}

	browser.On("CaptureState", mock.Anything).Return(errorPage, nil)
	browser.On("Navigate", mock.Anything, "https://nowhere.invalid").Return("", lost)
	oracle.On("AnalyzePage", mock.Anything, errorPage, "open it", mock.Anything).
		Return(action.Decision{Action: action.NewBrowser(action.Navigate,
			map[string]string{action.FieldURL: "https://nowhere.invalid"}, "", action.FromOracle)}, nil)

	report := c.Run(context.Background(), "open it")

	assert.Equal(t, action.UnrecoverableError, report.Termination)
	assert.Equal(t, 2, report.Iterations)
	require.Len(t, report.Steps, 2)
	for _, s := range report.Steps {
		assert.True(t, s.Result.Fatal)
	}
	browser.AssertNumberOfCalls(t, "Navigate", 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AdaptiveSessions.WithLabelValues(string(action.UnrecoverableError))))
}

func TestRun_SuccessResetsDriverFailureStreak(t *testing.T) {
	c, oracle, browser, _ := newController(t, 4)
	lost := fmt.Errorf("target closed: %w", executor.ErrUnrecoverable)

	browser.On("CaptureState", mock.Anything).Return(page, nil)
	browser.On("Click", mock.Anything, "#flaky", "").Return("", lost).Once()
	browser.On("Click", mock.Anything, "#flaky", "").Return("clicked", nil)
	oracle.On("AnalyzePage", mock.Anything, page, "click", mock.Anything).Return(click("#flaky"), nil)

	report := c.Run(context.Background(), "click")

	assert.Equal(t, action.IterationLimitExceeded, report.Termination)
	assert.Equal(t, 4, report.Iterations)
	assert.False(t, report.Steps[0].Result.Succeeded)
	assert.True(t, report.Steps[1].Result.Succeeded)
}

func TestRun_IgnoresCallerCancellation(t *testing.T) {
	c, oracle, browser, _ := newController(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	browser.On("CaptureState", mock.Anything).Return(page, nil)
	browser.On("Click", mock.Anything, "#a", "").Return("clicked", nil)
	oracle.On("AnalyzePage", mock.Anything, page, "g", mock.Anything).Return(click("#a"), nil)

	report := c.Run(ctx, "g")

	assert.Equal(t, action.IterationLimitExceeded, report.Termination)
	assert.Equal(t, 2, report.Iterations)
}

func TestFallback(t *testing.T) {
	a := adaptive.Fallback(250)
	assert.Equal(t, action.Browser, a.Kind())
	assert.Equal(t, action.Scroll, a.Type())
	d, _ := a.Field(action.FieldDistance)
	assert.Equal(t, "250", d)
}
