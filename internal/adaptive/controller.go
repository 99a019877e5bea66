// Package adaptive drives goal-directed browser sessions: observe the page,
// ask the oracle for one next action, run it, repeat until the goal is met or
// a stop condition fires.
package adaptive

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rahul/helmsman/internal/action"
	"github.com/rahul/helmsman/internal/classify"
	"github.com/rahul/helmsman/internal/executor"
	"github.com/rahul/helmsman/internal/observability"
)

const (
	DefaultMaxIterations    = 20
	DefaultStepDelay        = time.Second
	DefaultFallbackDistance = 500

	// unrecoverableStreak is how many driver-level failures in a row end a session.
	unrecoverableStreak = 2
)

// PageOracle picks the next action for a goal given the current page and
// what has been tried so far.
type PageOracle interface {
	AnalyzePage(ctx context.Context, state action.EnvironmentState, goal string, history []action.Step) (action.Decision, error)
}

// BrowserRunner runs browser actions and snapshots the page.
// *executor.BrowserRegistry satisfies it.
type BrowserRunner interface {
	Run(ctx context.Context, a action.Action) action.ExecutionResult
	Capture(ctx context.Context) (action.EnvironmentState, error)
}

type Config struct {
	MaxIterations    int
	StepDelay        time.Duration
	FallbackDistance int
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.StepDelay < 0 {
		c.StepDelay = 0
	}
	if c.FallbackDistance <= 0 {
		c.FallbackDistance = DefaultFallbackDistance
	}
	return c
}

// Controller runs adaptive sessions. It holds no per-session state, so one
// Controller can serve several sessions one after another.
type Controller struct {
	oracle  PageOracle
	browser BrowserRunner
	cfg     Config
	logger  *zap.Logger
	events  *observability.EventLogger
	metrics *observability.Metrics
}

func NewController(oracle PageOracle, browser BrowserRunner, cfg Config, logger *zap.Logger, events *observability.EventLogger, metrics *observability.Metrics) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		oracle:  oracle,
		browser: browser,
		cfg:     cfg.withDefaults(),
		logger:  logger.Named("adaptive"),
		events:  events,
		metrics: metrics,
	}
}

// MaxIterations is the configured iteration cap.
func (c *Controller) MaxIterations() int { return c.cfg.MaxIterations }

// Fallback is the action substituted when the oracle cannot be consulted.
func Fallback(distance int) action.Action {
	return action.NewBrowser(action.Scroll, map[string]string{
		action.FieldDirection: "down",
		action.FieldDistance:  strconv.Itoa(distance),
	}, "fallback: oracle unavailable, scrolling for more content", action.FromFallback)
}

// session is the state of one goal. It never leaves Run.
type session struct {
	id        string
	goal      string
	history   []action.Step
	iteration int
	streak    int
	last      action.EnvironmentState
	reason    action.Termination
}

// driverFailure counts one more consecutive driver failure and reports
// whether the session must stop. Only a successful act resets the count: a
// driver that failed to load a page usually still renders an error page that
// captures fine.
func (s *session) driverFailure() bool {
	s.streak++
	return s.streak >= unrecoverableStreak
}

// Run drives one session to completion. Cancellation of ctx does not stop
// the loop; it ends only on its own termination conditions.
func (c *Controller) Run(ctx context.Context, goal string) action.AdaptiveReport {
	ctx = context.WithoutCancel(ctx)
	s := &session{id: uuid.NewString(), goal: goal}

	leave := observability.Enter(observability.RoleBrowsing, goal)
	defer leave()

	logger := c.logger.With(zap.String("session_id", s.id))
	logger.Info("Adaptive session started",
		zap.String("goal", goal),
		zap.Int("max_iterations", c.cfg.MaxIterations))

	limit := rate.Inf
	if c.cfg.StepDelay > 0 {
		limit = rate.Every(c.cfg.StepDelay)
	}
	pace := rate.NewLimiter(limit, 1)

	s.reason = c.loop(ctx, s, pace, logger)

	if s.reason != action.UnrecoverableError {
		if state, err := c.browser.Capture(ctx); err == nil {
			s.last = state
		}
	}

	logger.Info("Adaptive session ended",
		zap.String("termination", string(s.reason)),
		zap.Int("iterations", s.iteration))
	c.metrics.ObserveAdaptive(string(s.reason), s.iteration)

	return action.AdaptiveReport{
		SessionID:   s.id,
		Goal:        goal,
		Iterations:  s.iteration,
		Termination: s.reason,
		Steps:       s.history,
		FinalState:  s.last,
	}
}

func (c *Controller) loop(ctx context.Context, s *session, pace *rate.Limiter, logger *zap.Logger) action.Termination {
	for s.iteration < c.cfg.MaxIterations {
		if err := pace.Wait(ctx); err != nil {
			logger.Warn("Step pacing failed", zap.Error(err))
		}

		// Observe
		state, err := c.browser.Capture(ctx)
		if err != nil {
			state = action.EnvironmentState{URL: s.last.URL, CapturedAt: time.Now(), Err: err.Error()}
			logger.Warn("State capture failed", zap.Int("iteration", s.iteration), zap.Error(err))
		}
		s.last = state
		if errors.Is(err, executor.ErrUnrecoverable) && s.driverFailure() {
			return action.UnrecoverableError
		}

		// Decide
		next, done := c.decide(ctx, s, state, logger)
		if done {
			return action.GoalReached
		}

		// Act
		result := c.browser.Run(ctx, next)
		s.history = append(s.history, action.Step{State: state, Action: next, Result: result})
		s.iteration++

		c.events.LogAdaptive(s.id, s.iteration, next.String(), result.Succeeded)
		c.metrics.ObserveAction(string(action.Browser), result.Succeeded, result.Duration)
		logger.Debug("Adaptive step",
			zap.Int("iteration", s.iteration),
			zap.String("action", next.String()),
			zap.Bool("succeeded", result.Succeeded))

		// Evaluate
		if !result.Fatal {
			s.streak = 0
		} else if s.driverFailure() {
			return action.UnrecoverableError
		}
	}
	return action.IterationLimitExceeded
}

// decide asks the oracle for the next action. Any failure, including a
// decision that is not a runnable browser action, yields the fallback.
func (c *Controller) decide(ctx context.Context, s *session, state action.EnvironmentState, logger *zap.Logger) (action.Action, bool) {
	d, err := c.oracle.AnalyzePage(ctx, state, s.goal, s.history)
	if err == nil && d.Done {
		logger.Info("Oracle reports goal reached", zap.String("reasoning", d.Reasoning))
		return action.Action{}, true
	}
	if err == nil {
		var next action.Action
		if next, err = validDecision(d); err == nil {
			return next, false
		}
	}

	logger.Warn("Oracle decision unusable, using fallback",
		zap.Int("iteration", s.iteration),
		zap.String("error_kind", string(action.OracleFailure)),
		zap.Error(err))
	c.metrics.ObserveOracleFailure()
	return Fallback(c.cfg.FallbackDistance), false
}

func validDecision(d action.Decision) (action.Action, error) {
	if d.Action.Kind() != action.Browser {
		return action.Action{}, fmt.Errorf("decision is not a browser action: %q", d.Action.String())
	}
	return classify.Normalize(d.Action)
}
