// Package orchestrator executes a plan: it classifies the actions, shows the
// plan, gates terminal commands, dispatches to the executors and folds the
// outcomes into a PlanResult.
package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rahul/helmsman/internal/action"
	"github.com/rahul/helmsman/internal/classify"
	"github.com/rahul/helmsman/internal/executor"
	"github.com/rahul/helmsman/internal/governance"
	"github.com/rahul/helmsman/internal/observability"
)

// PlanPrompt is asked once per plan before anything runs.
const PlanPrompt = "Execute this plan?"

// Runner executes one action. *executor.TerminalRunner and
// *executor.BrowserRegistry satisfy it.
type Runner interface {
	Run(ctx context.Context, a action.Action) action.ExecutionResult
}

// Loop runs an adaptive session for a goal.
type Loop interface {
	Run(ctx context.Context, goal string) action.AdaptiveReport
}

type Config struct {
	// Concurrent lets the terminal and browser sequences run side by side.
	// Each sequence keeps its own order either way.
	Concurrent bool
	// AutoApprove skips the plan-level prompt. Flagged commands are still
	// confirmed one by one.
	AutoApprove bool
	// Adaptive hands browser work to the adaptive loop after the first
	// browser action.
	Adaptive bool
}

type Orchestrator struct {
	cfg      Config
	terminal Runner
	browser  Runner
	gate     governance.PolicyEngine
	loop     Loop
	logger   *zap.Logger
	events   *observability.EventLogger
	metrics  *observability.Metrics
}

// New wires an orchestrator. loop may be nil when Adaptive is off.
func New(cfg Config, terminal, browser Runner, gate governance.PolicyEngine, loop Loop, logger *zap.Logger, events *observability.EventLogger, metrics *observability.Metrics) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gate == nil {
		gate = governance.NewDefaultPolicyEngine()
	}
	if loop == nil {
		cfg.Adaptive = false
	}
	return &Orchestrator{
		cfg:      cfg,
		terminal: terminal,
		browser:  browser,
		gate:     gate,
		loop:     loop,
		logger:   logger.Named("orchestrator"),
		events:   events,
		metrics:  metrics,
	}
}

// sequence is what one of the two ordered runs produced.
type sequence struct {
	outcomes []action.Outcome
	skipped  []action.Action
	aborted  bool
	adaptive *action.AdaptiveReport
}

// Execute runs plan and reports what happened. It never returns an error:
// every failure ends up in the result.
func (o *Orchestrator) Execute(ctx context.Context, plan action.Plan, surface executor.Surface, chatID string) action.PlanResult {
	res := action.PlanResult{PlanID: plan.ID()}
	logger := o.logger.With(zap.String("plan_id", plan.ID()), zap.String("chat_id", chatID))

	classified := classify.Classify(plan.Actions())
	res.Rejected = classified.Malformed
	o.metrics.ObserveRejected(len(classified.Malformed))
	for _, r := range classified.Malformed {
		logger.Info("Dropped malformed action",
			zap.String("action", r.Action.String()),
			zap.String("reason", r.Reason))
	}
	if classified.Empty() {
		return res
	}

	runnable := byIndex(append(slices.Clone(classified.Terminal), classified.Browser...))
	lines := action.Summarize(runnable)
	o.events.LogPlan(chatID, plan.ID(), lines)
	if err := surface.ShowPlan(ctx, lines); err != nil {
		logger.Warn("Failed to show plan", zap.Error(err))
	}

	if !o.cfg.AutoApprove {
		ok, err := surface.Confirm(ctx, PlanPrompt)
		if err != nil {
			logger.Warn("Plan confirmation failed, treating as declined", zap.Error(err))
		}
		if !ok || err != nil {
			logger.Info("Plan declined")
			o.metrics.ObserveAborted()
			res.Aborted = true
			res.Skipped = runnable
			return res
		}
	}

	leave := observability.Enter(observability.RoleExecuting, plan.Request())
	defer leave()

	var term, web sequence
	var g errgroup.Group
	if !o.cfg.Concurrent {
		g.SetLimit(1)
	}
	if len(classified.Terminal) > 0 {
		g.Go(func() error {
			term = o.runTerminal(ctx, plan, classified.Terminal, surface, chatID, logger)
			return nil
		})
	}
	if len(classified.Browser) > 0 {
		g.Go(func() error {
			web = o.runBrowser(ctx, plan, classified.Browser, chatID, logger)
			return nil
		})
	}
	_ = g.Wait()

	res.Outcomes = append(term.outcomes, web.outcomes...)
	slices.SortStableFunc(res.Outcomes, func(a, b action.Outcome) int {
		return a.Action.Index() - b.Action.Index()
	})
	res.Skipped = byIndex(append(term.skipped, web.skipped...))
	res.Aborted = term.aborted
	res.Adaptive = web.adaptive
	if res.Aborted {
		o.metrics.ObserveAborted()
	}

	logger.Info("Plan finished",
		zap.Int("outcomes", len(res.Outcomes)),
		zap.Int("succeeded", res.Succeeded()),
		zap.Int("skipped", len(res.Skipped)),
		zap.Bool("aborted", res.Aborted))
	return res
}

// runTerminal runs commands in order. A declined confirmation, a fatal
// shell failure or cancellation halts the rest of the sequence.
func (o *Orchestrator) runTerminal(ctx context.Context, plan action.Plan, actions []action.Action, surface executor.Surface, chatID string, logger *zap.Logger) sequence {
	var seq sequence
	halt := func(i int) {
		seq.aborted = true
		seq.skipped = append(seq.skipped, actions[i:]...)
	}

	for i, a := range actions {
		if err := ctx.Err(); err != nil {
			logger.Warn("Context done, halting terminal sequence", zap.Error(err))
			halt(i)
			break
		}

		if ok, reason := o.admit(ctx, a, surface, chatID, logger); !ok {
			seq.outcomes = append(seq.outcomes, action.Outcome{
				Action: a,
				Result: action.Failed(action.ConfirmationDeclined, reason, 0),
			})
			o.events.LogAction(chatID, plan.ID(), string(a.Kind()), a.String(), false, string(action.ConfirmationDeclined), 0)
			halt(i + 1)
			break
		}

		result := o.terminal.Run(ctx, a)
		o.record(plan, chatID, a, result)
		seq.outcomes = append(seq.outcomes, action.Outcome{Action: a, Result: result})

		if result.Fatal {
			logger.Error("Shell facility failed, halting terminal sequence",
				zap.String("command", a.Command()),
				zap.String("output", result.Output))
			halt(i + 1)
			break
		}
	}
	return seq
}

// admit runs the safety gate and, when a rule fires, asks for confirmation.
// A gate error is treated as a rule firing.
func (o *Orchestrator) admit(ctx context.Context, a action.Action, surface executor.Surface, chatID string, logger *zap.Logger) (bool, string) {
	verdict, err := o.gate.Evaluate(ctx, governance.Request{Command: a.Command(), ChatID: chatID})
	if err != nil {
		logger.Warn("Policy evaluation failed", zap.String("command", a.Command()), zap.Error(err))
		verdict = governance.Result{
			Effect: governance.EffectRequireConfirmation,
			Rule:   "policy_error",
			Reason: err.Error(),
		}
	}
	o.metrics.ObserveGate(string(verdict.Effect))
	o.events.LogPolicyCheck(chatID, a.Command(), string(verdict.Effect), verdict.Reason)
	if !verdict.NeedsConfirmation() {
		return true, ""
	}

	logger.Info("Command needs confirmation",
		zap.String("command", a.Command()),
		zap.String("rule", verdict.Rule))
	ok, err := surface.Confirm(ctx, ConfirmPrompt(a, verdict))
	if err != nil {
		logger.Warn("Confirmation failed, treating as declined", zap.Error(err))
		return false, fmt.Sprintf("confirmation failed: %v", err)
	}
	if !ok {
		return false, "declined by user: " + verdict.Reason
	}
	return true, ""
}

// ConfirmPrompt is the question asked before a flagged command runs.
func ConfirmPrompt(a action.Action, verdict governance.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Potentially destructive command:\n  %s\n", a.Command())
	if verdict.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", verdict.Reason)
	}
	b.WriteString("Run it?")
	return b.String()
}

// runBrowser runs browser actions in order. Failures are recorded and the
// sequence continues. In adaptive mode the first action seeds the page and
// the loop takes over with the request as its goal.
func (o *Orchestrator) runBrowser(ctx context.Context, plan action.Plan, actions []action.Action, chatID string, logger *zap.Logger) sequence {
	var seq sequence

	static := actions
	if o.cfg.Adaptive {
		static = actions[:1]
		seq.skipped = slices.Clone(actions[1:])
	}

	for _, a := range static {
		result := o.browser.Run(ctx, a)
		o.record(plan, chatID, a, result)
		seq.outcomes = append(seq.outcomes, action.Outcome{Action: a, Result: result})
		if !result.Succeeded {
			logger.Warn("Browser action failed, continuing",
				zap.String("action", a.String()),
				zap.String("error_kind", string(result.ErrorKind)))
		}
	}

	if !o.cfg.Adaptive {
		return seq
	}

	report := o.loop.Run(ctx, plan.Request())
	for n, step := range report.Steps {
		a := step.Action.WithIndex(plan.Len() + n)
		o.events.LogAction(chatID, plan.ID(), string(a.Kind()), a.String(), step.Result.Succeeded, string(step.Result.ErrorKind), step.Result.DurationMs())
		seq.outcomes = append(seq.outcomes, action.Outcome{Action: a, Result: step.Result})
	}
	seq.adaptive = &report
	return seq
}

func (o *Orchestrator) record(plan action.Plan, chatID string, a action.Action, r action.ExecutionResult) {
	o.metrics.ObserveAction(string(a.Kind()), r.Succeeded, r.Duration)
	o.events.LogAction(chatID, plan.ID(), string(a.Kind()), a.String(), r.Succeeded, string(r.ErrorKind), r.DurationMs())
}

func byIndex(actions []action.Action) []action.Action {
	slices.SortStableFunc(actions, func(a, b action.Action) int { return a.Index() - b.Index() })
	return actions
}
