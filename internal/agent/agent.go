// Package agent runs one user request end to end: history, oracle, extraction,
// orchestration, journal and reply.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/rahul/helmsman/internal/action"
	"github.com/rahul/helmsman/internal/executor"
	"github.com/rahul/helmsman/internal/extract"
	"github.com/rahul/helmsman/internal/observability"
	"github.com/rahul/helmsman/internal/store"
)

// DefaultHistoryLimit is how many stored messages are replayed to the oracle.
const DefaultHistoryLimit = 10

// Brain answers a user message. The surface is used for plan display and
// confirmations while the request runs.
type Brain interface {
	Think(ctx context.Context, chatID, input string, surface executor.Surface) (string, error)
}

type Oracle interface {
	Respond(ctx context.Context, chatID string, history []llms.MessageContent, input string, jsonMode bool) (string, error)
	Summarize(ctx context.Context, state action.EnvironmentState, goal string) (string, error)
}

type HistoryStore interface {
	AddMessage(ctx context.Context, chatID, role, content string) error
	GetHistory(ctx context.Context, chatID string, limit int) ([]llms.MessageContent, error)
	Record(ctx context.Context, entries ...store.JournalEntry) error
}

type Executor interface {
	Execute(ctx context.Context, plan action.Plan, surface executor.Surface, chatID string) action.PlanResult
}

type Agent struct {
	oracle       Oracle
	extractor    *extract.Extractor
	executor     Executor
	history      HistoryStore
	historyLimit int
	logger       *zap.Logger
	metrics      *observability.Metrics
}

func New(oracle Oracle, exec Executor, history HistoryStore, historyLimit int, logger *zap.Logger, metrics *observability.Metrics) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Agent{
		oracle:       oracle,
		extractor:    extract.New(logger),
		executor:     exec,
		history:      history,
		historyLimit: historyLimit,
		logger:       logger.Named("agent"),
		metrics:      metrics,
	}
}

func (a *Agent) Think(ctx context.Context, chatID, input string, surface executor.Surface) (string, error) {
	logger := a.logger.With(zap.String("chat_id", chatID))
	leave := observability.Enter(observability.RolePlanning, input)

	history, err := a.history.GetHistory(ctx, chatID, a.historyLimit)
	if err != nil {
		logger.Warn("Failed to load history", zap.Error(err))
	}

	browserRequest := IsBrowserRequest(input)
	response, err := a.oracle.Respond(ctx, chatID, history, input, browserRequest)
	if err != nil {
		leave()
		return "", fmt.Errorf("oracle: %w", err)
	}

	plan := a.plan(input, response, browserRequest, logger)
	a.remember(ctx, chatID, input, response, logger)
	leave()

	if plan.Empty() {
		return strings.TrimSpace(response), nil
	}

	res := a.executor.Execute(ctx, plan, surface, chatID)
	a.journal(ctx, chatID, res, logger)

	if rep := res.Adaptive; rep != nil && !rep.FinalState.Degraded() {
		summary, err := a.oracle.Summarize(ctx, rep.FinalState, plan.Request())
		if err != nil {
			logger.Warn("Failed to summarize page", zap.Error(err))
		} else {
			rep.Summary = summary
		}
	}

	return Render(res), nil
}

func (a *Agent) plan(input, response string, browserRequest bool, logger *zap.Logger) action.Plan {
	res := a.extractor.Extract(response)
	for prov, n := range res.Count() {
		a.metrics.ObserveExtracted(string(prov), n)
	}
	for _, s := range res.Skipped {
		a.metrics.ObserveSkipped(string(s.Provenance))
	}

	actions := res.Actions
	if len(actions) == 0 && browserRequest {
		synth := Synthesize(input)
		logger.Info("No actions in response, synthesized one", zap.Stringer("action", synth))
		a.metrics.ObserveExtracted(string(synth.Provenance()), 1)
		actions = []action.Action{synth}
	}

	logger.Info("Extracted actions",
		zap.Int("count", len(actions)),
		zap.Int("skipped", len(res.Skipped)))
	return action.NewPlan(input, actions)
}

func (a *Agent) remember(ctx context.Context, chatID, input, response string, logger *zap.Logger) {
	if err := a.history.AddMessage(ctx, chatID, store.RoleHuman, input); err != nil {
		logger.Warn("Failed to store message", zap.Error(err))
		return
	}
	if err := a.history.AddMessage(ctx, chatID, store.RoleAI, response); err != nil {
		logger.Warn("Failed to store message", zap.Error(err))
	}
}

func (a *Agent) journal(ctx context.Context, chatID string, res action.PlanResult, logger *zap.Logger) {
	entries := make([]store.JournalEntry, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		entries = append(entries, store.JournalEntry{
			ChatID:     chatID,
			PlanID:     res.PlanID,
			Kind:       string(o.Action.Kind()),
			Action:     o.Action.String(),
			Succeeded:  o.Result.Succeeded,
			ErrorKind:  string(o.Result.ErrorKind),
			Output:     o.Result.Output,
			DurationMs: o.Result.DurationMs(),
		})
	}
	// Journal writes must survive a cancelled request.
	if err := a.history.Record(context.WithoutCancel(ctx), entries...); err != nil {
		logger.Warn("Failed to journal plan", zap.String("plan_id", res.PlanID), zap.Error(err))
	}
}
