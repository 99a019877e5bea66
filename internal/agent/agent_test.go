package agent_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/rahul/helmsman/internal/action"
	"github.com/rahul/helmsman/internal/agent"
	"github.com/rahul/helmsman/internal/executor"
	"github.com/rahul/helmsman/internal/mocks"
	"github.com/rahul/helmsman/internal/observability"
	"github.com/rahul/helmsman/internal/orchestrator"
	"github.com/rahul/helmsman/internal/store"
)

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) Respond(ctx context.Context, chatID string, history []llms.MessageContent, input string, jsonMode bool) (string, error) {
	args := m.Called(ctx, chatID, history, input, jsonMode)
	return args.String(0), args.Error(1)
}

func (m *mockOracle) Summarize(ctx context.Context, state action.EnvironmentState, goal string) (string, error) {
	args := m.Called(ctx, state, goal)
	return args.String(0), args.Error(1)
}

type recordingExecutor struct {
	plans  []action.Plan
	result func(action.Plan) action.PlanResult
}

func (e *recordingExecutor) Execute(_ context.Context, plan action.Plan, _ executor.Surface, _ string) action.PlanResult {
	e.plans = append(e.plans, plan)
	if e.result != nil {
		return e.result(plan)
	}
	res := action.PlanResult{PlanID: plan.ID()}
	for _, a := range plan.Actions() {
		res.Outcomes = append(res.Outcomes, action.Outcome{Action: a, Result: action.ExecutionResult{Succeeded: true, Duration: time.Millisecond}})
	}
	return res
}

func newHistory(t *testing.T) *store.HistoryStore {
	t.Helper()
	h, err := store.NewHistoryStore(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestThink_ExecutesExtractedCommands(t *testing.T) {
	ctx := context.Background()
	history := newHistory(t)
	oracle := new(mockOracle)
	exec := &recordingExecutor{}
	metrics := observability.NewMetrics()
	a := agent.New(oracle, exec, history, 0, zap.NewNop(), metrics)

	response := "Sure:\n```bash\nmkdir proj\ncd proj\n```\n"
	oracle.On("Respond", ctx, "chat", mock.Anything, "make a project dir", false).Return(response, nil)

	reply, err := a.Think(ctx, "chat", "make a project dir", new(mocks.MockSurface))
	require.NoError(t, err)

	require.Len(t, exec.plans, 1)
	plan := exec.plans[0]
	assert.Equal(t, "make a project dir", plan.Request())
	require.Equal(t, 2, plan.Len())
	assert.Equal(t, "mkdir proj", plan.Actions()[0].Command())

	assert.Contains(t, reply, "2 of 2 actions succeeded")
	assert.Contains(t, reply, "[ok] $ mkdir proj")
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ExtractedActions.WithLabelValues(string(action.FromShellFence))))

	journal, err := history.Journal(ctx, "chat", 10)
	require.NoError(t, err)
	require.Len(t, journal, 2)
	assert.Equal(t, plan.ID(), journal[0].PlanID)

	msgs, err := history.GetHistory(ctx, "chat", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.TextContent{Text: response}, msgs[1].Parts[0])
}

func TestThink_ProseReplySkipsExecution(t *testing.T) {
	ctx := context.Background()
	oracle := new(mockOracle)
	exec := &recordingExecutor{}
	a := agent.New(oracle, exec, newHistory(t), 0, nil, nil)

	oracle.On("Respond", ctx, "chat", mock.Anything, "hello", false).Return("  Hi there.  ", nil)

	reply, err := a.Think(ctx, "chat", "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hi there.", reply)
	assert.Empty(t, exec.plans)
}

func TestThink_ReplaysHistory(t *testing.T) {
	ctx := context.Background()
	history := newHistory(t)
	require.NoError(t, history.AddMessage(ctx, "chat", store.RoleHuman, "earlier"))

	oracle := new(mockOracle)
	a := agent.New(oracle, &recordingExecutor{}, history, 0, nil, nil)

	oracle.On("Respond", ctx, "chat", mock.MatchedBy(func(h []llms.MessageContent) bool {
		return len(h) == 1 && h[0].Parts[0] == llms.TextContent{Text: "earlier"}
	}), "again", false).Return("ok", nil)

	_, err := a.Think(ctx, "chat", "again", nil)
	require.NoError(t, err)
	oracle.AssertExpectations(t)
}

func TestThink_BrowserRequestSynthesizesSearch(t *testing.T) {
	ctx := context.Background()
	oracle := new(mockOracle)
	exec := &recordingExecutor{}
	a := agent.New(oracle, exec, newHistory(t), 0, nil, nil)

	oracle.On("Respond", ctx, "chat", mock.Anything, "search for electric kettles", true).
		Return(`{"thoughts": "I would search"}`, nil)

	_, err := a.Think(ctx, "chat", "search for electric kettles", nil)
	require.NoError(t, err)

	require.Len(t, exec.plans, 1)
	acts := exec.plans[0].Actions()
	require.Len(t, acts, 1)
	assert.Equal(t, action.Search, acts[0].Type())
	assert.Equal(t, action.FromSynthesized, acts[0].Provenance())
	q, _ := acts[0].Field(action.FieldQuery)
	assert.Equal(t, "electric kettles", q)
}

func TestThink_OracleError(t *testing.T) {
	ctx := context.Background()
	oracle := new(mockOracle)
	exec := &recordingExecutor{}
	a := agent.New(oracle, exec, newHistory(t), 0, nil, nil)

	oracle.On("Respond", ctx, "chat", mock.Anything, "ls please", false).Return("", errors.New("rate limited"))

	_, err := a.Think(ctx, "chat", "ls please", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Empty(t, exec.plans)
	assert.Equal(t, observability.RoleIdle, observability.GetStatus().Role)
}

func TestThink_SummarizesAdaptiveSession(t *testing.T) {
	ctx := context.Background()
	oracle := new(mockOracle)
	final := action.EnvironmentState{URL: "https://shop.example/kettles", Title: "Kettles", Content: "three kettles"}
	exec := &recordingExecutor{result: func(p action.Plan) action.PlanResult {
		return action.PlanResult{
			PlanID: p.ID(),
			Outcomes: []action.Outcome{{
				Action: p.Actions()[0],
				Result: action.ExecutionResult{Succeeded: true},
			}},
			Adaptive: &action.AdaptiveReport{Goal: p.Request(), Iterations: 3, Termination: action.GoalReached, FinalState: final},
		}
	}}
	a := agent.New(oracle, exec, newHistory(t), 0, nil, nil)

	oracle.On("Respond", ctx, "chat", mock.Anything, "find kettles on https://shop.example", true).
		Return(`{"browser_action": {"action_type": "navigate", "url": "https://shop.example"}}`, nil)
	oracle.On("Summarize", ctx, final, "find kettles on https://shop.example").Return("The cheapest kettle is $25.", nil)

	reply, err := a.Think(ctx, "chat", "find kettles on https://shop.example", nil)
	require.NoError(t, err)

	assert.Contains(t, reply, "goal_reached")
	assert.Contains(t, reply, "Last page: https://shop.example/kettles")
	assert.Contains(t, reply, "The cheapest kettle is $25.")
	oracle.AssertExpectations(t)
}

func TestThink_EndToEndWithOrchestrator(t *testing.T) {
	ctx := context.Background()
	shell := new(mocks.MockShell)
	surface := new(mocks.MockSurface)
	term := executor.NewTerminalRunner(shell, "/work", time.Second, zap.NewNop())
	web := executor.NewBrowserRegistry(new(mocks.MockBrowser), zap.NewNop())
	orch := orchestrator.New(orchestrator.Config{}, term, web, nil, nil, zap.NewNop(), nil, nil)

	history := newHistory(t)
	oracle := new(mockOracle)
	a := agent.New(oracle, orch, history, 0, zap.NewNop(), nil)

	oracle.On("Respond", ctx, "chat", mock.Anything, "clean up", false).
		Return("```bash\necho start\nrm -rf build\n```", nil)
	surface.On("ShowPlan", mock.Anything, mock.Anything).Return(nil)
	surface.On("Confirm", mock.Anything, orchestrator.PlanPrompt).Return(true, nil)
	surface.On("Confirm", mock.Anything, mock.MatchedBy(func(p string) bool { return p != orchestrator.PlanPrompt })).Return(false, nil)
	shell.On("Run", mock.Anything, "echo start", "/work", time.Second).
		Return(executor.ShellResult{Output: "start\n", Dir: "/work"}, nil)

	reply, err := a.Think(ctx, "chat", "clean up", surface)
	require.NoError(t, err)

	assert.Contains(t, reply, "[ok] $ echo start")
	assert.Contains(t, reply, "[declined] $ rm -rf build")
	shell.AssertNotCalled(t, "Run", mock.Anything, "rm -rf build", mock.Anything, mock.Anything)

	journal, err := history.Journal(ctx, "chat", 10)
	require.NoError(t, err)
	require.Len(t, journal, 2)
	assert.Equal(t, string(action.ConfirmationDeclined), journal[0].ErrorKind)
}
