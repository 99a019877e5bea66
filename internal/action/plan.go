package action

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ErrorKind classifies why an action did not run, or ran and failed.
type ErrorKind string

const (
	ParseSkipped             ErrorKind = "parse_skipped"
	MissingField             ErrorKind = "missing_field"
	ConfirmationDeclined     ErrorKind = "confirmation_declined"
	ExecutorTimeout          ErrorKind = "executor_timeout"
	ExecutorFailure          ErrorKind = "executor_failure"
	OracleFailure            ErrorKind = "oracle_failure"
	UnrecoverableEnvironment ErrorKind = "unrecoverable_environment"
)

// Plan is the ordered batch of actions extracted from one oracle response.
type Plan struct {
	id      string
	request string
	actions []Action
}

// NewPlan copies actions into a new plan and stamps it with an ID.
// Actions that were never indexed get their position in the slice.
func NewPlan(request string, actions []Action) Plan {
	p := Plan{
		id:      uuid.NewString(),
		request: request,
		actions: make([]Action, len(actions)),
	}
	for i, a := range actions {
		if a.index < 0 {
			a = a.WithIndex(i)
		}
		p.actions[i] = a
	}
	return p
}

func (p Plan) ID() string      { return p.id }
func (p Plan) Request() string { return p.request }
func (p Plan) Len() int        { return len(p.actions) }
func (p Plan) Empty() bool     { return len(p.actions) == 0 }

// Actions returns the actions in extraction order.
func (p Plan) Actions() []Action { return slices.Clone(p.actions) }

// Summary returns one display line per action.
func (p Plan) Summary() []string {
	return Summarize(p.actions)
}

// Summarize renders numbered display lines for a list of actions.
func Summarize(actions []Action) []string {
	lines := make([]string, len(actions))
	for i, a := range actions {
		lines[i] = fmt.Sprintf("%d. [%s] %s", i+1, a.kind, a)
	}
	return lines
}

// ExecutionResult is the outcome of one action.
type ExecutionResult struct {
	Succeeded bool
	Output    string
	ErrorKind ErrorKind
	Duration  time.Duration
	// Fatal marks a failure of the collaborator itself (shell facility could
	// not start, browser driver lost) rather than of the action.
	Fatal bool
}

func (r ExecutionResult) DurationMs() int64 { return r.Duration.Milliseconds() }

// Failed builds a result for an action that did not succeed.
func Failed(kind ErrorKind, output string, d time.Duration) ExecutionResult {
	return ExecutionResult{Output: output, ErrorKind: kind, Duration: d}
}

// Outcome pairs an action with what happened when it ran.
type Outcome struct {
	Action Action
	Result ExecutionResult
}

// Rejection records an action dropped before execution.
type Rejection struct {
	Action Action
	Kind   ErrorKind
	Reason string
}

// PlanResult is everything the orchestrator knows once a plan is done.
type PlanResult struct {
	PlanID   string
	Outcomes []Outcome
	Aborted  bool
	// Skipped holds actions that never ran because the plan or the terminal
	// sequence was halted.
	Skipped  []Action
	Rejected []Rejection
	Adaptive *AdaptiveReport
}

// Succeeded counts the outcomes that succeeded.
func (r PlanResult) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Result.Succeeded {
			n++
		}
	}
	return n
}
