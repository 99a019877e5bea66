package action

import "time"

// EnvironmentState is a snapshot of the browser taken between adaptive steps.
type EnvironmentState struct {
	URL     string
	Title   string
	Content string
	// Elements is the driver's summary of interactive elements on the page.
	Elements   string
	CapturedAt time.Time
	// Err is set when the snapshot could not be taken and the state is a placeholder.
	Err string
}

func (s EnvironmentState) Degraded() bool { return s.Err != "" }

// Step is one entry of an adaptive session history.
type Step struct {
	State  EnvironmentState
	Action Action
	Result ExecutionResult
}

// Decision is the oracle's answer to "what next?".
type Decision struct {
	Done      bool
	Action    Action
	Reasoning string
}

// Termination is why an adaptive session ended.
type Termination string

const (
	GoalReached            Termination = "goal_reached"
	IterationLimitExceeded Termination = "iteration_limit_exceeded"
	UnrecoverableError     Termination = "unrecoverable_error"
)

// AdaptiveReport is what an adaptive session leaves behind once it is discarded.
type AdaptiveReport struct {
	SessionID   string
	Goal        string
	Iterations  int
	Termination Termination
	Steps       []Step
	FinalState  EnvironmentState
	Summary     string
}
