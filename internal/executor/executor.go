// Package executor defines the collaborators that actually run actions and
// the dispatch that turns one action into one ExecutionResult.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/rahul/helmsman/internal/action"
)

var (
	// ErrTimeout is returned by collaborators when their own deadline expired.
	ErrTimeout = errors.New("executor: timed out")
	// ErrUnrecoverable marks a driver-level failure such as a lost browser
	// or an unreachable page, as opposed to a logical action failure.
	ErrUnrecoverable = errors.New("executor: unrecoverable environment")
)

// ShellResult is what the shell facility reports for one command.
type ShellResult struct {
	ExitCode int
	Output   string
	// Dir is the working directory after the command, which differs from
	// the input directory only for cd.
	Dir string
}

// Shell runs one command. A non-zero exit is reported in ShellResult, not as
// an error. ErrTimeout is returned when the timeout expires.
type Shell interface {
	Run(ctx context.Context, command, cwd string, timeout time.Duration) (ShellResult, error)
}

// Browser is the automation driver. Each call returns a short description
// of what happened. Errors wrapping ErrUnrecoverable are driver-level.
type Browser interface {
	Navigate(ctx context.Context, url string) (string, error)
	Search(ctx context.Context, query, selector string) (string, error)
	Click(ctx context.Context, selector, selectorType string) (string, error)
	FillInput(ctx context.Context, selector, value string) (string, error)
	Scroll(ctx context.Context, direction string, distance int) (string, error)
	Wait(ctx context.Context, d time.Duration) (string, error)
	CaptureState(ctx context.Context) (action.EnvironmentState, error)
}

// Surface is where plans are shown and confirmations are asked. Confirm
// blocks until the user answers.
type Surface interface {
	ShowPlan(ctx context.Context, lines []string) error
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// errorKind maps a collaborator error onto the error taxonomy and reports
// whether it was driver-level.
func errorKind(err error) (action.ErrorKind, bool) {
	switch {
	case errors.Is(err, ErrUnrecoverable):
		return action.ExecutorFailure, true
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return action.ExecutorTimeout, false
	}
	return action.ExecutorFailure, false
}
