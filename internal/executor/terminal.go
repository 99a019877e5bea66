package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rahul/helmsman/internal/action"
)

// DefaultShellTimeout bounds a single command when none is configured.
const DefaultShellTimeout = 60 * time.Second

// TerminalRunner runs terminal actions one at a time through a Shell and
// carries the working directory from one command to the next.
type TerminalRunner struct {
	shell   Shell
	timeout time.Duration
	logger  *zap.Logger

	mu  sync.Mutex
	cwd string
}

func NewTerminalRunner(shell Shell, cwd string, timeout time.Duration, logger *zap.Logger) *TerminalRunner {
	if timeout <= 0 {
		timeout = DefaultShellTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TerminalRunner{
		shell:   shell,
		timeout: timeout,
		cwd:     cwd,
		logger:  logger.Named("terminal"),
	}
}

// Dir returns the current working directory.
func (r *TerminalRunner) Dir() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cwd
}

// Run executes one terminal action. Failures are folded into the result;
// Fatal is set when the shell facility itself failed.
func (r *TerminalRunner) Run(ctx context.Context, a action.Action) action.ExecutionResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	out, err := r.shell.Run(ctx, a.Command(), r.cwd, r.timeout)
	elapsed := time.Since(start)

	if err != nil {
		kind, _ := errorKind(err)
		fatal := kind != action.ExecutorTimeout
		r.logger.Warn("Command failed",
			zap.String("command", a.Command()),
			zap.String("error_kind", string(kind)),
			zap.Error(err))
		return action.ExecutionResult{
			Output:    joinOutput(out.Output, err),
			ErrorKind: kind,
			Duration:  elapsed,
			Fatal:     fatal,
		}
	}

	if out.Dir != "" {
		r.cwd = out.Dir
	}
	if out.ExitCode != 0 {
		r.logger.Debug("Command exited non-zero",
			zap.String("command", a.Command()),
			zap.Int("exit_code", out.ExitCode))
		return action.ExecutionResult{
			Output:    fmt.Sprintf("%s\n(exit status %d)", out.Output, out.ExitCode),
			ErrorKind: action.ExecutorFailure,
			Duration:  elapsed,
		}
	}
	return action.ExecutionResult{Succeeded: true, Output: out.Output, Duration: elapsed}
}

func joinOutput(output string, err error) string {
	if output == "" {
		return err.Error()
	}
	if errors.Is(err, ErrTimeout) {
		return output + "\n(timed out)"
	}
	return output + "\n" + err.Error()
}
