package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"

	"github.com/rahul/helmsman/internal/executor"
)

// dirMarker separates command output from the working directory the
// wrapper prints after the command finishes.
const dirMarker = "\x1e__helmsman_pwd__"

// Shell runs commands through a POSIX shell and reports the working
// directory they leave behind, so a cd carries over to the next command.
type Shell struct {
	Program string
	// WaitDelay bounds how long output pipes may stay open after a
	// timeout kills the shell.
	WaitDelay time.Duration
}

func NewShell(program string) *Shell {
	if program == "" {
		program = "bash"
	}
	return &Shell{Program: program, WaitDelay: 2 * time.Second}
}

// Run implements executor.Shell.
func (s *Shell) Run(ctx context.Context, command, cwd string, timeout time.Duration) (executor.ShellResult, error) {
	dir, err := workDir(cwd)
	if err != nil {
		return executor.ShellResult{}, err
	}
	if timeout <= 0 {
		timeout = executor.DefaultShellTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	script := fmt.Sprintf("%s\n__rc=$?\nprintf '%s%%s' \"$(pwd)\"\nexit $__rc", command, dirMarker)
	cmd := exec.CommandContext(ctx, s.Program, "-c", script)
	cmd.Dir = dir
	cmd.WaitDelay = s.WaitDelay

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	runErr := cmd.Run()

	output, after := splitDir(buf.String())
	res := executor.ShellResult{Output: strings.TrimSpace(output), Dir: dir}
	if after != "" {
		res.Dir = after
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%q after %s: %w", command, timeout, executor.ErrTimeout)
	}
	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
	case errors.As(runErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("run %q: %w", command, runErr)
	}
	return res, nil
}

func splitDir(out string) (output, dir string) {
	i := strings.LastIndex(out, dirMarker)
	if i < 0 {
		return out, ""
	}
	return out[:i], strings.TrimSpace(out[i+len(dirMarker):])
}

// workDir resolves cwd, defaulting to the process working directory.
func workDir(cwd string) (string, error) {
	if cwd == "" {
		return os.Getwd()
	}
	expanded, err := homedir.Expand(cwd)
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", cwd, err)
	}
	return filepath.Abs(expanded)
}
