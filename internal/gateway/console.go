package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/rahul/helmsman/internal/agent"
	"github.com/rahul/helmsman/internal/orchestrator"
)

// ConsoleChatID is the history key used for the local console.
const ConsoleChatID = "console"

// Console is a line-oriented REPL over an input and an output stream.
type Console struct {
	Brain agent.Brain

	in  *bufio.Reader
	out io.Writer
	// interactive is false when input is not a terminal. Flagged commands are
	// then declined without asking.
	interactive bool
	autoApprove bool
	logger      *zap.Logger
}

type ConsoleOptions struct {
	Interactive bool
	// AutoApprove answers the plan-level prompt. Flagged commands are still asked.
	AutoApprove bool
}

func NewConsole(brain agent.Brain, in io.Reader, out io.Writer, opts ConsoleOptions, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{
		Brain:       brain,
		in:          bufio.NewReader(in),
		out:         out,
		interactive: opts.Interactive,
		autoApprove: opts.AutoApprove,
		logger:      logger.Named("console"),
	}
}

// Start reads requests until EOF, "exit" or ctx is done.
func (c *Console) Start(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(c.out, "\n> ")
		line, err := c.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		c.Ask(ctx, line)
	}
}

// Ask runs one request and prints the reply.
func (c *Console) Ask(ctx context.Context, input string) {
	reply, err := c.Brain.Think(ctx, ConsoleChatID, input, c)
	if err != nil {
		c.logger.Error("Request failed", zap.Error(err))
		reply = fmt.Sprintf("Something went wrong: %v", err)
	}
	c.Send(ConsoleChatID, reply)
}

func (c *Console) Send(_ string, text string) error {
	_, err := fmt.Fprintln(c.out, text)
	return err
}

func (c *Console) Stop() error { return nil }

func (c *Console) ShowPlan(_ context.Context, lines []string) error {
	fmt.Fprintln(c.out, "\nPlanned actions:")
	for _, l := range lines {
		fmt.Fprintln(c.out, "  "+l)
	}
	return nil
}

func (c *Console) Confirm(ctx context.Context, prompt string) (bool, error) {
	plan := prompt == orchestrator.PlanPrompt
	if plan && c.autoApprove {
		fmt.Fprintln(c.out, prompt+" yes (auto)")
		return true, nil
	}
	if !plan && !c.interactive {
		fmt.Fprintln(c.out, prompt+" no (input is not a terminal)")
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fmt.Fprint(c.out, prompt+" [y/N] ")
	answer, err := c.readLine()
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return isYes(answer), nil
}

func (c *Console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	line = strings.TrimSpace(line)
	if errors.Is(err, io.EOF) && line != "" {
		return line, nil
	}
	return line, err
}
