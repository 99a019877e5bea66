package agent

import (
	"fmt"
	"strings"

	"github.com/rahul/helmsman/internal/action"
)

const maxReplyOutput = 1500

// Render turns a finished plan into the reply shown to the user.
func Render(res action.PlanResult) string {
	var b strings.Builder

	if res.Aborted && len(res.Outcomes) == 0 {
		fmt.Fprintf(&b, "Plan %s was not executed.\n", shortID(res.PlanID))
	} else {
		fmt.Fprintf(&b, "Plan %s: %d of %d actions succeeded.\n", shortID(res.PlanID), res.Succeeded(), len(res.Outcomes))
	}

	for _, o := range res.Outcomes {
		b.WriteString(outcomeLine(o))
		b.WriteByte('\n')
		if out := strings.TrimSpace(o.Result.Output); out != "" && o.Action.Kind() == action.Terminal {
			b.WriteString(indent(clip(out, maxReplyOutput)))
			b.WriteByte('\n')
		}
	}
	for _, a := range res.Skipped {
		fmt.Fprintf(&b, "[skipped] %s\n", a)
	}
	for _, r := range res.Rejected {
		fmt.Fprintf(&b, "[dropped] %s: %s\n", r.Action, r.Reason)
	}

	if rep := res.Adaptive; rep != nil {
		fmt.Fprintf(&b, "\nBrowser session ended (%s) after %d steps.\n", rep.Termination, rep.Iterations)
		if rep.FinalState.URL != "" {
			fmt.Fprintf(&b, "Last page: %s\n", rep.FinalState.URL)
		}
		if s := strings.TrimSpace(rep.Summary); s != "" {
			b.WriteString("\n")
			b.WriteString(s)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func outcomeLine(o action.Outcome) string {
	switch {
	case o.Result.Succeeded:
		return fmt.Sprintf("[ok] %s", o.Action)
	case o.Result.ErrorKind == action.ConfirmationDeclined:
		return fmt.Sprintf("[declined] %s", o.Action)
	default:
		return fmt.Sprintf("[failed: %s] %s", o.Result.ErrorKind, o.Action)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n..."
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(s, "\n", "\n    ")
}
