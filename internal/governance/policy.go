package governance

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow               Effect = "allow"
	EffectRequireConfirmation Effect = "require_confirmation"
)

// Request contains the context of a terminal command to be evaluated.
type Request struct {
	Command string
	ChatID  string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Rule   string
	Reason string
}

func (r Result) NeedsConfirmation() bool { return r.Effect == EffectRequireConfirmation }

// PolicyEngine evaluates terminal commands against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultFlaggedCommands are program names that always need confirmation.
var DefaultFlaggedCommands = []string{
	"rmdir", "del", "rd", "erase", "shred", "format", "mkfs",
	"shutdown", "reboot", "halt", "poweroff", "init",
	"dd", "fdisk", "parted", "wipefs",
}

var (
	forkBomb   = regexp.MustCompile(`([\w:.]+)\(\)\{[\w:.]+\|[\w:.]+&\};`)
	deviceDump = regexp.MustCompile(`>\s*/dev/(sd|hd|nvme|disk|mmcblk)`)
	splitter   = regexp.MustCompile(`&&|\|\||;|\||&|\n`)
	unquote    = strings.NewReplacer(`"`, " ", "'", " ", "`", " ", "(", " ", ")", " ", "$", " ")
)

// DefaultPolicyEngine flags destructive commands. Matching is case-insensitive.
type DefaultPolicyEngine struct {
	FlaggedCommands map[string]bool
	FlaggedRegex    []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	e := &DefaultPolicyEngine{
		FlaggedCommands: make(map[string]bool),
		FlaggedRegex:    make([]*regexp.Regexp, 0),
	}
	for _, name := range DefaultFlaggedCommands {
		e.FlagCommand(name)
	}
	return e
}

func (e *DefaultPolicyEngine) FlagCommand(name string) {
	e.FlaggedCommands[strings.ToLower(name)] = true
}

func (e *DefaultPolicyEngine) FlagPattern(pattern string) error {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return err
	}
	e.FlaggedRegex = append(e.FlaggedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	cmd := strings.ToLower(req.Command)

	compact := strings.Join(strings.Fields(cmd), "")
	if forkBomb.MatchString(compact) {
		return confirm("fork_bomb", "Command looks like a fork bomb"), nil
	}
	if deviceDump.MatchString(cmd) {
		return confirm("device_write", "Command writes directly to a block device"), nil
	}

	for _, seg := range splitter.Split(req.Command, -1) {
		if res, ok := e.evaluateSegment(strings.Fields(unquote.Replace(seg))); ok {
			return res, nil
		}
	}

	for _, re := range e.FlaggedRegex {
		if re.MatchString(req.Command) {
			return confirm("pattern", fmt.Sprintf("Command matches restricted pattern: %s", re.String())), nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}

// evaluateSegment checks one simple command. Every word is inspected so that
// programs run through sudo, env, xargs or similar wrappers are still seen.
func (e *DefaultPolicyEngine) evaluateSegment(words []string) (Result, bool) {
	for i, w := range words {
		name := commandName(w)
		if i == 0 || wrapped(words[:i]) {
			if e.FlaggedCommands[name] || strings.HasPrefix(name, "mkfs.") {
				return confirm("command", fmt.Sprintf("'%s' is a destructive command", name)), true
			}
			if chownRoot(name, words[i+1:]) {
				return confirm("recursive_root_permissions", fmt.Sprintf("'%s' recursively changes permissions on a root path", name)), true
			}
		}
		if name == "rm" && recursiveForce(words[i+1:]) {
			return confirm("recursive_force_delete", "Recursive forced deletion"), true
		}
	}
	return Result{}, false
}

// commandName is the program a word runs. A leading backslash only
// suppresses alias expansion, so "\rm" is rm.
func commandName(w string) string {
	return strings.ToLower(path.Base(strings.TrimLeft(w, `\`)))
}

var wrappers = map[string]bool{
	"sudo": true, "doas": true, "env": true, "nohup": true, "time": true,
	"xargs": true, "exec": true, "command": true,
	"sh": true, "bash": true, "zsh": true,
	"cmd": true, "cmd.exe": true, "powershell": true, "powershell.exe": true, "pwsh": true,
}

// wrapped reports whether every word before the current one belongs to a
// command prefix such as "sudo -u root", "env FOO=1" or "cmd /c".
func wrapped(prefix []string) bool {
	for _, w := range prefix {
		lw := strings.ToLower(w)
		switch {
		case wrappers[commandName(w)]:
		case lw == "/c", lw == "/k":
		case strings.HasPrefix(w, "-"):
		case strings.Contains(w, "="):
		default:
			return false
		}
	}
	return true
}

// recursiveForce looks for -r and -f in any spelling among rm's flags.
func recursiveForce(args []string) bool {
	var r, f bool
	for _, a := range args {
		la := strings.ToLower(a)
		switch {
		case la == "--recursive":
			r = true
		case la == "--force":
			f = true
		case la == "--":
			return r && f
		case strings.HasPrefix(la, "-") && !strings.HasPrefix(la, "--"):
			r = r || strings.ContainsRune(la, 'r')
			f = f || strings.ContainsRune(la, 'f')
		}
	}
	return r && f
}

func chownRoot(name string, args []string) bool {
	if name != "chmod" && name != "chown" && name != "chgrp" {
		return false
	}
	var recursive, root bool
	for _, a := range args {
		switch {
		case a == "-R" || a == "--recursive" || (strings.HasPrefix(a, "-") && !strings.HasPrefix(a, "--") && strings.ContainsRune(a, 'R')):
			recursive = true
		case a == "/" || a == "/*" || a == "~" || a == "~/":
			root = true
		}
	}
	return recursive && root
}

func confirm(rule, reason string) Result {
	return Result{Effect: EffectRequireConfirmation, Rule: rule, Reason: reason}
}
