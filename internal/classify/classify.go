// Package classify partitions a plan into terminal and browser actions and
// brings each action into canonical form. It never performs I/O.
package classify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rahul/helmsman/internal/action"
)

// Defaults applied to browser actions that leave them out.
const (
	DefaultScrollDirection = "down"
	DefaultScrollDistance  = 500
	DefaultWait            = 2 * time.Second
)

var typeAliases = map[string]string{
	"go_to":      action.Navigate,
	"goto":       action.Navigate,
	"open":       action.Navigate,
	"visit":      action.Navigate,
	"open_url":   action.Navigate,
	"type":       action.Input,
	"fill":       action.Input,
	"fill_input": action.Input,
	"type_text":  action.Input,
	"input_text": action.Input,
	"sleep":      action.Wait,
	"pause":      action.Wait,
	"search_for": action.Search,
}

// Result holds the two ordered subsets and everything that was dropped.
type Result struct {
	Terminal  []action.Action
	Browser   []action.Action
	Malformed []action.Rejection
}

func (r Result) Empty() bool { return len(r.Terminal) == 0 && len(r.Browser) == 0 }

// Classify normalizes every action and splits them by kind, keeping order.
func Classify(actions []action.Action) Result {
	var res Result
	for _, a := range actions {
		n, err := Normalize(a)
		if err != nil {
			res.Malformed = append(res.Malformed, action.Rejection{
				Action: a,
				Kind:   action.MissingField,
				Reason: err.Error(),
			})
			continue
		}
		switch n.Kind() {
		case action.Terminal:
			res.Terminal = append(res.Terminal, n)
		case action.Browser:
			res.Browser = append(res.Browser, n)
		}
	}
	return res
}

// Normalize returns the canonical form of one action or the reason it cannot
// be executed. Normalizing a canonical action returns it unchanged.
func Normalize(a action.Action) (action.Action, error) {
	kind, ok := action.ParseKind(string(a.Kind()))
	if !ok {
		return action.Action{}, fmt.Errorf("unknown action kind %q", a.Kind())
	}
	if kind == action.Terminal {
		cmd := strings.TrimSpace(a.Type())
		if cmd == "" {
			return action.Action{}, fmt.Errorf("terminal action without a command")
		}
		return a.Normalized(action.Terminal, cmd, nil), nil
	}
	return normalizeBrowser(a)
}

func normalizeBrowser(a action.Action) (action.Action, error) {
	t := strings.ToLower(strings.TrimSpace(a.Type()))
	if alias, ok := typeAliases[t]; ok {
		t = alias
	}
	f := a.Fields()
	if f == nil {
		f = make(map[string]string)
	}
	applyStrategy(f)

	require := func(key string) error {
		if f[key] == "" {
			return fmt.Errorf("%s action requires %s", t, key)
		}
		return nil
	}

	var keep []string
	switch t {
	case action.Navigate:
		if err := require(action.FieldURL); err != nil {
			return action.Action{}, err
		}
		if !strings.Contains(f[action.FieldURL], "://") {
			f[action.FieldURL] = "https://" + f[action.FieldURL]
		}
		keep = []string{action.FieldURL}
	case action.Search:
		if err := require(action.FieldQuery); err != nil {
			return action.Action{}, err
		}
		keep = []string{action.FieldQuery, action.FieldSelector, action.FieldSelectorType}
	case action.Click:
		if err := require(action.FieldSelector); err != nil {
			return action.Action{}, err
		}
		keep = []string{action.FieldSelector, action.FieldSelectorType}
	case action.Input:
		if err := require(action.FieldValue); err != nil {
			return action.Action{}, err
		}
		keep = []string{action.FieldSelector, action.FieldSelectorType, action.FieldValue}
	case action.Scroll:
		switch strings.ToLower(f[action.FieldDirection]) {
		case "up", "down", "top", "bottom":
			f[action.FieldDirection] = strings.ToLower(f[action.FieldDirection])
		default:
			f[action.FieldDirection] = DefaultScrollDirection
		}
		if n, err := strconv.Atoi(f[action.FieldDistance]); err != nil || n <= 0 {
			f[action.FieldDistance] = strconv.Itoa(DefaultScrollDistance)
		}
		keep = []string{action.FieldDirection, action.FieldDistance, action.FieldSelector, action.FieldSelectorType}
	case action.Wait:
		f[action.FieldDurationMs] = strconv.FormatInt(waitDuration(f).Milliseconds(), 10)
		keep = []string{action.FieldDurationMs, action.FieldSelector, action.FieldSelectorType}
	default:
		return action.Action{}, fmt.Errorf("unknown browser action type %q", a.Type())
	}

	if st := f[action.FieldSelectorType]; st != "" {
		switch st = strings.ToLower(st); st {
		case "css", "xpath", "text":
			f[action.FieldSelectorType] = st
		default:
			f[action.FieldSelectorType] = "css"
		}
	}

	out := make(map[string]string, len(keep))
	for _, k := range keep {
		if v := f[k]; v != "" {
			out[k] = v
		}
	}
	return a.Normalized(action.Browser, t, out), nil
}

// waitDuration reads duration_ms first. A bare number in duration is seconds;
// anything else must parse as a Go duration.
func waitDuration(f map[string]string) time.Duration {
	if ms, err := strconv.ParseInt(f[action.FieldDurationMs], 10, 64); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	raw := strings.TrimSpace(f[action.FieldDuration])
	if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
		return d
	}
	return DefaultWait
}

// applyStrategy converts an oracle selector strategy into a selector.
func applyStrategy(f map[string]string) {
	kind, value := strings.ToLower(f[action.FieldStrategy]), f[action.FieldStrategyVal]
	delete(f, action.FieldStrategy)
	delete(f, action.FieldStrategyVal)
	if value == "" || f[action.FieldSelector] != "" {
		return
	}
	selector, selectorType := SelectorFor(kind, value)
	f[action.FieldSelector] = selector
	f[action.FieldSelectorType] = selectorType
}

// SelectorFor maps a (strategy, value) pair onto a selector and its type.
func SelectorFor(strategy, value string) (selector, selectorType string) {
	switch strategy {
	case "text", "link_text", "button_text":
		return value, "text"
	case "xpath":
		return value, "xpath"
	case "id":
		return "#" + strings.TrimPrefix(value, "#"), "css"
	case "class":
		return "." + strings.TrimPrefix(value, "."), "css"
	case "name":
		return fmt.Sprintf("[name=%q]", value), "css"
	case "placeholder":
		return fmt.Sprintf("[placeholder=%q]", value), "css"
	case "aria_label", "aria-label":
		return fmt.Sprintf("[aria-label=%q]", value), "css"
	}
	return value, "css"
}
