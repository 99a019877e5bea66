// Package action holds the value types shared by every stage of a request:
// actions pulled out of oracle text, the plans that group them and the
// results produced when they run.
package action

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
)

// Kind says which executor an action is bound for.
type Kind string

const (
	Terminal Kind = "terminal"
	Browser  Kind = "browser"
)

// ParseKind maps the labels oracles use for the two kinds onto the canonical enum.
func ParseKind(label string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "terminal", "command", "shell", "cmd":
		return Terminal, true
	case "browser", "web":
		return Browser, true
	}
	return "", false
}

// Browser action types.
const (
	Navigate = "navigate"
	Search   = "search"
	Click    = "click"
	Input    = "input"
	Scroll   = "scroll"
	Wait     = "wait"
)

// BrowserTypes lists the browser action types the executors understand.
var BrowserTypes = []string{Navigate, Search, Click, Input, Scroll, Wait}

// Field keys.
const (
	FieldURL          = "url"
	FieldQuery        = "query"
	FieldSelector     = "selector"
	FieldSelectorType = "selector_type"
	FieldValue        = "value"
	FieldDirection    = "direction"
	FieldDistance     = "distance"
	FieldDuration     = "duration"
	FieldDurationMs   = "duration_ms"
	FieldStrategy     = "strategy"
	FieldStrategyVal  = "strategy_value"
)

// Provenance names the grammar (or component) an action came from.
type Provenance string

const (
	FromStructuredObject Provenance = "structured_object"
	FromShellFence       Provenance = "shell_fence"
	FromStructuredFence  Provenance = "structured_fence"
	FromTextual          Provenance = "textual"
	FromBareURL          Provenance = "bare_url"
	FromOracle           Provenance = "oracle"
	FromFallback         Provenance = "fallback"
	FromSynthesized      Provenance = "synthesized"
)

// Action is one executable unit. The zero value is not useful; build one
// with NewTerminal or NewBrowser. Every method returns copies, so an Action
// can be shared between goroutines once built.
type Action struct {
	kind        Kind
	actionType  string
	fields      map[string]string
	description string
	provenance  Provenance
	index       int
}

// NewTerminal builds a terminal action whose type is the command itself.
func NewTerminal(command, description string, from Provenance) Action {
	return Action{
		kind:        Terminal,
		actionType:  strings.TrimSpace(command),
		description: strings.TrimSpace(description),
		provenance:  from,
		index:       -1,
	}
}

// NewBrowser builds a browser action. Empty field values are discarded.
func NewBrowser(actionType string, fields map[string]string, description string, from Provenance) Action {
	return New(Browser, actionType, fields, description, from)
}

// New builds an action with an arbitrary kind label. Labels that are not one
// of the canonical kinds are kept verbatim until classification.
func New(kind Kind, actionType string, fields map[string]string, description string, from Provenance) Action {
	a := Action{
		kind:        kind,
		actionType:  strings.TrimSpace(actionType),
		description: strings.TrimSpace(description),
		provenance:  from,
		index:       -1,
	}
	for k, v := range fields {
		if v = strings.TrimSpace(v); v != "" {
			if a.fields == nil {
				a.fields = make(map[string]string, len(fields))
			}
			a.fields[k] = v
		}
	}
	return a
}

func (a Action) Kind() Kind             { return a.kind }
func (a Action) Type() string           { return a.actionType }
func (a Action) Description() string    { return a.description }
func (a Action) Provenance() Provenance { return a.provenance }

// Index is the position of the action in extraction order, or -1 when the
// action was never part of an extracted plan.
func (a Action) Index() int { return a.index }

// Command returns the command text of a terminal action.
func (a Action) Command() string {
	if a.kind != Terminal {
		return ""
	}
	return a.actionType
}

// Field returns a single parameter.
func (a Action) Field(key string) (string, bool) {
	v, ok := a.fields[key]
	return v, ok
}

// Fields returns a copy of the parameters.
func (a Action) Fields() map[string]string {
	return maps.Clone(a.fields)
}

// WithIndex returns a copy positioned at i in extraction order.
func (a Action) WithIndex(i int) Action {
	a.index = i
	a.fields = maps.Clone(a.fields)
	return a
}

// Normalized returns a copy with a canonical kind, type and field set.
// Only classification should call it.
func (a Action) Normalized(kind Kind, actionType string, fields map[string]string) Action {
	b := New(kind, actionType, fields, a.description, a.provenance)
	b.index = a.index
	return b
}

// Equal reports whether two actions carry the same content and position.
func (a Action) Equal(b Action) bool {
	return a.kind == b.kind &&
		a.actionType == b.actionType &&
		a.description == b.description &&
		a.provenance == b.provenance &&
		a.index == b.index &&
		maps.Equal(a.fields, b.fields)
}

// String renders the action on one line for plan summaries and logs.
func (a Action) String() string {
	var sb strings.Builder
	switch a.kind {
	case Terminal:
		sb.WriteString("$ ")
		sb.WriteString(a.actionType)
	default:
		sb.WriteString(a.actionType)
		keys := slices.Collect(maps.Keys(a.fields))
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%q", k, a.fields[k])
		}
	}
	if a.description != "" {
		sb.WriteString("  # ")
		sb.WriteString(a.description)
	}
	return sb.String()
}
