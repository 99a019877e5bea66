package extract

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"github.com/rahul/helmsman/internal/action"
)

// browserKeys maps accepted JSON keys onto action fields. The first key
// present wins.
var browserKeys = []struct {
	field string
	keys  []string
}{
	{action.FieldURL, []string{"url", "href"}},
	{action.FieldQuery, []string{"query", "search", "search_query"}},
	{action.FieldSelector, []string{"selector", "element"}},
	{action.FieldSelectorType, []string{"selector_type"}},
	{action.FieldValue, []string{"value", "input_value", "text", "input"}},
	{action.FieldDirection, []string{"direction"}},
	{action.FieldDistance, []string{"distance", "amount", "pixels"}},
	{action.FieldDuration, []string{"duration", "seconds"}},
	{action.FieldDurationMs, []string{"duration_ms"}},
}

// BrowserFromObject builds a browser action out of a decoded JSON object.
// It reports false when the object names no action type.
func BrowserFromObject(obj map[string]any, from action.Provenance) (action.Action, bool) {
	kind := action.Browser
	actionType := stringify(obj["action_type"])
	if actionType == "" {
		if s, ok := obj["action"].(string); ok {
			actionType = s
		}
	}
	if label := stringify(obj["type"]); label != "" {
		if _, ok := action.ParseKind(label); ok {
			kind = action.Kind(strings.ToLower(label))
		} else if actionType == "" {
			actionType = label
		}
	}
	if actionType == "" {
		return action.Action{}, false
	}

	fields := make(map[string]string)
	for _, bk := range browserKeys {
		for _, k := range bk.keys {
			if v := stringify(obj[k]); v != "" {
				fields[bk.field] = v
				break
			}
		}
	}
	switch strategy := obj["selector_strategy"].(type) {
	case map[string]any:
		fields[action.FieldStrategy] = stringify(strategy["type"])
		fields[action.FieldStrategyVal] = stringify(strategy["value"])
	case string:
		fields[action.FieldStrategy] = strategy
		fields[action.FieldStrategyVal] = stringify(obj["selector_value"])
	}

	return action.New(kind, strings.ToLower(actionType), fields, describe(obj), from), true
}

// objectActions turns one JSON object into actions. Recognized shapes are a
// browser_action member (object or list), an action_type object, a command
// object and terminal_commands/commands lists.
func objectActions(obj map[string]any, from action.Provenance) []action.Action {
	var out []action.Action

	switch ba := obj["browser_action"].(type) {
	case map[string]any:
		if a, ok := BrowserFromObject(ba, from); ok {
			out = append(out, a)
		}
	case []any:
		for _, item := range ba {
			if m, ok := item.(map[string]any); ok {
				if a, ok := BrowserFromObject(m, from); ok {
					out = append(out, a)
				}
			}
		}
	}

	if isBrowserObject(obj) {
		if a, ok := BrowserFromObject(obj, from); ok {
			out = append(out, a)
		}
	} else if cmd, ok := obj["command"].(string); ok && strings.TrimSpace(cmd) != "" {
		kind := action.Terminal
		if label := stringify(obj["type"]); label != "" {
			kind = action.Kind(strings.ToLower(label))
		}
		out = append(out, action.New(kind, cmd, nil, describe(obj), from))
	}

	for _, key := range []string{"terminal_commands", "commands"} {
		out = append(out, commandList(obj[key], from)...)
	}
	return out
}

func isBrowserObject(obj map[string]any) bool {
	if _, ok := obj["action_type"]; ok {
		return true
	}
	label := stringify(obj["type"])
	if slices.Contains(action.BrowserTypes, strings.ToLower(label)) {
		return true
	}
	kind, ok := action.ParseKind(label)
	return ok && kind == action.Browser
}

func commandList(v any, from action.Provenance) []action.Action {
	var out []action.Action
	switch list := v.(type) {
	case string:
		if strings.TrimSpace(list) != "" {
			out = append(out, action.NewTerminal(list, "", from))
		}
	case []any:
		for _, item := range list {
			switch it := item.(type) {
			case string:
				if strings.TrimSpace(it) != "" {
					out = append(out, action.NewTerminal(it, "", from))
				}
			case map[string]any:
				if cmd := stringify(it["command"]); cmd != "" {
					out = append(out, action.NewTerminal(cmd, describe(it), from))
				}
			}
		}
	}
	return out
}

// decodeActions parses a structured block that holds an object or a list of objects.
func decodeActions(body string, from action.Provenance) ([]action.Action, error) {
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case map[string]any:
		return objectActions(val, from), nil
	case []any:
		var out []action.Action
		for _, item := range val {
			if m, ok := item.(map[string]any); ok {
				out = append(out, objectActions(m, from)...)
			}
		}
		return out, nil
	}
	return nil, nil
}

func describe(obj map[string]any) string {
	for _, k := range []string{"description", "explanation", "reasoning"} {
		if s := stringify(obj[k]); s != "" {
			return s
		}
	}
	return ""
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
