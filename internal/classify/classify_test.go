package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/helmsman/internal/action"
)

func browser(t string, fields map[string]string) action.Action {
	return action.NewBrowser(t, fields, "", action.FromStructuredFence)
}

func TestClassify_PartitionsAndKeepsOrder(t *testing.T) {
	plan := action.NewPlan("req", []action.Action{
		action.NewTerminal("ls", "", action.FromShellFence),
		browser(action.Navigate, map[string]string{action.FieldURL: "https://example.com"}),
		action.New(action.Kind("command"), "pwd", nil, "", action.FromStructuredFence),
		browser(action.Navigate, nil),
		action.New(action.Kind("web"), action.Search, map[string]string{action.FieldQuery: "golang"}, "", action.FromStructuredFence),
	})

	res := Classify(plan.Actions())

	require.Len(t, res.Terminal, 2)
	assert.Equal(t, "ls", res.Terminal[0].Command())
	assert.Equal(t, "pwd", res.Terminal[1].Command())
	assert.Equal(t, action.Terminal, res.Terminal[1].Kind())
	assert.Equal(t, 2, res.Terminal[1].Index())

	require.Len(t, res.Browser, 2)
	assert.Equal(t, action.Navigate, res.Browser[0].Type())
	assert.Equal(t, action.Search, res.Browser[1].Type())
	assert.Equal(t, action.Browser, res.Browser[1].Kind())

	require.Len(t, res.Malformed, 1)
	assert.Equal(t, action.MissingField, res.Malformed[0].Kind)
	assert.Equal(t, 3, res.Malformed[0].Action.Index())
	assert.Contains(t, res.Malformed[0].Reason, "url")
}

func TestClassify_Empty(t *testing.T) {
	res := Classify(nil)
	assert.True(t, res.Empty())
	assert.Empty(t, res.Malformed)
}

func TestNormalize_BrowserRules(t *testing.T) {
	tests := []struct {
		name    string
		in      action.Action
		wantErr bool
		want    string
		fields  map[string]string
	}{
		{
			name:   "alias and scheme",
			in:     browser("visit", map[string]string{action.FieldURL: "example.com"}),
			want:   action.Navigate,
			fields: map[string]string{action.FieldURL: "https://example.com"},
		},
		{
			name:    "click without selector",
			in:      browser(action.Click, nil),
			wantErr: true,
		},
		{
			name: "click from strategy",
			in: browser(action.Click, map[string]string{
				action.FieldStrategy:    "id",
				action.FieldStrategyVal: "submit",
			}),
			want:   action.Click,
			fields: map[string]string{action.FieldSelector: "#submit", action.FieldSelectorType: "css"},
		},
		{
			name:   "input without selector",
			in:     browser("type", map[string]string{action.FieldValue: "hello"}),
			want:   action.Input,
			fields: map[string]string{action.FieldValue: "hello"},
		},
		{
			name:    "input without value",
			in:      browser(action.Input, map[string]string{action.FieldSelector: "#q"}),
			wantErr: true,
		},
		{
			name:   "scroll defaults",
			in:     browser(action.Scroll, map[string]string{action.FieldDirection: "sideways"}),
			want:   action.Scroll,
			fields: map[string]string{action.FieldDirection: "down", action.FieldDistance: "500"},
		},
		{
			name:   "wait seconds",
			in:     browser("sleep", map[string]string{action.FieldDuration: "3"}),
			want:   action.Wait,
			fields: map[string]string{action.FieldDurationMs: "3000"},
		},
		{
			name:   "wait default",
			in:     browser(action.Wait, nil),
			want:   action.Wait,
			fields: map[string]string{action.FieldDurationMs: "2000"},
		},
		{
			name:    "unknown type",
			in:      browser("teleport", nil),
			wantErr: true,
		},
		{
			name:    "unknown kind",
			in:      action.New(action.Kind("robot"), "walk", nil, "", action.FromOracle),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Type())
			assert.Equal(t, tt.fields, got.Fields())
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	in := browser("sleep", map[string]string{action.FieldDuration: "1.5"})
	once, err := Normalize(in)
	require.NoError(t, err)
	twice, err := Normalize(once)
	require.NoError(t, err)
	assert.True(t, once.Equal(twice))
}

func TestSelectorFor(t *testing.T) {
	tests := []struct {
		strategy, value, selector, kind string
	}{
		{"text", "Sign in", "Sign in", "text"},
		{"xpath", "//a[1]", "//a[1]", "xpath"},
		{"id", "#main", "#main", "css"},
		{"class", "btn", ".btn", "css"},
		{"name", "q", `[name="q"]`, "css"},
		{"placeholder", "Search", `[placeholder="Search"]`, "css"},
		{"", "div > a", "div > a", "css"},
	}
	for _, tt := range tests {
		sel, kind := SelectorFor(tt.strategy, tt.value)
		assert.Equal(t, tt.selector, sel, tt.strategy)
		assert.Equal(t, tt.kind, kind, tt.strategy)
	}
}
