package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		label string
		want  Kind
		ok    bool
	}{
		{"terminal", Terminal, true},
		{"Command", Terminal, true},
		{" shell ", Terminal, true},
		{"browser", Browser, true},
		{"WEB", Browser, true},
		{"robot", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := ParseKind(tt.label)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAction_FieldsAreCopied(t *testing.T) {
	src := map[string]string{FieldURL: "https://example.com", FieldQuery: "  "}
	a := NewBrowser(Navigate, src, "", FromBareURL)

	src[FieldURL] = "https://mutated.example"
	got, ok := a.Field(FieldURL)
	require.True(t, ok)
	assert.Equal(t, "https://example.com", got)

	_, ok = a.Field(FieldQuery)
	assert.False(t, ok, "blank values are dropped")

	fields := a.Fields()
	fields[FieldURL] = "changed"
	got, _ = a.Field(FieldURL)
	assert.Equal(t, "https://example.com", got)
}

func TestAction_TerminalCommand(t *testing.T) {
	a := NewTerminal("  ls -la ", "list files", FromShellFence)
	assert.Equal(t, Terminal, a.Kind())
	assert.Equal(t, "ls -la", a.Command())
	assert.Equal(t, "ls -la", a.Type())
	assert.Equal(t, -1, a.Index())
	assert.Equal(t, "$ ls -la  # list files", a.String())

	b := NewBrowser(Navigate, nil, "", FromBareURL)
	assert.Empty(t, b.Command())
}

func TestAction_WithIndexAndEqual(t *testing.T) {
	a := NewBrowser(Scroll, map[string]string{FieldDirection: "down"}, "", FromOracle)
	b := a.WithIndex(3)
	assert.Equal(t, -1, a.Index())
	assert.Equal(t, 3, b.Index())
	assert.False(t, a.Equal(b))
	assert.True(t, b.Equal(a.WithIndex(3)))
}

func TestNewPlan_IndexesActions(t *testing.T) {
	actions := []Action{
		NewTerminal("mkdir proj", "", FromShellFence),
		NewTerminal("git init", "", FromShellFence),
	}
	p := NewPlan("set up a repo", actions)

	require.Equal(t, 2, p.Len())
	assert.NotEmpty(t, p.ID())
	assert.Equal(t, "set up a repo", p.Request())
	for i, a := range p.Actions() {
		assert.Equal(t, i, a.Index())
	}
	assert.Equal(t, []string{
		"1. [terminal] $ mkdir proj",
		"2. [terminal] $ git init",
	}, p.Summary())
}

func TestPlanResult_Succeeded(t *testing.T) {
	r := PlanResult{Outcomes: []Outcome{
		{Result: ExecutionResult{Succeeded: true}},
		{Result: Failed(ExecutorFailure, "boom", 0)},
	}}
	assert.Equal(t, 1, r.Succeeded())
}
