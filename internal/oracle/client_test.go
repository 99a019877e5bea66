package oracle_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/rahul/helmsman/internal/action"
	"github.com/rahul/helmsman/internal/classify"
	"github.com/rahul/helmsman/internal/mocks"
	"github.com/rahul/helmsman/internal/observability"
	"github.com/rahul/helmsman/internal/oracle"
)

func text(m llms.MessageContent) string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if t, ok := p.(llms.TextContent); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

func TestParseDecision(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		done     bool
		typ      string
		field    string
		value    string
		hasError bool
	}{
		{name: "done", in: `{"done": true, "reasoning": "found it"}`, done: true},
		{name: "goal achieved string", in: `{"goal_achieved": "yes"}`, done: true},
		{name: "flat action", in: `{"action_type": "navigate", "url": "https://example.com"}`, typ: "navigate", field: "url", value: "https://example.com"},
		{name: "wrapped action", in: `{"next_action": {"action_type": "scroll", "direction": "up"}}`, typ: "scroll", field: "direction", value: "up"},
		{name: "browser_action", in: `{"browser_action": {"action_type": "search", "query": "go"}}`, typ: "search", field: "query", value: "go"},
		{name: "prose around json", in: "Sure!\n```json\n{\"action_type\": \"wait\", \"duration\": 3}\n```", typ: "wait", field: "duration", value: "3"},
		{name: "strategy", in: `{"action_type": "click", "selector_strategy": "text", "selector_value": "Sign In"}`, typ: "click", field: "strategy_value", value: "Sign In"},
		{name: "input value", in: `{"action_type": "input", "input_value": "kettle"}`, typ: "input", field: "value", value: "kettle"},
		{name: "no json", in: "I think you should click the button", hasError: true},
		{name: "no action", in: `{"thoughts": "hmm"}`, hasError: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := oracle.ParseDecision(tc.in)
			if tc.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.done, d.Done)
			if tc.done {
				return
			}
			assert.Equal(t, action.Browser, d.Action.Kind())
			assert.Equal(t, action.FromOracle, d.Action.Provenance())
			assert.Equal(t, tc.typ, d.Action.Type())
			v, _ := d.Action.Field(tc.field)
			assert.Equal(t, tc.value, v)
		})
	}
}

func TestParseDecision_StrategyNormalizes(t *testing.T) {
	d, err := oracle.ParseDecision(`{"action_type": "click", "selector_strategy": "id", "selector_value": "buy"}`)
	require.NoError(t, err)

	n, err := classify.Normalize(d.Action)
	require.NoError(t, err)
	sel, _ := n.Field(action.FieldSelector)
	assert.Equal(t, "#buy", sel)
}

func TestAnalyzePage(t *testing.T) {
	model := new(mocks.MockModel)
	var transcript bytes.Buffer
	events := observability.NewEventLoggerWriter(zap.NewNop(), &transcript)
	c := oracle.NewClient(model, nil, zap.NewNop(), events)

	state := action.EnvironmentState{URL: "https://shop.example", Title: "Shop", Content: "Kettles from $20"}
	history := []action.Step{{
		Action: action.NewBrowser(action.Navigate, map[string]string{"url": "https://shop.example"}, "", action.FromOracle),
		Result: action.ExecutionResult{Succeeded: true},
	}}

	model.On("GenerateContent", mock.Anything, mock.MatchedBy(func(msgs []llms.MessageContent) bool {
		return len(msgs) == 2 &&
			msgs[0].Role == llms.ChatMessageTypeSystem &&
			strings.Contains(text(msgs[1]), "Goal: find a kettle") &&
			strings.Contains(text(msgs[1]), "Kettles from $20") &&
			strings.Contains(text(msgs[1]), `1. navigate url="https://shop.example" -> ok`)
	})).Return(mocks.Reply(`{"action_type": "click", "selector": "a.kettle"}`), nil)

	d, err := c.AnalyzePage(context.Background(), state, "find a kettle", history)
	require.NoError(t, err)
	assert.False(t, d.Done)
	assert.Equal(t, action.Click, d.Action.Type())
	assert.Contains(t, transcript.String(), `"call":"analyze_page"`)
	model.AssertExpectations(t)
}

func TestAnalyzePage_ModelError(t *testing.T) {
	model := new(mocks.MockModel)
	c := oracle.NewClient(model, nil, nil, nil)
	model.On("GenerateContent", mock.Anything, mock.Anything).Return(nil, errors.New("429"))

	_, err := c.AnalyzePage(context.Background(), action.EnvironmentState{}, "g", nil)
	assert.Error(t, err)
}

func TestAnalyzePage_EmptyChoices(t *testing.T) {
	model := new(mocks.MockModel)
	c := oracle.NewClient(model, nil, nil, nil)
	model.On("GenerateContent", mock.Anything, mock.Anything).Return(&llms.ContentResponse{}, nil)

	_, err := c.AnalyzePage(context.Background(), action.EnvironmentState{}, "g", nil)
	assert.ErrorIs(t, err, oracle.ErrEmptyResponse)
}

func TestRespond_IncludesSystemPromptAndHistory(t *testing.T) {
	model := new(mocks.MockModel)
	c := oracle.NewClient(model, nil, nil, nil)
	history := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "earlier question"),
		llms.TextParts(llms.ChatMessageTypeAI, "earlier answer"),
	}

	model.On("GenerateContent", mock.Anything, mock.MatchedBy(func(msgs []llms.MessageContent) bool {
		return len(msgs) == 4 &&
			strings.Contains(text(msgs[0]), "browser_action") &&
			text(msgs[1]) == "earlier question" &&
			text(msgs[3]) == "list files"
	})).Return(mocks.Reply("```bash\nls -la\n```"), nil)

	out, err := c.Respond(context.Background(), "chat", history, "list files", false)
	require.NoError(t, err)
	assert.Contains(t, out, "ls -la")
}

func TestSummarize(t *testing.T) {
	model := new(mocks.MockModel)
	c := oracle.NewClient(model, nil, nil, nil)
	model.On("GenerateContent", mock.Anything, mock.Anything).Return(mocks.Reply("  - three kettles under $30\n"), nil)

	out, err := c.Summarize(context.Background(), action.EnvironmentState{Content: "..."}, "kettles")
	require.NoError(t, err)
	assert.Equal(t, "- three kettles under $30", out)
}

func TestPagePrompt_DegradedAndLongHistory(t *testing.T) {
	var history []action.Step
	for range 15 {
		history = append(history, action.Step{
			Action: action.NewBrowser(action.Scroll, map[string]string{"direction": "down"}, "", action.FromFallback),
			Result: action.ExecutionResult{Output: "boom"},
		})
	}
	p := oracle.PagePrompt(action.EnvironmentState{Err: "target closed"}, "g", history)

	assert.Contains(t, p, "could not be captured: target closed")
	assert.Contains(t, p, "15. scroll")
	assert.NotContains(t, p, "\n5. scroll")
	assert.Contains(t, p, "failed: boom")
}

func TestPagePrompt_TruncatesOnRuneBoundary(t *testing.T) {
	history := []action.Step{{
		Action: action.NewBrowser(action.Click, map[string]string{action.FieldSelector: "#buy"}, "", action.FromFallback),
		Result: action.ExecutionResult{Output: strings.Repeat("€", 100)},
	}}
	p := oracle.PagePrompt(action.EnvironmentState{
		URL:     "https://shop.example",
		Content: strings.Repeat("日本", 1500),
	}, "g", history)

	assert.True(t, utf8.ValidString(p))
	assert.Contains(t, p, "failed: "+strings.Repeat("€", 66)+"...\n")
	assert.Contains(t, p, strings.Repeat("日本", 1000)+"...")
}

func TestPromptManager_Defaults(t *testing.T) {
	pm := oracle.NewPromptManager("")

	system, err := pm.SystemPrompt()
	require.NoError(t, err)
	assert.Less(t, strings.Index(system, "You are Helmsman"), strings.Index(system, "browser_action"))
	assert.NotContains(t, system, "next action that makes")

	page, err := pm.PageAnalysisPrompt()
	require.NoError(t, err)
	assert.Contains(t, page, "selector_strategy")
}

func TestPromptManager_DirectoryOverride(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"identity.md":      "Identity Content",
		"system.md":        "System Content",
		"user.md":          "User Content",
		"extra.md":         "Extra Content",
		"page_analysis.md": "Custom Page Prompt",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	pm := oracle.NewPromptManager(dir)
	system, err := pm.SystemPrompt()
	require.NoError(t, err)

	order := []string{"Identity Content", "System Content", "User Content", "Extra Content"}
	for i := 1; i < len(order); i++ {
		assert.Less(t, strings.Index(system, order[i-1]), strings.Index(system, order[i]))
	}
	assert.NotContains(t, system, "Custom Page Prompt")

	page, err := pm.PageAnalysisPrompt()
	require.NoError(t, err)
	assert.Equal(t, "Custom Page Prompt", page)

	// not overridden, falls back to the built-in copy
	summary, err := pm.SummarizePrompt()
	require.NoError(t, err)
	assert.Contains(t, summary, "200 words")
}
