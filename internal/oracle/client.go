// Package oracle talks to the language model: free-form responses for user
// requests, next-action decisions for adaptive sessions and page summaries.
// Everything the model returns is treated as untrusted text.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/rahul/helmsman/internal/action"
	"github.com/rahul/helmsman/internal/extract"
	"github.com/rahul/helmsman/internal/observability"
)

// ErrEmptyResponse is returned when the model answers with no choices.
var ErrEmptyResponse = errors.New("oracle: empty response")

const (
	respondTemperature   = 0.1
	analyzeTemperature   = 0.1
	summarizeTemperature = 0.3

	// maxPageText bounds how much page text goes into one prompt.
	maxPageText = 6000
	// maxHistorySteps is how many recent steps the page prompt shows.
	maxHistorySteps = 10
)

type Client struct {
	model   llms.Model
	prompts *PromptManager
	logger  *zap.Logger
	events  *observability.EventLogger
}

func NewClient(model llms.Model, prompts *PromptManager, logger *zap.Logger, events *observability.EventLogger) *Client {
	if prompts == nil {
		prompts = NewPromptManager("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		model:   model,
		prompts: prompts,
		logger:  logger.Named("oracle"),
		events:  events,
	}
}

// Respond answers a user request given prior conversation. With jsonMode the
// model is asked for a single JSON object.
func (c *Client) Respond(ctx context.Context, chatID string, history []llms.MessageContent, input string, jsonMode bool) (string, error) {
	system, err := c.prompts.SystemPrompt()
	if err != nil {
		c.logger.Warn("Failed to load system prompt", zap.Error(err))
	}

	var messages []llms.MessageContent
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	messages = append(messages, history...)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, input))

	opts := []llms.CallOption{llms.WithTemperature(respondTemperature)}
	if jsonMode {
		opts = append(opts, llms.WithJSONMode())
	}
	out, err := c.generate(ctx, messages, opts...)
	c.events.LogOracle(chatID, "", "respond", map[string]any{"input": input, "json_mode": jsonMode, "history": len(history)}, out)
	if err != nil {
		return "", fmt.Errorf("respond: %w", err)
	}
	return out, nil
}

// AnalyzePage asks for the single next action toward goal.
func (c *Client) AnalyzePage(ctx context.Context, state action.EnvironmentState, goal string, history []action.Step) (action.Decision, error) {
	system, err := c.prompts.PageAnalysisPrompt()
	if err != nil {
		return action.Decision{}, err
	}
	user := PagePrompt(state, goal, history)
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	out, err := c.generate(ctx, messages, llms.WithTemperature(analyzeTemperature), llms.WithJSONMode())
	c.events.LogOracle("", "", "analyze_page", map[string]any{"goal": goal, "url": state.URL, "steps": len(history)}, out)
	if err != nil {
		return action.Decision{}, fmt.Errorf("analyze page: %w", err)
	}
	d, err := ParseDecision(out)
	if err != nil {
		c.logger.Debug("Unusable page decision", zap.String("response", out), zap.Error(err))
		return action.Decision{}, err
	}
	return d, nil
}

// Summarize describes the page content with respect to goal.
func (c *Client) Summarize(ctx context.Context, state action.EnvironmentState, goal string) (string, error) {
	system, err := c.prompts.SummarizePrompt()
	if err != nil {
		return "", err
	}
	user := fmt.Sprintf("User's goal: %s\n\nPage: %s (%s)\n\nPage content:\n%s\n\nSummarise what is most useful to the user.",
		goal, state.Title, state.URL, truncate(state.Content, maxPageText))
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}
	out, err := c.generate(ctx, messages, llms.WithTemperature(summarizeTemperature))
	c.events.LogOracle("", "", "summarize", map[string]any{"goal": goal, "url": state.URL}, out)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (c *Client) generate(ctx context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (string, error) {
	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}

// PagePrompt renders what the model is told about the page and the session.
func PagePrompt(state action.EnvironmentState, goal string, history []action.Step) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\n", goal)

	b.WriteString("Current page state:\n")
	if state.Degraded() {
		fmt.Fprintf(&b, "(the page could not be captured: %s)\n", state.Err)
	}
	fmt.Fprintf(&b, "URL: %s\nTitle: %s\n", state.URL, state.Title)
	if state.Elements != "" {
		fmt.Fprintf(&b, "\nInteractive elements:\n%s\n", state.Elements)
	}
	if state.Content != "" {
		fmt.Fprintf(&b, "\nVisible text:\n%s\n", truncate(state.Content, maxPageText))
	}

	if len(history) > 0 {
		b.WriteString("\nActions so far:\n")
		start := max(len(history)-maxHistorySteps, 0)
		for i, s := range history[start:] {
			outcome := "ok"
			if !s.Result.Succeeded {
				outcome = "failed: " + truncate(s.Result.Output, 200)
			}
			fmt.Fprintf(&b, "%d. %s -> %s\n", start+i+1, s.Action, outcome)
		}
	}

	b.WriteString("\nBased on the current page state and the goal, what is the next action? Reply with one JSON object.")
	return b.String()
}

// ParseDecision reads the model's answer to "what next?". It accepts a done
// marker, an action object, or an object wrapping one under action,
// next_action or browser_action.
func ParseDecision(text string) (action.Decision, error) {
	obj, err := firstObject(text)
	if err != nil {
		return action.Decision{}, err
	}

	reasoning := firstString(obj, "reasoning", "reason", "summary", "description")
	if truthy(obj["done"]) || truthy(obj["goal_achieved"]) || truthy(obj["complete"]) {
		return action.Decision{Done: true, Reasoning: reasoning}, nil
	}

	for _, key := range []string{"action", "next_action", "browser_action"} {
		if inner, ok := obj[key].(map[string]any); ok {
			obj = inner
			break
		}
	}
	a, ok := extract.BrowserFromObject(obj, action.FromOracle)
	if !ok {
		return action.Decision{}, fmt.Errorf("oracle: no action in response")
	}
	return action.Decision{Action: a, Reasoning: reasoning}, nil
}

// firstObject decodes the first JSON object in text, skipping any prose or
// fence markers around it.
func firstObject(text string) (map[string]any, error) {
	for i := strings.IndexByte(text, '{'); i >= 0; {
		var obj map[string]any
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&obj); err == nil {
			return obj, nil
		}
		next := strings.IndexByte(text[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return nil, fmt.Errorf("oracle: no JSON object in response %q", truncate(text, 80))
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true") || strings.EqualFold(t, "yes")
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
