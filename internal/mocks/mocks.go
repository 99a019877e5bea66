// Package mocks holds testify mocks for the collaborators that sit at the
// edge of the system: shell, browser driver, confirmation surface and oracle.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/helmsman/internal/action"
	"github.com/rahul/helmsman/internal/executor"
)

// MockShell implements executor.Shell.
type MockShell struct {
	mock.Mock
}

func (m *MockShell) Run(ctx context.Context, command, cwd string, timeout time.Duration) (executor.ShellResult, error) {
	args := m.Called(ctx, command, cwd, timeout)
	return args.Get(0).(executor.ShellResult), args.Error(1)
}

// MockBrowser implements executor.Browser.
type MockBrowser struct {
	mock.Mock
}

func (m *MockBrowser) Navigate(ctx context.Context, url string) (string, error) {
	args := m.Called(ctx, url)
	return args.String(0), args.Error(1)
}

func (m *MockBrowser) Search(ctx context.Context, query, selector string) (string, error) {
	args := m.Called(ctx, query, selector)
	return args.String(0), args.Error(1)
}

func (m *MockBrowser) Click(ctx context.Context, selector, selectorType string) (string, error) {
	args := m.Called(ctx, selector, selectorType)
	return args.String(0), args.Error(1)
}

func (m *MockBrowser) FillInput(ctx context.Context, selector, value string) (string, error) {
	args := m.Called(ctx, selector, value)
	return args.String(0), args.Error(1)
}

func (m *MockBrowser) Scroll(ctx context.Context, direction string, distance int) (string, error) {
	args := m.Called(ctx, direction, distance)
	return args.String(0), args.Error(1)
}

func (m *MockBrowser) Wait(ctx context.Context, d time.Duration) (string, error) {
	args := m.Called(ctx, d)
	return args.String(0), args.Error(1)
}

func (m *MockBrowser) CaptureState(ctx context.Context) (action.EnvironmentState, error) {
	args := m.Called(ctx)
	return args.Get(0).(action.EnvironmentState), args.Error(1)
}

// MockSurface implements executor.Surface.
type MockSurface struct {
	mock.Mock
}

func (m *MockSurface) ShowPlan(ctx context.Context, lines []string) error {
	args := m.Called(ctx, lines)
	return args.Error(0)
}

func (m *MockSurface) Confirm(ctx context.Context, prompt string) (bool, error) {
	args := m.Called(ctx, prompt)
	return args.Bool(0), args.Error(1)
}

// MockPageOracle answers next-action questions in adaptive sessions.
type MockPageOracle struct {
	mock.Mock
}

func (m *MockPageOracle) AnalyzePage(ctx context.Context, state action.EnvironmentState, goal string, history []action.Step) (action.Decision, error) {
	args := m.Called(ctx, state, goal, history)
	return args.Get(0).(action.Decision), args.Error(1)
}

// MockModel implements llms.Model. Call options are not forwarded to the
// expectation so tests match on messages only.
type MockModel struct {
	mock.Mock
}

func (m *MockModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	args := m.Called(ctx, messages)
	resp, _ := args.Get(0).(*llms.ContentResponse)
	return resp, args.Error(1)
}

func (m *MockModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Reply builds a single-choice response.
func Reply(content string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content}}}
}
