package oracle

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

//go:embed prompts/*.md
var defaultPrompts embed.FS

const (
	pageAnalysisPrompt = "page_analysis.md"
	summarizePrompt    = "summarize.md"
)

// systemOrder fixes the position of known system prompt files. Other files
// follow in name order.
var systemOrder = map[string]int{
	"identity.md": 1,
	"system.md":   2,
	"user.md":     3,
}

// PromptManager loads prompts from Directory, falling back to the built-in
// copies for anything the directory does not provide.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// SystemPrompt joins every system prompt file in order. Files used for page
// analysis and summaries are not part of it.
func (pm *PromptManager) SystemPrompt() (string, error) {
	fsys, err := pm.source()
	if err != nil {
		return "", err
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return "", fmt.Errorf("failed to read prompts: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".md") || name == pageAnalysisPrompt || name == summarizePrompt {
			continue
		}
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		oa, okA := systemOrder[a]
		ob, okB := systemOrder[b]
		switch {
		case okA && okB:
			return oa - ob
		case okA:
			return -1
		case okB:
			return 1
		}
		return strings.Compare(a, b)
	})

	var parts []string
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt %s: %w", name, err)
		}
		parts = append(parts, strings.TrimSpace(string(data)))
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no prompt files found in %s", pm.Directory)
	}
	return strings.Join(parts, "\n\n---\n\n"), nil
}

func (pm *PromptManager) PageAnalysisPrompt() (string, error) {
	return pm.single(pageAnalysisPrompt)
}

func (pm *PromptManager) SummarizePrompt() (string, error) {
	return pm.single(summarizePrompt)
}

func (pm *PromptManager) single(name string) (string, error) {
	if pm.Directory != "" {
		data, err := os.ReadFile(filepath.Join(pm.Directory, name))
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read prompt %s: %w", name, err)
		}
	}
	data, err := defaultPrompts.ReadFile("prompts/" + name)
	if err != nil {
		return "", fmt.Errorf("failed to read built-in prompt %s: %w", name, err)
	}
	return string(data), nil
}

// source is the override directory when it exists and holds markdown files,
// the built-in prompts otherwise.
func (pm *PromptManager) source() (fs.FS, error) {
	if pm.Directory != "" {
		matches, err := filepath.Glob(filepath.Join(pm.Directory, "*.md"))
		if err != nil {
			return nil, fmt.Errorf("failed to read prompts directory: %w", err)
		}
		if len(matches) > 0 {
			return os.DirFS(pm.Directory), nil
		}
	}
	return fs.Sub(defaultPrompts, "prompts")
}
