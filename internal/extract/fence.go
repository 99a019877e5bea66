package extract

import (
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?ms)^[ \\t]*```[ \\t]*([A-Za-z0-9_+.-]*)[^\\n]*\\n(.*?)^[ \\t]*```")

type fenceClass int

const (
	fenceOther fenceClass = iota
	fenceShell
	fenceStructured
)

var shellTags = map[string]bool{
	"bash": true, "sh": true, "shell": true, "zsh": true, "console": true,
	"terminal": true, "powershell": true, "ps1": true, "cmd": true, "bat": true,
}

var structuredTags = map[string]bool{
	"json": true, "jsonc": true, "json5": true, "browser": true,
}

// fence is one fenced block. start/end bound the whole block including the
// backtick lines; bodyStart is the offset of the first content byte.
type fence struct {
	start, end int
	bodyStart  int
	lang       string
	body       string
}

func findFences(text string) []fence {
	var out []fence
	for _, m := range fencePattern.FindAllStringSubmatchIndex(text, -1) {
		f := fence{
			start:     m[0],
			end:       m[1],
			lang:      strings.ToLower(text[m[2]:m[3]]),
			bodyStart: m[4],
			body:      text[m[4]:m[5]],
		}
		out = append(out, f)
	}
	return out
}

// class decides which grammar owns the block. Untagged blocks are sniffed.
func (f fence) class() fenceClass {
	switch {
	case shellTags[f.lang]:
		return fenceShell
	case structuredTags[f.lang]:
		return fenceStructured
	case f.lang != "":
		return fenceOther
	}
	trimmed := strings.TrimSpace(f.body)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return fenceStructured
	}
	return fenceShell
}

// inside reports whether [start,end) overlaps any fence.
func inside(fences []fence, start, end int) bool {
	for _, f := range fences {
		if start < f.end && f.start < end {
			return true
		}
	}
	return false
}
