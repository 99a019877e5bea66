package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rahul/helmsman/internal/action"
)

// Matcher priorities. Lower wins when spans overlap.
const (
	prioStructuredObject = iota
	prioShellFence
	prioStructuredFence
	prioTextual
	prioBareURL
)

// candidate is a span of the input claimed by one grammar. A candidate with
// no actions still claims its span so lower grammars cannot match inside it.
type candidate struct {
	start, end int
	priority   int
	actions    []action.Action
}

func (c candidate) overlaps(o candidate) bool {
	return c.start < o.end && o.start < c.end
}

// document is the input shared by all matchers. Fences are found once.
type document struct {
	text    string
	fences  []fence
	skipped []Skip
}

func (d *document) skip(from action.Provenance, offset int, reason string) {
	d.skipped = append(d.skipped, Skip{Provenance: from, Offset: offset, Reason: reason})
}

type matcher func(d *document) []candidate

// matchStructuredObject finds JSON objects carrying a browser_action member
// anywhere in the text, fenced or not.
func matchStructuredObject(d *document) []candidate {
	if !strings.Contains(d.text, `"browser_action"`) {
		return nil
	}
	var out []candidate
	for i := 0; i < len(d.text); i++ {
		if d.text[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(d.text[i:]))
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			continue
		}
		if _, ok := obj["browser_action"]; !ok {
			continue
		}
		end := i + int(dec.InputOffset())
		actions := objectActions(obj, action.FromStructuredObject)
		if len(actions) == 0 {
			d.skip(action.FromStructuredObject, i, "browser_action without an action type")
		}
		out = append(out, candidate{start: i, end: end, priority: prioStructuredObject, actions: actions})
		i = end - 1
	}
	return out
}

// matchFences handles rules for shell and structured fences. Blocks in any
// other language are claimed without producing actions.
func matchFences(d *document) []candidate {
	var out []candidate
	for _, f := range d.fences {
		c := candidate{start: f.start, end: f.end}
		switch f.class() {
		case fenceShell:
			c.priority = prioShellFence
			c.actions = shellLines(f.body)
		case fenceStructured:
			c.priority = prioStructuredFence
			if elems := arrayElements(f); len(elems) > 0 {
				out = append(out, elems...)
				continue
			}
			actions, err := decodeActions(f.body, action.FromStructuredFence)
			if err != nil {
				d.skip(action.FromStructuredFence, f.bodyStart, err.Error())
			}
			c.actions = actions
		default:
			c.priority = prioStructuredFence
		}
		out = append(out, c)
	}
	return out
}

// arrayElements gives each object of a structured fence holding a JSON array
// its own span, so a browser_action object inside the array displaces only
// itself. It returns nil for anything but a valid array.
func arrayElements(f fence) []candidate {
	if !strings.HasPrefix(strings.TrimSpace(f.body), "[") || !json.Valid([]byte(f.body)) {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(f.body))
	if _, err := dec.Token(); err != nil {
		return nil
	}
	var out []candidate
	for dec.More() {
		start := int(dec.InputOffset())
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil
		}
		end := int(dec.InputOffset())
		for start < end && strings.IndexByte(" \t\r\n,", f.body[start]) >= 0 {
			start++
		}
		var obj map[string]any
		if json.Unmarshal(raw, &obj) != nil {
			continue
		}
		out = append(out, candidate{
			start:    f.bodyStart + start,
			end:      f.bodyStart + end,
			priority: prioStructuredFence,
			actions:  objectActions(obj, action.FromStructuredFence),
		})
	}
	return out
}

// shellLines splits a shell block into one command per line. Comment lines
// and prompt markers are dropped; a trailing backslash joins the next line.
func shellLines(body string) []action.Action {
	var (
		out     []action.Action
		pending strings.Builder
	)
	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if pending.Len() == 0 && (line == "" || strings.HasPrefix(line, "#")) {
			continue
		}
		line = strings.TrimPrefix(line, "$ ")
		if cont, ok := strings.CutSuffix(line, "\\"); ok {
			pending.WriteString(strings.TrimSpace(cont))
			pending.WriteByte(' ')
			continue
		}
		pending.WriteString(line)
		if cmd := strings.TrimSpace(pending.String()); cmd != "" {
			out = append(out, action.NewTerminal(cmd, "", action.FromShellFence))
		}
		pending.Reset()
	}
	if cmd := strings.TrimSpace(pending.String()); cmd != "" {
		out = append(out, action.NewTerminal(cmd, "", action.FromShellFence))
	}
	return out
}

var (
	numberedPattern = regexp.MustCompile(`^\s*\d+[.)]\s+`)
	inlinePattern   = regexp.MustCompile("`([^`\n]+)`")
	leadInPattern   = regexp.MustCompile(`(?i)\b(run|execute|type|enter)(\s+the\s+command)?\s*:?\s*$`)
)

// matchTextual finds numbered and inline commands outside fences.
func matchTextual(d *document) []candidate {
	var out []candidate
	for off := 0; off < len(d.text); {
		end := strings.IndexByte(d.text[off:], '\n')
		if end < 0 {
			end = len(d.text)
		} else {
			end += off
		}
		if !inside(d.fences, off, end) {
			out = append(out, textualLine(d.text[off:end], off)...)
		}
		off = end + 1
	}
	return out
}

func textualLine(line string, off int) []candidate {
	body, bodyOff := line, 0
	if m := numberedPattern.FindStringIndex(line); m != nil {
		body, bodyOff = line[m[1]:], m[1]
		if !strings.Contains(body, "`") {
			cmd, desc, found := strings.Cut(body, " - ")
			cmd = strings.TrimSpace(cmd)
			if !found || !looksLikePlainCommand(cmd) {
				return nil
			}
			return []candidate{{
				start:    off + bodyOff,
				end:      off + len(line),
				priority: prioTextual,
				actions:  []action.Action{action.NewTerminal(cmd, cleanDescription(desc), action.FromTextual)},
			}}
		}
	}

	var out []candidate
	for _, m := range inlinePattern.FindAllStringSubmatchIndex(body, -1) {
		cmd := strings.TrimSpace(body[m[2]:m[3]])
		before := body[:m[0]]
		if !looksLikeCommand(cmd) && !leadInPattern.MatchString(before) {
			continue
		}
		desc := cleanDescription(body[m[1]:])
		if desc == "" {
			desc = labelDescription(before)
		}
		out = append(out, candidate{
			start:    off + bodyOff + m[0],
			end:      off + bodyOff + m[1],
			priority: prioTextual,
			actions:  []action.Action{action.NewTerminal(cmd, desc, action.FromTextual)},
		})
	}
	return out
}

// labelDescription takes prose before a command as its description only when
// it reads as a label ending in a colon. "Use `rm -rf build`" has none.
func labelDescription(before string) string {
	label := strings.TrimSpace(leadInPattern.ReplaceAllString(before, ""))
	if !strings.HasSuffix(label, ":") {
		return ""
	}
	return cleanDescription(label)
}

// cleanDescription trims connective punctuation around a description and
// keeps only its first sentence.
func cleanDescription(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "-–:,> ")
	s = strings.TrimRight(s, ":-– ")
	if i := strings.Index(s, ". "); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(strings.TrimSuffix(s, "."))
	if strings.Contains(s, "`") {
		return ""
	}
	return s
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"'\x60\]\)]+`)

// matchBareURLs turns URLs outside fences into navigate actions.
func matchBareURLs(d *document) []candidate {
	var out []candidate
	for _, m := range urlPattern.FindAllStringIndex(d.text, -1) {
		start, end := m[0], m[1]
		for end > start && strings.ContainsRune(".,;:!?", rune(d.text[end-1])) {
			end--
		}
		if inside(d.fences, start, end) {
			continue
		}
		url := d.text[start:end]
		if len(url) <= len("https://") {
			continue
		}
		out = append(out, candidate{
			start:    start,
			end:      end,
			priority: prioBareURL,
			actions: []action.Action{
				action.NewBrowser(action.Navigate, map[string]string{action.FieldURL: url}, "", action.FromBareURL),
			},
		})
	}
	return out
}
