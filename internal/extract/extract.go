// Package extract turns raw oracle text into an ordered list of actions.
//
// Five grammars run over the same text independently:
//
//  1. a JSON object with a browser_action member
//  2. shell fences, one command per line
//  3. JSON fences holding action_type or command objects
//  4. numbered or backticked commands outside fences
//  5. bare URLs outside fences
//
// Each grammar reports position-tagged candidates. Candidates are accepted in
// priority order when they do not overlap an already accepted span, then
// emitted left to right.
package extract

import (
	"sort"

	"go.uber.org/zap"

	"github.com/rahul/helmsman/internal/action"
)

// Skip records one malformed match that was ignored.
type Skip struct {
	Provenance action.Provenance
	Offset     int
	Reason     string
}

// Result is the output of one extraction.
type Result struct {
	Actions []action.Action
	Skipped []Skip
}

// Plan wraps the actions into a plan for request.
func (r Result) Plan(request string) action.Plan {
	return action.NewPlan(request, r.Actions)
}

// Count returns the number of actions per provenance.
func (r Result) Count() map[action.Provenance]int {
	out := make(map[action.Provenance]int)
	for _, a := range r.Actions {
		out[a.Provenance()]++
	}
	return out
}

// Extractor runs the grammars. It holds no state between calls.
type Extractor struct {
	logger   *zap.Logger
	matchers []matcher
}

func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		logger: logger.Named("extract"),
		matchers: []matcher{
			matchStructuredObject,
			matchFences,
			matchTextual,
			matchBareURLs,
		},
	}
}

// Extract never fails. Text with nothing recognizable yields an empty result.
func (e *Extractor) Extract(text string) Result {
	d := &document{text: text, fences: findFences(text)}

	var cands []candidate
	for _, m := range e.matchers {
		cands = append(cands, m(d)...)
	}

	accepted := merge(cands)
	accepted = dropRestatements(accepted)

	var res Result
	for _, c := range accepted {
		for _, a := range c.actions {
			res.Actions = append(res.Actions, a.WithIndex(len(res.Actions)))
		}
	}
	res.Skipped = d.skipped

	for _, s := range res.Skipped {
		e.logger.Debug("Skipped malformed match",
			zap.String("provenance", string(s.Provenance)),
			zap.Int("offset", s.Offset),
			zap.String("reason", s.Reason))
	}
	return res
}

// Extract runs a default extractor.
func Extract(text string) Result {
	return New(nil).Extract(text)
}

func merge(cands []candidate) []candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].priority != cands[j].priority {
			return cands[i].priority < cands[j].priority
		}
		return cands[i].start < cands[j].start
	})

	var accepted []candidate
next:
	for _, c := range cands {
		for _, a := range accepted {
			if c.overlaps(a) {
				continue next
			}
		}
		accepted = append(accepted, c)
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].start < accepted[j].start
	})
	return accepted
}

// dropRestatements removes textual commands that only repeat what a fenced
// or structured block already runs, either verbatim or as a chain of
// commands each of which appears in a block.
func dropRestatements(accepted []candidate) []candidate {
	blockCmds := make(map[string]bool)
	for _, c := range accepted {
		if c.priority == prioTextual {
			continue
		}
		for _, a := range c.actions {
			if cmd := a.Command(); cmd != "" {
				blockCmds[cmd] = true
			}
		}
	}
	if len(blockCmds) == 0 {
		return accepted
	}

	out := accepted[:0:0]
	for _, c := range accepted {
		if c.priority == prioTextual && len(c.actions) == 1 && restated(c.actions[0].Command(), blockCmds) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func restated(cmd string, blockCmds map[string]bool) bool {
	if blockCmds[cmd] {
		return true
	}
	segs := segments(cmd)
	if len(segs) < 2 {
		return false
	}
	for _, s := range segs {
		if !blockCmds[s] {
			return false
		}
	}
	return true
}
