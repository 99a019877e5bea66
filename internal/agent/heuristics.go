package agent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rahul/helmsman/internal/action"
)

var browserKeywords = []string{
	"use browser", "search online", "browser", "search for", "find", "look up", "website",
	"http://", "https://",
}

// IsBrowserRequest reports whether the user is asking for something done in
// the browser. Such requests go to the oracle in JSON mode.
func IsBrowserRequest(input string) bool {
	lower := strings.ToLower(input)
	for _, k := range browserKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Tried in order; the first match wins.
var queryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`search for ["']?([^"']+)["']?`),
	regexp.MustCompile(`find ["']?([^"']+)["']?`),
	regexp.MustCompile(`look up ["']?([^"']+)["']?`),
	regexp.MustCompile(`browse ["']?([^"']+)["']?`),
	regexp.MustCompile(`search ["']?([^"']+)["']?`),
}

// SearchQuery pulls the thing to search for out of a request. Without a
// recognizable phrase the whole request is the query.
func SearchQuery(input string) string {
	lower := strings.ToLower(input)
	for _, re := range queryPatterns {
		if m := re.FindStringSubmatch(lower); m != nil {
			if q := strings.TrimSpace(strings.TrimRight(m[1], ".?!")); q != "" {
				return q
			}
		}
	}
	return strings.TrimSpace(input)
}

type site struct {
	keyword string
	name    string
	url     string
}

var knownSites = []site{
	{"redfin", "Redfin", "https://www.redfin.com/"},
	{"zillow", "Zillow", "https://www.zillow.com/homes/for_rent/"},
	{"apartments.com", "Apartments.com", "https://www.apartments.com/"},
	{"trulia", "Trulia", "https://www.trulia.com/"},
	{"linkedin", "LinkedIn", "https://www.linkedin.com/jobs/"},
	{"indeed", "Indeed", "https://www.indeed.com/jobs"},
	{"amazon", "Amazon", "https://www.amazon.com/"},
	{"ebay", "eBay", "https://www.ebay.com/"},
}

// Synthesize builds the action used when a browser request produced nothing
// runnable: a visit to a site the user named, otherwise a search.
func Synthesize(input string) action.Action {
	lower := strings.ToLower(input)
	for _, s := range knownSites {
		if strings.Contains(lower, s.keyword) {
			return action.NewBrowser(action.Navigate,
				map[string]string{action.FieldURL: s.url},
				fmt.Sprintf("Open %s for %q", s.name, input),
				action.FromSynthesized)
		}
	}
	q := SearchQuery(input)
	return action.NewBrowser(action.Search,
		map[string]string{action.FieldQuery: q},
		fmt.Sprintf("Search for %q", q),
		action.FromSynthesized)
}
