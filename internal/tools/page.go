package tools

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// DefaultMaxPageChars bounds the text kept from one page.
const DefaultMaxPageChars = 20000

var blankRuns = regexp.MustCompile(`[ \t]*\n[\s]*\n\s*`)

// PageReader turns captured page HTML into readable plain text.
type PageReader struct {
	policy   *bluemonday.Policy
	MaxChars int
}

func NewPageReader() *PageReader {
	return &PageReader{policy: bluemonday.StrictPolicy(), MaxChars: DefaultMaxPageChars}
}

// Read extracts the main content of a page. When readability cannot find
// an article, the whole document is stripped of markup instead.
func (r *PageReader) Read(doc, pageURL string) (title, text string) {
	u, err := url.Parse(pageURL)
	if err != nil {
		u = &url.URL{}
	}

	article, err := readability.FromReader(strings.NewReader(doc), u)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		title, text = article.Title, article.TextContent
		if article.Excerpt != "" && !strings.Contains(text, article.Excerpt) {
			text = article.Excerpt + "\n\n" + text
		}
	} else {
		text = doc
	}

	text = html.UnescapeString(r.policy.Sanitize(text))
	text = strings.TrimSpace(blankRuns.ReplaceAllString(text, "\n\n"))
	if r.MaxChars > 0 && len(text) > r.MaxChars {
		text = text[:r.MaxChars] + "\n... (content truncated)"
	}
	return strings.TrimSpace(title), text
}
