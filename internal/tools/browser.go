package tools

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/rahul/helmsman/internal/action"
	"github.com/rahul/helmsman/internal/executor"
)

const (
	DefaultActionTimeout = 30 * time.Second
	DefaultSearchURL     = "https://duckduckgo.com/?q="
)

// searchBoxSelectors are tried in order when an input or search action
// names no element.
var searchBoxSelectors = []string{
	`input[type="search"]`,
	`input[name="q"]`,
	`input[name="query"]`,
	`input[name="search"]`,
	`input[aria-label*="earch"]`,
	`input[placeholder*="earch"]`,
	`textarea[name="q"]`,
	`input[type="text"]`,
}

// elementsJS summarizes the interactive elements of the page, one per line.
const elementsJS = `(() => {
  const out = [];
  const els = document.querySelectorAll('a[href], button, input, select, textarea, [role="button"]');
  for (const el of els) {
    if (out.length >= 60) break;
    const r = el.getBoundingClientRect();
    if (r.width === 0 || r.height === 0) continue;
    const tag = el.tagName.toLowerCase();
    const label = (el.innerText || el.value || el.placeholder || el.getAttribute('aria-label') || '').trim().replace(/\s+/g, ' ').slice(0, 80);
    let sel = tag;
    if (el.id) sel += '#' + el.id;
    else if (el.name) sel += '[name="' + el.name + '"]';
    out.push(tag + ' "' + label + '" ' + sel);
  }
  return out.join('\n');
})()`

type BrowserConfig struct {
	Headless      bool
	ActionTimeout time.Duration
	ScreenshotDir string
	SearchURL     string
}

// Browser drives one Chrome page through chromedp. It implements
// executor.Browser. The browser is started on first use and restarted if
// it went away.
type Browser struct {
	cfg    BrowserConfig
	reader *PageReader
	logger *zap.Logger

	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func NewBrowser(cfg BrowserConfig, logger *zap.Logger) *Browser {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultActionTimeout
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = DefaultSearchURL
	}
	if cfg.ScreenshotDir != "" {
		if dir, err := homedir.Expand(cfg.ScreenshotDir); err == nil {
			cfg.ScreenshotDir = dir
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{cfg: cfg, reader: NewPageReader(), logger: logger.Named("browser")}
}

func (b *Browser) start() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.cleanup()
		default:
			return b.browserCtx, nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)
	if err := chromedp.Run(b.browserCtx); err != nil {
		b.cleanup()
		return nil, err
	}
	b.logger.Info("Browser started", zap.Bool("headless", b.cfg.Headless))
	return b.browserCtx, nil
}

func (b *Browser) cleanup() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.allocCtx = nil
}

// Close shuts the browser down.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanup()
}

// run executes actions on the page with the action timeout. Cancelling ctx
// cancels the actions but leaves the browser running.
func (b *Browser) run(ctx context.Context, label string, actions ...chromedp.Action) error {
	browserCtx, err := b.start()
	if err != nil {
		return fmt.Errorf("start browser: %v: %w", err, executor.ErrUnrecoverable)
	}

	actx, cancel := context.WithTimeout(browserCtx, b.cfg.ActionTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	b.screenshot(actx, label, "before")
	err = chromedp.Run(actx, actions...)
	if err == nil {
		b.screenshot(actx, label, "after")
	}
	return classifyErr(browserCtx, err)
}

// classifyErr marks driver-level failures as unrecoverable and deadline
// expiry as a timeout.
func classifyErr(browserCtx context.Context, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case browserCtx.Err() != nil,
		errors.Is(err, chromedp.ErrInvalidContext),
		errors.Is(err, chromedp.ErrChannelClosed),
		strings.Contains(msg, "net::ERR_"),
		strings.Contains(msg, "target closed"),
		strings.Contains(msg, "websocket"):
		return fmt.Errorf("%v: %w", err, executor.ErrUnrecoverable)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%v: %w", err, executor.ErrTimeout)
	}
	return err
}

func (b *Browser) screenshot(ctx context.Context, label, phase string) {
	if b.cfg.ScreenshotDir == "" {
		return
	}
	var buf []byte
	if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		b.logger.Debug("Screenshot failed", zap.Error(err))
		return
	}
	if err := os.MkdirAll(b.cfg.ScreenshotDir, 0o755); err != nil {
		b.logger.Warn("Failed to create screenshot directory", zap.Error(err))
		return
	}
	name := fmt.Sprintf("%s_%s_%s.png", time.Now().Format("20060102_150405.000"), label, phase)
	if err := os.WriteFile(filepath.Join(b.cfg.ScreenshotDir, name), buf, 0o644); err != nil {
		b.logger.Warn("Failed to save screenshot", zap.Error(err))
	}
}

func (b *Browser) Navigate(ctx context.Context, target string) (string, error) {
	err := b.run(ctx, action.Navigate,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Navigated to %s", target), nil
}

// Search types query into selector, or into a search box on the current
// page. Without either it opens the configured search engine.
func (b *Browser) Search(ctx context.Context, query, selector string) (string, error) {
	if selector == "" {
		found, err := b.findSearchBox(ctx)
		if err != nil {
			return "", err
		}
		selector = found
	}
	if selector == "" {
		target := b.cfg.SearchURL + url.QueryEscape(query)
		if _, err := b.Navigate(ctx, target); err != nil {
			return "", err
		}
		return fmt.Sprintf("Searched for %q at %s", query, target), nil
	}

	err := b.run(ctx, action.Search,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, query+kb.Enter, chromedp.ByQuery),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Searched for %q using %s", query, selector), nil
}

func (b *Browser) Click(ctx context.Context, selector, selectorType string) (string, error) {
	sel, by := locate(selector, selectorType)
	err := b.run(ctx, action.Click,
		chromedp.WaitVisible(sel, by),
		chromedp.Click(sel, by),
	)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Clicked %s", selector), nil
}

// FillInput types value into selector. Without a selector the first search
// box on the page is used and Enter is pressed.
func (b *Browser) FillInput(ctx context.Context, selector, value string) (string, error) {
	submit := ""
	if selector == "" {
		found, err := b.findSearchBox(ctx)
		if err != nil {
			return "", err
		}
		if found == "" {
			return "", errors.New("no input field found on page")
		}
		selector, submit = found, kb.Enter
	}

	err := b.run(ctx, action.Input,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, value+submit, chromedp.ByQuery),
	)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Typed into %s", selector), nil
}

func (b *Browser) Scroll(ctx context.Context, direction string, distance int) (string, error) {
	var js string
	switch direction {
	case "up":
		js = fmt.Sprintf("window.scrollBy(0, -%d)", distance)
	case "top":
		js = "window.scrollTo(0, 0)"
	case "bottom":
		js = "window.scrollTo(0, document.body.scrollHeight)"
	default:
		js = fmt.Sprintf("window.scrollBy(0, %d)", distance)
	}
	if err := b.run(ctx, action.Scroll, chromedp.Evaluate(js, nil)); err != nil {
		return "", err
	}
	return fmt.Sprintf("Scrolled %s %dpx", direction, distance), nil
}

func (b *Browser) Wait(ctx context.Context, d time.Duration) (string, error) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if err := b.run(ctx, action.Wait, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return "", err
	}
	return fmt.Sprintf("Waited %s", d), nil
}

// CaptureState snapshots the page: location, title, readable text and a
// summary of interactive elements.
func (b *Browser) CaptureState(ctx context.Context) (action.EnvironmentState, error) {
	var location, title, doc, elements string
	err := b.run(ctx, "capture",
		chromedp.Location(&location),
		chromedp.Title(&title),
		chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			doc, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		}),
		chromedp.Evaluate(elementsJS, &elements),
	)
	if err != nil {
		return action.EnvironmentState{}, err
	}

	readTitle, text := b.reader.Read(doc, location)
	if title == "" {
		title = readTitle
	}
	return action.EnvironmentState{
		URL:        location,
		Title:      title,
		Content:    text,
		Elements:   elements,
		CapturedAt: time.Now(),
	}, nil
}

// findSearchBox returns the first visible search-like input, or "" if the
// page has none.
func (b *Browser) findSearchBox(ctx context.Context) (string, error) {
	var found string
	js := fmt.Sprintf(`(() => {
  for (const s of %s) {
    const el = document.querySelector(s);
    if (el && el.offsetParent !== null) return s;
  }
  return "";
})()`, jsArray(searchBoxSelectors))
	if err := b.run(ctx, "find_search", chromedp.Evaluate(js, &found)); err != nil {
		return "", err
	}
	return found, nil
}

// locate turns a selector and its type into a chromedp query.
func locate(selector, selectorType string) (string, chromedp.QueryOption) {
	switch selectorType {
	case "xpath":
		return selector, chromedp.BySearch
	case "text":
		lit := xpathLiteral(selector)
		return fmt.Sprintf(`//a[contains(normalize-space(.), %[1]s)] | //button[contains(normalize-space(.), %[1]s)] | //*[@role="button" and contains(normalize-space(.), %[1]s)] | //input[@value=%[1]s]`, lit), chromedp.BySearch
	}
	return selector, chromedp.ByQuery
}

// xpathLiteral quotes s for use in an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	return `concat("` + strings.Join(parts, `", '"', "`) + `")`
}

func jsArray(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
