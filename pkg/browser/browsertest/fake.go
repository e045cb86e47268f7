// Package browsertest provides in-memory Playwright fakes for tests that
// exercise browser sessions without launching a real browser.
//
// Each fake embeds the Playwright interface it stands in for; calling a
// method the fake does not override panics, which keeps tests honest about
// what they touch.
package browsertest

import (
	"errors"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// Page is a fake playwright.Page.
type Page struct {
	playwright.Page

	mu      sync.Mutex
	url     string
	title   string
	html    string
	closed  bool
	history []string

	// Elements is returned by the element indexing script.
	Elements []map[string]any

	// ScreenshotData and ScreenshotErr control Screenshot.
	ScreenshotData []byte
	ScreenshotErr  error

	// ClickErr, FillErr and GotoErr make the corresponding calls fail.
	ClickErr error
	FillErr  error
	GotoErr  error

	// OnClick runs after a successful Click, e.g. to open a popup tab.
	OnClick func()

	Clicks          []string
	Fills           map[string]string
	Keys            []string
	Scrolls         []int
	ScreenshotCalls int
	ScreenshotOpts  []playwright.PageScreenshotOptions
}

// NewPage returns a fake page showing url.
func NewPage(url string) *Page {
	return &Page{url: url, Fills: map[string]string{}}
}

// SetPageContent sets the page's title and HTML.
func (p *Page) SetPageContent(title, html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.title = title
	p.html = html
}

// SetURL changes the current URL without recording history.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// SetClosed marks the page closed.
func (p *Page) SetClosed(closed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = closed
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) Title() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

func (p *Page) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *Page) Goto(url string, _ ...playwright.PageGotoOptions) (playwright.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.GotoErr != nil {
		return nil, p.GotoErr
	}
	p.history = append(p.history, p.url)
	p.url = url
	return nil, nil
}

func (p *Page) GoBack(_ ...playwright.PageGoBackOptions) (playwright.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.history) == 0 {
		return nil, nil
	}
	p.url = p.history[len(p.history)-1]
	p.history = p.history[:len(p.history)-1]
	return nil, nil
}

func (p *Page) Click(selector string, _ ...playwright.PageClickOptions) error {
	p.mu.Lock()
	if p.ClickErr != nil {
		p.mu.Unlock()
		return p.ClickErr
	}
	p.Clicks = append(p.Clicks, selector)
	hook := p.OnClick
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (p *Page) Fill(selector, value string, _ ...playwright.PageFillOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FillErr != nil {
		return p.FillErr
	}
	p.Fills[selector] = value
	return nil
}

func (p *Page) BringToFront() error {
	return nil
}

func (p *Page) Keyboard() playwright.Keyboard {
	return &keyboard{page: p}
}

// Evaluate recognises the element indexing and scroll scripts by shape.
func (p *Page) Evaluate(expression string, args ...interface{}) (interface{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case strings.HasPrefix(expression, "(attr)"):
		out := make([]any, len(p.Elements))
		for i, e := range p.Elements {
			out[i] = e
		}
		return out, nil
	case strings.Contains(expression, "scrollHeight"):
		return map[string]any{"above": 0, "below": 0}, nil
	case strings.Contains(expression, "scrollBy") && len(args) == 1:
		if dy, ok := args[0].(int); ok {
			p.Scrolls = append(p.Scrolls, dy)
		}
		return nil, nil
	}
	return nil, nil
}

func (p *Page) Screenshot(options ...playwright.PageScreenshotOptions) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ScreenshotCalls++
	p.ScreenshotOpts = append(p.ScreenshotOpts, options...)
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	return p.ScreenshotData, nil
}

// Screenshots returns the number of Screenshot calls.
func (p *Page) Screenshots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ScreenshotCalls
}

type keyboard struct {
	playwright.Keyboard
	page *Page
}

func (k *keyboard) Press(key string, _ ...playwright.KeyboardPressOptions) error {
	k.page.mu.Lock()
	defer k.page.mu.Unlock()
	k.page.Keys = append(k.page.Keys, key)
	return nil
}

// Context is a fake playwright.BrowserContext.
type Context struct {
	playwright.BrowserContext

	mu         sync.Mutex
	pages      []*Page
	closeCalls int

	CloseErr   error
	NewPageErr error
}

// NewContext returns a fake context holding pages.
func NewContext(pages ...*Page) *Context {
	return &Context{pages: pages}
}

func (c *Context) Pages() []playwright.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]playwright.Page, len(c.pages))
	for i, p := range c.pages {
		out[i] = p
	}
	return out
}

// AddPage appends a page, as if the site opened a new tab.
func (c *Context) AddPage(p *Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages = append(c.pages, p)
}

func (c *Context) NewPage() (playwright.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.NewPageErr != nil {
		return nil, c.NewPageErr
	}
	p := NewPage("about:blank")
	c.pages = append(c.pages, p)
	return p, nil
}

func (c *Context) SetDefaultTimeout(float64) {}

func (c *Context) Close(_ ...playwright.BrowserContextCloseOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	return c.CloseErr
}

// CloseCalls reports how many times Close was called.
func (c *Context) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// Browser is a fake playwright.Browser.
type Browser struct {
	playwright.Browser

	mu         sync.Mutex
	closeCalls int

	CloseErr error
}

// NewBrowser returns a fake browser.
func NewBrowser() *Browser {
	return &Browser{}
}

func (b *Browser) Close(_ ...playwright.BrowserCloseOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeCalls++
	return b.CloseErr
}

// CloseCalls reports how many times Close was called.
func (b *Browser) CloseCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeCalls
}

// ErrBoom is a generic failure for injection.
var ErrBoom = errors.New("boom")
