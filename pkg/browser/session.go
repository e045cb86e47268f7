package browser

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// ErrSessionClosed is returned by page operations after Close.
var ErrSessionClosed = errors.New("browser session closed")

// Session is the browser and context owned by one agent run.
type Session struct {
	// ID uniquely identifies the session in logs.
	ID string

	// Browser is the Playwright browser instance
	Browser playwright.Browser

	// Context is the browser context (isolated session)
	Context playwright.BrowserContext

	Headless  bool
	Viewport  Viewport
	CreatedAt time.Time

	mu     sync.Mutex
	active int // index into Context.Pages(); -1 means newest
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// Close closes the context and then the browser. Both are attempted even if
// the first fails, each at most once; later calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		var errs []error
		if s.Context != nil {
			if err := s.Context.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close context: %w", err))
			}
		}
		if s.Browser != nil {
			if err := s.Browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close browser: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Pages returns the context's pages in creation order, or nil once closed.
func (s *Session) Pages() []playwright.Page {
	if s.Closed() || s.Context == nil {
		return nil
	}
	return s.Context.Pages()
}

// ActivePage returns the tab the agent is working in, opening one if every
// tab has been closed.
func (s *Session) ActivePage() (playwright.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}

	pages := s.Context.Pages()
	if s.active >= 0 && s.active < len(pages) && !pages[s.active].IsClosed() {
		return pages[s.active], nil
	}
	for i := len(pages) - 1; i >= 0; i-- {
		if !pages[i].IsClosed() {
			s.active = i
			return pages[i], nil
		}
	}

	page, err := s.Context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	s.active = len(s.Context.Pages()) - 1
	return page, nil
}

// Navigate navigates the active page to url.
func (s *Session) Navigate(url string, opts NavigateOptions) error {
	page, err := s.ActivePage()
	if err != nil {
		return err
	}
	return navigate(page, url, opts)
}

func navigate(page playwright.Page, url string, opts NavigateOptions) error {
	gotoOpts := playwright.PageGotoOptions{}

	waitUntil := playwright.WaitUntilState("domcontentloaded")
	if opts.WaitUntil != "" {
		waitUntil = playwright.WaitUntilState(opts.WaitUntil)
	}
	gotoOpts.WaitUntil = &waitUntil

	if opts.Timeout > 0 {
		gotoOpts.Timeout = &opts.Timeout
	}

	if _, err := page.Goto(url, gotoOpts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Click clicks the element with the given index. If the click opens a new
// tab, that tab becomes active.
func (s *Session) Click(index int) error {
	page, err := s.ActivePage()
	if err != nil {
		return err
	}

	before := len(s.Context.Pages())
	if err := page.Click(elementSelector(index)); err != nil {
		return fmt.Errorf("click on element %d failed: %w", index, err)
	}

	if after := len(s.Context.Pages()); after > before {
		s.mu.Lock()
		s.active = after - 1
		s.mu.Unlock()
	}
	return nil
}

// Fill replaces the value of the input with the given index.
func (s *Session) Fill(index int, value string) error {
	page, err := s.ActivePage()
	if err != nil {
		return err
	}
	if err := page.Fill(elementSelector(index), value); err != nil {
		return fmt.Errorf("input into element %d failed: %w", index, err)
	}
	return nil
}

// ExtractContent returns the active page as markdown-like text.
func (s *Session) ExtractContent(opts ExtractOptions) (string, error) {
	page, err := s.ActivePage()
	if err != nil {
		return "", err
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}

	raw, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}

	doc, err := htmlToText(raw, opts.MaxLength)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if doc.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", doc.Title)
	}
	b.WriteString(doc.Text)
	if doc.Truncated {
		fmt.Fprintf(&b, "\n\n[Content truncated at %d characters]", opts.MaxLength)
	}
	return b.String(), nil
}

// Scroll scrolls the active page vertically; negative pixels scroll up.
func (s *Session) Scroll(pixels int) error {
	page, err := s.ActivePage()
	if err != nil {
		return err
	}
	if _, err := page.Evaluate("(dy) => window.scrollBy(0, dy)", pixels); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// GoBack navigates the active page back in history.
func (s *Session) GoBack() error {
	page, err := s.ActivePage()
	if err != nil {
		return err
	}
	if _, err := page.GoBack(); err != nil {
		return fmt.Errorf("go back failed: %w", err)
	}
	return nil
}

// OpenTab opens url in a new tab and makes it active.
func (s *Session) OpenTab(url string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	page, err := s.Context.NewPage()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to open tab: %w", err)
	}
	s.active = len(s.Context.Pages()) - 1
	s.mu.Unlock()

	return navigate(page, url, NavigateOptions{})
}

// SwitchTab makes the tab with the given ID active.
func (s *Session) SwitchTab(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	pages := s.Context.Pages()
	if id < 0 || id >= len(pages) || pages[id].IsClosed() {
		return fmt.Errorf("no open tab with id %d", id)
	}
	s.active = id
	if err := pages[id].BringToFront(); err != nil {
		return fmt.Errorf("switch to tab %d failed: %w", id, err)
	}
	return nil
}

// SendKeys presses a key or chord (e.g. "Enter", "Control+a") on the active page.
func (s *Session) SendKeys(keys string) error {
	page, err := s.ActivePage()
	if err != nil {
		return err
	}
	if err := page.Keyboard().Press(keys); err != nil {
		return fmt.Errorf("send keys %q failed: %w", keys, err)
	}
	return nil
}

// State captures URL, title, tabs and indexed elements of the active page.
func (s *Session) State() (*State, error) {
	page, err := s.ActivePage()
	if err != nil {
		return nil, err
	}

	state := &State{URL: page.URL()}
	if title, err := page.Title(); err == nil {
		state.Title = title
	}

	for i, p := range s.Pages() {
		if p.IsClosed() {
			continue
		}
		title, _ := p.Title()
		state.Tabs = append(state.Tabs, Tab{ID: i, URL: p.URL(), Title: title})
	}

	if state.URL == BlankURL {
		return state, nil
	}

	elements, err := IndexElements(page)
	if err != nil {
		return nil, err
	}
	state.Elements = elements

	if info, err := readScrollInfo(page); err == nil {
		state.PixelsAbove = info.Above
		state.PixelsBelow = info.Below
	}
	return state, nil
}
