package browser

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
)

// LauncherOptions configures the Playwright driver.
type LauncherOptions struct {
	// Install downloads the driver and browsers before the first launch.
	Install bool

	// Output receives driver install/run output; nil discards it.
	Output io.Writer
}

// Launcher starts browsers for agent runs. The Playwright driver is started
// on first use and kept until Shutdown.
type Launcher struct {
	mu          sync.Mutex
	opts        LauncherOptions
	playwright  *playwright.Playwright
	initialized bool
}

// NewLauncher creates a launcher; no driver is started until Launch.
func NewLauncher(opts LauncherOptions) *Launcher {
	return &Launcher{opts: opts}
}

// initialize starts the Playwright driver. Callers hold l.mu.
func (l *Launcher) initialize() error {
	if l.initialized {
		return nil
	}

	out := l.opts.Output
	if out == nil {
		out = io.Discard
	}
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  out,
		Stderr:  out,
	}

	if l.opts.Install {
		if err := playwright.Install(runOpts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	l.playwright = pw
	l.initialized = true
	return nil
}

// Launch starts a browser and opens an isolated context with one blank page.
// On any failure the resources acquired so far are released.
func (l *Launcher) Launch(ctx context.Context, opts LaunchOptions) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	l.mu.Lock()
	if err := l.initialize(); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	pw := l.playwright
	l.mu.Unlock()

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.Channel != "" {
		launchOpts.Channel = playwright.String(opts.Channel)
	}
	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
	})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	bctx.SetDefaultTimeout(opts.Timeout)

	session := NewSession(browser, bctx)
	session.Headless = opts.Headless
	session.Viewport = opts.Viewport

	if _, err := bctx.NewPage(); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	return session, nil
}

// Shutdown stops the Playwright driver. Sessions must be closed first.
func (l *Launcher) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized || l.playwright == nil {
		return nil
	}
	l.initialized = false
	if err := l.playwright.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

// NewSession wraps an already created browser and context.
func NewSession(browser playwright.Browser, bctx playwright.BrowserContext) *Session {
	return &Session{
		ID:        uuid.New().String(),
		Browser:   browser,
		Context:   bctx,
		Viewport:  Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight},
		CreatedAt: time.Now(),
		active:    -1,
	}
}
