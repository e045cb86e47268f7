// Package snapshot periodically captures the page the agent is working on
// and emits it as stream events.
package snapshot

import (
	"context"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/logging"
	"github.com/entrhq/webpilot/pkg/metrics"
	"github.com/entrhq/webpilot/pkg/types"
)

const (
	// DefaultInterval is the capture period.
	DefaultInterval = 500 * time.Millisecond

	// DefaultQuality is the JPEG quality of captured frames.
	DefaultQuality = 70
)

// Skip reasons recorded in metrics.
const (
	skipNoPage  = "no_page"
	skipCapture = "capture_failed"
)

// PageSource exposes the pages of the current browser session. Pages
// returns nil when no session exists.
type PageSource interface {
	Pages() []playwright.Page
}

// Emitter receives captured frames.
type Emitter func(types.Event)

// Options configures a Poller.
type Options struct {
	Interval time.Duration
	Quality  int
	Logger   *logging.Logger
}

// Poller captures frames from a PageSource.
type Poller struct {
	source   PageSource
	emit     Emitter
	interval time.Duration
	quality  int
	log      *logging.Logger
}

// New creates a poller.
func New(source PageSource, emit Emitter, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	if opts.Logger == nil {
		opts.Logger = logging.MustLogger("snapshot")
	}
	return &Poller{
		source:   source,
		emit:     emit,
		interval: opts.Interval,
		quality:  opts.Quality,
		log:      opts.Logger,
	}
}

// RunWhile captures a frame every interval until active reports false or ctx
// ends. Ticks with nothing to capture, or whose capture fails, are skipped.
func (p *Poller) RunWhile(ctx context.Context, active func() bool) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for active() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !active() {
			return
		}
		p.tick()
	}
}

func (p *Poller) tick() {
	page := SelectPage(p.source.Pages())
	if page == nil {
		metrics.FramesSkipped.WithLabelValues(skipNoPage).Inc()
		return
	}

	frame, err := Capture(page, p.quality)
	if err != nil {
		metrics.FramesSkipped.WithLabelValues(skipCapture).Inc()
		p.log.Debugf("Snapshot skipped: %v", err)
		return
	}

	metrics.FramesCaptured.Inc()
	p.emit(types.NewStreamEvent(frame))
}

// SelectPage returns the most recently opened page that is neither blank nor
// closed, or nil.
func SelectPage(pages []playwright.Page) playwright.Page {
	for i := len(pages) - 1; i >= 0; i-- {
		page := pages[i]
		if page == nil || page.IsClosed() || page.URL() == browser.BlankURL {
			continue
		}
		return page
	}
	return nil
}

// Capture takes a JPEG screenshot of page.
func Capture(page playwright.Page, quality int) ([]byte, error) {
	return page.Screenshot(playwright.PageScreenshotOptions{
		Type:    playwright.ScreenshotTypeJpeg,
		Quality: playwright.Int(quality),
	})
}
