package snapshot

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/browser/browsertest"
	"github.com/entrhq/webpilot/pkg/logging"
	"github.com/entrhq/webpilot/pkg/types"
)

type staticSource struct {
	pages []playwright.Page
}

func (s staticSource) Pages() []playwright.Page { return s.pages }

type frames struct {
	mu     sync.Mutex
	events []types.Event
}

func (f *frames) emit(e types.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *frames) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func pages(ps ...*browsertest.Page) []playwright.Page {
	out := make([]playwright.Page, len(ps))
	for i, p := range ps {
		out[i] = p
	}
	return out
}

func quietOptions() Options {
	return Options{Interval: 5 * time.Millisecond, Logger: logging.NewWriterLogger("snapshot", io.Discard)}
}

func TestSelectPage(t *testing.T) {
	blank := browsertest.NewPage(browser.BlankURL)
	first := browsertest.NewPage("https://a.example")
	second := browsertest.NewPage("https://b.example")

	assert.Nil(t, SelectPage(nil))
	assert.Nil(t, SelectPage(pages(blank)))
	assert.Same(t, second, SelectPage(pages(first, second, blank)))

	second.SetClosed(true)
	assert.Same(t, first, SelectPage(pages(first, second, blank)))
}

func TestCaptureUsesJPEG(t *testing.T) {
	page := browsertest.NewPage("https://example.com")
	page.ScreenshotData = []byte{0xff, 0xd8}

	data, err := Capture(page, 70)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8}, data)

	require.Len(t, page.ScreenshotOpts, 1)
	assert.Equal(t, playwright.ScreenshotTypeJpeg, page.ScreenshotOpts[0].Type)
	assert.Equal(t, 70, *page.ScreenshotOpts[0].Quality)
}

func TestRunWhileEmitsBase64Frames(t *testing.T) {
	page := browsertest.NewPage("https://example.com")
	page.ScreenshotData = []byte("jpeg-bytes")
	f := &frames{}
	p := New(staticSource{pages(page)}, f.emit, quietOptions())

	var ticks atomic.Int32
	p.RunWhile(context.Background(), func() bool { return ticks.Add(1) <= 6 })

	require.Greater(t, f.count(), 0)
	e := f.events[0]
	assert.Equal(t, types.EventTypeStream, e.Type)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("jpeg-bytes")), e.Text())
}

func TestRunWhileSkipsFailuresAndKeepsGoing(t *testing.T) {
	page := browsertest.NewPage("https://example.com")
	page.ScreenshotErr = errors.New("target closed")
	f := &frames{}
	p := New(staticSource{pages(page)}, f.emit, quietOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	p.RunWhile(ctx, func() bool { return true })

	assert.Zero(t, f.count())
	assert.Greater(t, page.Screenshots(), 1, "capture errors must not stop the poller")
}

func TestRunWhileSkipsWhenNoPage(t *testing.T) {
	f := &frames{}
	p := New(staticSource{}, f.emit, quietOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	p.RunWhile(ctx, func() bool { return true })

	assert.Zero(t, f.count())
}

func TestRunWhileReturnsImmediatelyWhenInactive(t *testing.T) {
	page := browsertest.NewPage("https://example.com")
	p := New(staticSource{pages(page)}, (&frames{}).emit, Options{Interval: time.Hour, Logger: logging.NewWriterLogger("snapshot", io.Discard)})

	done := make(chan struct{})
	go func() {
		p.RunWhile(context.Background(), func() bool { return false })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunWhile did not return")
	}
	assert.Zero(t, page.Screenshots())
}

func TestRunWhileStopsOnCancel(t *testing.T) {
	p := New(staticSource{}, (&frames{}).emit, Options{Interval: time.Hour, Logger: logging.NewWriterLogger("snapshot", io.Discard)})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		p.RunWhile(ctx, func() bool { return true })
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunWhile ignored cancellation")
	}
}

func TestNewDefaults(t *testing.T) {
	p := New(staticSource{}, nil, Options{Quality: 500})
	assert.Equal(t, DefaultInterval, p.interval)
	assert.Equal(t, DefaultQuality, p.quality)
}
