package browser

import (
	"fmt"
	"strings"
)

// Default values for various operations
const (
	DefaultTimeout        = 30000.0 // 30 seconds in milliseconds
	DefaultMaxLength      = 10000   // characters returned by ExtractContent
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultScrollPixels   = 600

	// BlankURL is the URL of a freshly opened tab.
	BlankURL = "about:blank"
)

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// LaunchOptions configures the browser for one run.
type LaunchOptions struct {
	// Headless hides the browser window. Runs are headed by default so the
	// operator can watch the agent.
	Headless bool

	// Viewport sets the context viewport; zero values use 1280x720.
	Viewport Viewport

	// Channel selects a branded browser such as "chrome"; empty uses bundled Chromium.
	Channel string

	// Timeout sets the default page timeout in milliseconds.
	Timeout float64
}

func (o LaunchOptions) withDefaults() LaunchOptions {
	if o.Viewport.Width <= 0 {
		o.Viewport.Width = DefaultViewportWidth
	}
	if o.Viewport.Height <= 0 {
		o.Viewport.Height = DefaultViewportHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// NavigateOptions configures page navigation behavior.
type NavigateOptions struct {
	// WaitUntil specifies when to consider navigation successful
	// Valid values: "load", "domcontentloaded", "networkidle"
	WaitUntil string

	// Timeout in milliseconds (0 means default)
	Timeout float64
}

// ExtractOptions configures content extraction.
type ExtractOptions struct {
	// MaxLength limits the extracted content length (characters)
	MaxLength int
}

// Element is an interactive element indexed on the current page.
type Element struct {
	Index       int    `json:"index"`
	Tag         string `json:"tag"`
	Text        string `json:"text"`
	Type        string `json:"type,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Href        string `json:"href,omitempty"`
	AriaLabel   string `json:"ariaLabel,omitempty"`
}

// String renders the element the way it is shown to the model:
// [3]<button aria-label="Search">Search</button>
func (e Element) String() string {
	var attrs strings.Builder
	for _, kv := range [][2]string{
		{"type", e.Type},
		{"placeholder", e.Placeholder},
		{"href", e.Href},
		{"aria-label", e.AriaLabel},
	} {
		if kv[1] != "" {
			fmt.Fprintf(&attrs, " %s=%q", kv[0], kv[1])
		}
	}
	return fmt.Sprintf("[%d]<%s%s>%s</%s>", e.Index, e.Tag, attrs.String(), e.Text, e.Tag)
}

// Tab describes an open page.
type Tab struct {
	ID    int
	URL   string
	Title string
}

// State is a snapshot of the browser shown to the model each step.
type State struct {
	URL      string
	Title    string
	Tabs     []Tab
	Elements []Element

	// PixelsAbove and PixelsBelow tell the model whether scrolling reveals more.
	PixelsAbove int
	PixelsBelow int
}

// ElementsText renders the indexed elements one per line.
func (s *State) ElementsText() string {
	if len(s.Elements) == 0 {
		return "(no interactive elements)"
	}
	lines := make([]string, 0, len(s.Elements))
	for _, e := range s.Elements {
		lines = append(lines, e.String())
	}
	return strings.Join(lines, "\n")
}
