package prompts

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/webpilot/pkg/agent/controller"
	"github.com/entrhq/webpilot/pkg/browser"
)

func testActions(t *testing.T) []controller.Action {
	t.Helper()
	c, err := controller.New(controller.Options{})
	require.NoError(t, err)
	return c.Actions()
}

func TestFormatActions(t *testing.T) {
	formatted := FormatActions(testActions(t))

	assert.Contains(t, formatted, `- click_element: Click the interactive element with the given index. Parameters: {"index":"integer"}`)
	assert.Contains(t, formatted, "- go_back: Go back to the previous page. Parameters: {}")
	assert.Equal(t, 13, strings.Count(formatted, "\n"))
}

func TestBuild(t *testing.T) {
	pb := NewPromptBuilder().
		WithActions(testActions(t)).
		WithMaxActions(4).
		WithCustomInstructions("Prefer English pages.")
	pb.now = func() time.Time { return time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC) }

	prompt := pb.Build()

	sections := []string{"<role>", "Current date and time: 2025-03-01 09:30", "<input_format>",
		"<response_format>", "<available_actions>", "<rules>", "<custom_instructions>"}
	last := -1
	for _, s := range sections {
		idx := strings.Index(prompt, s)
		require.GreaterOrEqual(t, idx, 0, "missing %s", s)
		assert.Greater(t, idx, last, "%s out of order", s)
		last = idx
	}
	assert.Contains(t, prompt, "at most 4.")
	assert.Contains(t, prompt, "Prefer English pages.")
}

func TestBuildWithoutActions(t *testing.T) {
	prompt := NewPromptBuilder().WithMaxActions(0).Build()

	assert.NotContains(t, prompt, "<available_actions>")
	assert.NotContains(t, prompt, "<custom_instructions>")
	assert.Contains(t, prompt, "at most 10.")
}

func TestTaskMessage(t *testing.T) {
	assert.True(t, strings.HasPrefix(TaskMessage("find the weather"), `Your ultimate task is: "find the weather".`))
}

func TestStateMessage(t *testing.T) {
	state := &browser.State{
		URL:   "https://example.com",
		Title: "Example",
		Tabs:  []browser.Tab{{ID: 0, URL: "https://example.com", Title: "Example"}},
		Elements: []browser.Element{
			{Index: 0, Tag: "a", Text: "More information", Href: "https://iana.org"},
		},
		PixelsBelow: 800,
	}

	msg := StateMessage(state, []ActionFeedback{
		{Content: "🔗  Navigated to https://example.com"},
		{Error: "element detached"},
	}, 2, 100)

	assert.True(t, strings.HasPrefix(msg, "Current step: 2/100\n"))
	assert.Contains(t, msg, "Current url: https://example.com")
	assert.Contains(t, msg, `- TabID=0 url=https://example.com title="Example"`)
	assert.Contains(t, msg, "[Start of page]")
	assert.Contains(t, msg, `[0]<a href="https://iana.org">More information</a>`)
	assert.Contains(t, msg, "... 800 pixels below - scroll down to see more ...")
	assert.Contains(t, msg, "Action result 1/2: 🔗  Navigated to https://example.com")
	assert.Contains(t, msg, "Action error 2/2: ...element detached")
}

func TestStateMessageEmptyPage(t *testing.T) {
	msg := StateMessage(&browser.State{URL: browser.BlankURL, PixelsAbove: 100}, nil, 1, 5)

	assert.Contains(t, msg, "(no interactive elements)")
	assert.Contains(t, msg, "... 100 pixels above - scroll up to see more ...")
	assert.True(t, strings.HasSuffix(msg, "[End of page]"))
}
