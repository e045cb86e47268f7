package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/webpilot/pkg/agent/controller"
	"github.com/entrhq/webpilot/pkg/browser"
)

// DefaultMaxActions is the action batch size advertised in the system prompt.
const DefaultMaxActions = 10

// PromptBuilder constructs the system prompt for the agent loop
type PromptBuilder struct {
	actions            []controller.Action
	maxActions         int
	customInstructions string
	now                func() time.Time
}

// NewPromptBuilder creates a new prompt builder with default settings
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		maxActions: DefaultMaxActions,
		now:        time.Now,
	}
}

// WithActions sets the actions listed in the prompt
func (pb *PromptBuilder) WithActions(actions []controller.Action) *PromptBuilder {
	pb.actions = actions
	return pb
}

// WithMaxActions sets how many actions the model may return per step
func (pb *PromptBuilder) WithMaxActions(n int) *PromptBuilder {
	if n > 0 {
		pb.maxActions = n
	}
	return pb
}

// WithCustomInstructions appends operator instructions after the rules
func (pb *PromptBuilder) WithCustomInstructions(instructions string) *PromptBuilder {
	pb.customInstructions = instructions
	return pb
}

// Build constructs the complete system prompt by assembling all sections
func (pb *PromptBuilder) Build() string {
	var builder strings.Builder

	builder.WriteString(RolePrompt)
	builder.WriteString("\n\n")

	builder.WriteString(fmt.Sprintf("Current date and time: %s\n\n", pb.now().Format("2006-01-02 15:04")))

	builder.WriteString(InputFormatPrompt)
	builder.WriteString("\n\n")

	builder.WriteString(ResponseFormatPrompt)
	builder.WriteString("\n\n")

	if len(pb.actions) > 0 {
		builder.WriteString("<available_actions>\n")
		builder.WriteString(FormatActions(pb.actions))
		builder.WriteString("</available_actions>\n\n")
	}

	builder.WriteString(fmt.Sprintf(RulesPrompt, pb.maxActions))

	if pb.customInstructions != "" {
		builder.WriteString("\n\n<custom_instructions>\n")
		builder.WriteString(pb.customInstructions)
		builder.WriteString("\n</custom_instructions>")
	}

	return builder.String()
}

// FormatActions renders one line per action: name, description and parameters.
func FormatActions(actions []controller.Action) string {
	var b strings.Builder
	for _, a := range actions {
		params := "{}"
		if props, ok := a.Schema()["properties"].(map[string]any); ok && len(props) > 0 {
			simple := make(map[string]string, len(props))
			for name, p := range props {
				if pm, ok := p.(map[string]any); ok {
					if t, ok := pm["type"].(string); ok {
						simple[name] = t
						continue
					}
				}
				simple[name] = "any"
			}
			if data, err := json.Marshal(simple); err == nil {
				params = string(data)
			}
		}
		fmt.Fprintf(&b, "- %s: %s Parameters: %s\n", a.Name(), a.Description(), params)
	}
	return b.String()
}

// TaskMessage introduces the task. It stays pinned in the conversation.
func TaskMessage(task string) string {
	return fmt.Sprintf("Your ultimate task is: %q. If you achieved your ultimate task, stop everything and use the done action in the next step to complete the task. If not, continue as usual.", task)
}

// ActionFeedback is what the model is told about one executed action.
type ActionFeedback struct {
	Content string
	Error   string
}

// StateMessage renders the browser state for one step, followed by the results
// of the previous step's actions.
func StateMessage(state *browser.State, feedback []ActionFeedback, step, maxSteps int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Current step: %d/%d\n\n", step, maxSteps)
	fmt.Fprintf(&b, "Current url: %s\n", state.URL)
	if state.Title != "" {
		fmt.Fprintf(&b, "Current page title: %s\n", state.Title)
	}

	b.WriteString("Available tabs:\n")
	for _, tab := range state.Tabs {
		fmt.Fprintf(&b, "- TabID=%d url=%s title=%q\n", tab.ID, tab.URL, tab.Title)
	}

	b.WriteString("Interactive elements from current page view:\n")
	if state.PixelsAbove > 0 {
		fmt.Fprintf(&b, "... %d pixels above - scroll up to see more ...\n", state.PixelsAbove)
	} else {
		b.WriteString("[Start of page]\n")
	}
	b.WriteString(state.ElementsText())
	b.WriteString("\n")
	if state.PixelsBelow > 0 {
		fmt.Fprintf(&b, "... %d pixels below - scroll down to see more ...\n", state.PixelsBelow)
	} else {
		b.WriteString("[End of page]\n")
	}

	for i, f := range feedback {
		if f.Content != "" {
			fmt.Fprintf(&b, "\nAction result %d/%d: %s", i+1, len(feedback), f.Content)
		}
		if f.Error != "" {
			fmt.Fprintf(&b, "\nAction error %d/%d: ...%s", i+1, len(feedback), tail(f.Error, 400))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
