package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/entrhq/webpilot/pkg/agent/controller"
)

// ErrNoJSON is returned when a model reply contains no JSON object.
var ErrNoJSON = errors.New("model output contains no JSON object")

// CurrentState is the model's self-assessment for a step.
type CurrentState struct {
	EvaluationPreviousGoal string `json:"evaluation_previous_goal"`
	Memory                 string `json:"memory"`
	NextGoal               string `json:"next_goal"`
}

// Output is one parsed model reply.
type Output struct {
	CurrentState CurrentState            `json:"current_state"`
	Actions      []controller.ActionCall `json:"action"`
}

var fenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ParseOutput extracts the step output from a model reply. Markdown code
// fences and prose around the JSON object are tolerated.
func ParseOutput(text string) (*Output, error) {
	candidate := strings.TrimSpace(text)
	if m := fenceRegex.FindStringSubmatch(candidate); m != nil {
		candidate = strings.TrimSpace(m[1])
	}

	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start < 0 || end <= start {
		return nil, ErrNoJSON
	}
	candidate = candidate[start : end+1]

	var out Output
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		return nil, fmt.Errorf("invalid model output: %w", err)
	}
	if len(out.Actions) == 0 {
		return nil, fmt.Errorf("invalid model output: no actions")
	}
	return &out, nil
}

// EvalEmoji marks the evaluation line the way operators expect to scan it.
func (s CurrentState) EvalEmoji() string {
	lower := strings.ToLower(s.EvaluationPreviousGoal)
	switch {
	case strings.Contains(lower, "success"):
		return "👍"
	case strings.Contains(lower, "failed"):
		return "⚠"
	default:
		return "🤷"
	}
}
