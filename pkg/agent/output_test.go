package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		actions []string
		wantErr string
	}{
		{
			name:    "plain json",
			input:   `{"current_state": {"evaluation_previous_goal": "Success", "memory": "m", "next_goal": "g"}, "action": [{"go_back": {}}]}`,
			actions: []string{"go_back"},
		},
		{
			name:    "fenced with prose",
			input:   "Here is my plan:\n```json\n{\"current_state\": {}, \"action\": [{\"click_element\": {\"index\": 1}}, {\"done\": {\"text\": \"x\"}}]}\n```\nGood luck.",
			actions: []string{"click_element", "done"},
		},
		{
			name:    "surrounding prose without fence",
			input:   `Sure. {"current_state": {}, "action": [{"wait": {}}]} Done.`,
			actions: []string{"wait"},
		},
		{name: "no json", input: "I will click the button", wantErr: ErrNoJSON.Error()},
		{name: "broken json", input: `{"action": [`, wantErr: "model output contains no JSON object"},
		{name: "invalid json", input: `{"action": oops}`, wantErr: "invalid model output"},
		{name: "no actions", input: `{"current_state": {}, "action": []}`, wantErr: "no actions"},
		{name: "multi-key action", input: `{"action": [{"a": {}, "b": {}}]}`, wantErr: "exactly one key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ParseOutput(tt.input)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			var names []string
			for _, a := range out.Actions {
				names = append(names, a.Name)
			}
			assert.Equal(t, tt.actions, names)
		})
	}
}

func TestEvalEmoji(t *testing.T) {
	assert.Equal(t, "👍", CurrentState{EvaluationPreviousGoal: "Success - page loaded"}.EvalEmoji())
	assert.Equal(t, "⚠", CurrentState{EvaluationPreviousGoal: "Failed - element missing"}.EvalEmoji())
	assert.Equal(t, "🤷", CurrentState{EvaluationPreviousGoal: "Unknown"}.EvalEmoji())
}
