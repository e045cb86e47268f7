package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/webpilot/pkg/types"
)

// one token per character keeps the arithmetic readable
func charCount(s string) int { return len(s) }

func TestMessagesOrder(t *testing.T) {
	m := NewMessageManager("sys", "task", 0, charCount)
	m.AddAssistant("reply")
	m.AddUser("Action result: ok")
	m.AddState("state")

	msgs := m.Messages()
	require.Len(t, msgs, 5)
	assert.Equal(t, types.RoleSystem, msgs[0].Role)
	assert.Equal(t, "task", msgs[1].Content)
	assert.Equal(t, types.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "Action result: ok", msgs[3].Content)
	assert.Equal(t, "state", msgs[4].Content)

	m.RemoveState()
	assert.Len(t, m.Messages(), 4)
}

func TestMessagesDropOldestHistoryOverBudget(t *testing.T) {
	// system and task cost 4+3 and 4+4
	m := NewMessageManager("sys", "task", 40, charCount)
	m.AddAssistant("0123456789") // 14
	m.AddAssistant("abcdefghij") // 14
	m.AddState("state")          // 9

	msgs := m.Messages()

	require.Len(t, msgs, 4)
	assert.Equal(t, "abcdefghij", msgs[2].Content)
	assert.Equal(t, 1, m.Len())
	assert.LessOrEqual(t, m.Tokens(), 40)
}

func TestMessagesTruncateStateWhenHistoryIsGone(t *testing.T) {
	m := NewMessageManager("sys", "task", 40, charCount)
	m.AddState(strings.Repeat("x", 100))

	msgs := m.Messages()

	require.Len(t, msgs, 3)
	state := msgs[2].Content
	assert.True(t, strings.HasSuffix(state, truncatedMarker))
	assert.Less(t, len(state), 100)
}

func TestMessagesNoBudgetKeepsEverything(t *testing.T) {
	m := NewMessageManager("sys", "task", 0, charCount)
	for i := 0; i < 50; i++ {
		m.AddUser(strings.Repeat("y", 1000))
	}
	assert.Len(t, m.Messages(), 52)
}
