package agent

import (
	"github.com/entrhq/webpilot/pkg/types"
)

// messageOverhead approximates role and delimiter tokens per message.
const messageOverhead = 4

const truncatedMarker = "\n... [truncated]"

// MessageManager holds the conversation sent to the model each step: the
// pinned system and task messages, the running history, and the ephemeral
// state message for the current step.
type MessageManager struct {
	system    *types.Message
	task      *types.Message
	history   []*types.Message
	state     *types.Message
	maxTokens int
	count     func(string) int
}

// NewMessageManager creates a manager. maxTokens <= 0 disables trimming.
func NewMessageManager(systemPrompt, taskMessage string, maxTokens int, count func(string) int) *MessageManager {
	return &MessageManager{
		system:    types.NewSystemMessage(systemPrompt),
		task:      types.NewUserMessage(taskMessage),
		maxTokens: maxTokens,
		count:     count,
	}
}

// AddState sets the state message for this step.
func (m *MessageManager) AddState(content string) {
	m.state = types.NewUserMessage(content)
}

// RemoveState drops the state message once the model has seen it.
func (m *MessageManager) RemoveState() {
	m.state = nil
}

// AddAssistant records a model reply.
func (m *MessageManager) AddAssistant(content string) {
	m.history = append(m.history, types.NewAssistantMessage(content))
}

// AddUser records a persistent user message, e.g. an action result.
func (m *MessageManager) AddUser(content string) {
	m.history = append(m.history, types.NewUserMessage(content))
}

// Len returns the number of history messages kept.
func (m *MessageManager) Len() int {
	return len(m.history)
}

// Messages returns the conversation trimmed to the token budget. Oldest
// history goes first; if that is not enough the state message is cut.
func (m *MessageManager) Messages() []*types.Message {
	if m.maxTokens > 0 {
		for len(m.history) > 0 && m.tokens() > m.maxTokens {
			m.history = m.history[1:]
		}
	}

	out := make([]*types.Message, 0, len(m.history)+3)
	out = append(out, m.system, m.task)
	out = append(out, m.history...)

	if m.state != nil {
		state := m.state
		if m.maxTokens > 0 {
			if over := m.tokens() - m.maxTokens; over > 0 {
				state = types.NewUserMessage(m.truncate(state.Content, over))
			}
		}
		out = append(out, state)
	}
	return out
}

// Tokens returns the current conversation size.
func (m *MessageManager) Tokens() int {
	return m.tokens()
}

func (m *MessageManager) tokens() int {
	total := m.msgTokens(m.system) + m.msgTokens(m.task)
	for _, msg := range m.history {
		total += m.msgTokens(msg)
	}
	if m.state != nil {
		total += m.msgTokens(m.state)
	}
	return total
}

func (m *MessageManager) msgTokens(msg *types.Message) int {
	return messageOverhead + m.count(msg.Content)
}

// truncate removes roughly over tokens from the end of content, assuming a
// uniform characters-per-token ratio.
func (m *MessageManager) truncate(content string, over int) string {
	total := m.count(content)
	if total <= 0 {
		return content
	}
	keep := total - over
	if keep <= 0 {
		return truncatedMarker
	}
	cut := len(content) * keep / total
	// back off to a rune boundary
	for cut > 0 && cut < len(content) && content[cut]&0xC0 == 0x80 {
		cut--
	}
	return content[:cut] + truncatedMarker
}
