// Package parser separates reasoning blocks from reply text in streamed
// LLM output.
package parser

import (
	"strings"

	"github.com/entrhq/webpilot/pkg/llm"
)

// Reasoning models wrap their chain of thought in one of these tag pairs.
var (
	openTags  = map[string]bool{"<think>": true, "<thinking>": true}
	closeTags = map[string]bool{"</think>": true, "</thinking>": true}
)

// maxTagLen bounds how long a '<' run is buffered before it is treated as text.
const maxTagLen = len("</thinking>")

// ThinkingParser splits streamed content into thinking and message parts.
// It keeps state across chunks so tags split between chunks are recognised.
type ThinkingParser struct {
	buffer     strings.Builder
	tagBuffer  strings.Builder
	inThinking bool
	inTag      bool
}

// NewThinkingParser creates a new thinking parser.
func NewThinkingParser() *ThinkingParser {
	return &ThinkingParser{}
}

// Parse consumes one content chunk. Either return value may be nil.
func (p *ThinkingParser) Parse(content string) (thinkingChunk, messageChunk *llm.StreamChunk) {
	if content == "" {
		return nil, nil
	}

	for _, ch := range content {
		switch {
		case ch == '<':
			if p.inTag {
				// The earlier '<' did not open a tag.
				thinkingChunk, messageChunk = p.appendChunk(thinkingChunk, messageChunk, p.flushTagBuffer())
			}
			thinkingChunk, messageChunk = p.appendChunk(thinkingChunk, messageChunk, p.flushBuffer())
			p.inTag = true
			p.tagBuffer.WriteRune(ch)

		case ch == '>' && p.inTag:
			p.tagBuffer.WriteRune(ch)
			tag := p.tagBuffer.String()
			p.tagBuffer.Reset()
			p.inTag = false

			switch {
			case openTags[tag]:
				p.inThinking = true
			case closeTags[tag]:
				p.inThinking = false
			default:
				thinkingChunk, messageChunk = p.appendChunk(thinkingChunk, messageChunk, p.createChunk(tag))
			}

		case p.inTag:
			p.tagBuffer.WriteRune(ch)
			if p.tagBuffer.Len() > maxTagLen {
				thinkingChunk, messageChunk = p.appendChunk(thinkingChunk, messageChunk, p.flushTagBuffer())
			}

		default:
			p.buffer.WriteRune(ch)
		}
	}

	thinkingChunk, messageChunk = p.appendChunk(thinkingChunk, messageChunk, p.flushBuffer())
	return thinkingChunk, messageChunk
}

func (p *ThinkingParser) flushBuffer() *llm.StreamChunk {
	if p.buffer.Len() == 0 {
		return nil
	}
	text := p.buffer.String()
	p.buffer.Reset()
	return p.createChunk(text)
}

func (p *ThinkingParser) flushTagBuffer() *llm.StreamChunk {
	p.inTag = false
	if p.tagBuffer.Len() == 0 {
		return nil
	}
	text := p.tagBuffer.String()
	p.tagBuffer.Reset()
	return p.createChunk(text)
}

func (p *ThinkingParser) createChunk(text string) *llm.StreamChunk {
	if text == "" {
		return nil
	}
	if p.inThinking {
		return &llm.StreamChunk{Content: text, Type: llm.ContentTypeThinking}
	}
	return &llm.StreamChunk{Content: text, Type: llm.ContentTypeMessage}
}

func (p *ThinkingParser) appendChunk(thinkingChunk, messageChunk, newChunk *llm.StreamChunk) (*llm.StreamChunk, *llm.StreamChunk) {
	if newChunk == nil {
		return thinkingChunk, messageChunk
	}

	if newChunk.IsThinking() {
		if thinkingChunk == nil {
			return newChunk, messageChunk
		}
		thinkingChunk.Content += newChunk.Content
		return thinkingChunk, messageChunk
	}

	if messageChunk == nil {
		return thinkingChunk, newChunk
	}
	messageChunk.Content += newChunk.Content
	return thinkingChunk, messageChunk
}

// IsInThinking returns true if currently parsing thinking content.
func (p *ThinkingParser) IsInThinking() bool {
	return p.inThinking
}

// Flush returns content still buffered at end of stream.
func (p *ThinkingParser) Flush() (thinkingChunk, messageChunk *llm.StreamChunk) {
	if p.inTag {
		thinkingChunk, messageChunk = p.appendChunk(thinkingChunk, messageChunk, p.flushTagBuffer())
	}
	thinkingChunk, messageChunk = p.appendChunk(thinkingChunk, messageChunk, p.flushBuffer())
	return thinkingChunk, messageChunk
}

// Reset clears parser state for a new stream.
func (p *ThinkingParser) Reset() {
	p.buffer.Reset()
	p.tagBuffer.Reset()
	p.inThinking = false
	p.inTag = false
}
