// Package oai carries the OpenAI-compatible wire types the gateway speaks:
// chat-completion requests and responses, streaming chunks, model listings,
// and the error envelope.
package oai

import (
	"encoding/json"
	"fmt"
)

// ChatRequest is the subset of the chat-completions request the gateway
// understands. Unknown body fields are collected into Extra and passed
// through to script models untouched.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Stream      bool
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Stop        any
	Extra       map[string]any
}

// UnmarshalJSON splits the body into the known fields and the Extra bag.
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	type known struct {
		Model       string    `json:"model"`
		Messages    []Message `json:"messages"`
		Stream      bool      `json:"stream"`
		Temperature *float64  `json:"temperature"`
		TopP        *float64  `json:"top_p"`
		MaxTokens   *int      `json:"max_tokens"`
		Stop        any       `json:"stop"`
	}
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, key := range []string{"model", "messages", "stream", "temperature", "top_p", "max_tokens", "stop"} {
		delete(all, key)
	}
	extra := make(map[string]any, len(all))
	for key, raw := range all {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("invalid value for %q: %w", key, err)
		}
		extra[key] = v
	}
	*r = ChatRequest{
		Model:       k.Model,
		Messages:    k.Messages,
		Stream:      k.Stream,
		Temperature: k.Temperature,
		TopP:        k.TopP,
		MaxTokens:   k.MaxTokens,
		Stop:        k.Stop,
		Extra:       extra,
	}
	return nil
}

// Message is one chat message. Content stays a raw JSON value: clients send
// strings, part arrays, or null, and scripts receive whatever arrived.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Text renders the content as matchable text: string content verbatim,
// anything else in its compact JSON encoding.
func (m Message) Text() string {
	if s, ok := m.Content.(string); ok {
		return s
	}
	b, err := json.Marshal(m.Content)
	if err != nil {
		return ""
	}
	return string(b)
}

// LastInputText picks the text the static engine matches on: the last user
// message, falling back to the last system message. The second return is
// false when neither exists.
func LastInputText(messages []Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Text(), true
		}
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "system" {
			return messages[i].Text(), true
		}
	}
	return "", false
}

// ParsedRequest is the normalized request handed to script models.
type ParsedRequest struct {
	Model       string         `json:"model"`
	Messages    []Message      `json:"messages"`
	Stream      bool           `json:"stream"`
	Temperature *float64       `json:"temperature"`
	TopP        *float64       `json:"top_p"`
	MaxTokens   *int           `json:"max_tokens"`
	Stop        any            `json:"stop"`
	Extra       map[string]any `json:"extra"`
}

// Usage mirrors the OpenAI usage block.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Reply is a finalized model answer before response encoding. Reasoning is
// empty when the reply carries none.
type Reply struct {
	Content      string
	Reasoning    string
	FinishReason string
	Usage        *Usage
}

// Completion is the non-streaming chat response body. ReasoningContent sits
// at the top level, next to choices.
type Completion struct {
	ID               string   `json:"id"`
	Object           string   `json:"object"`
	Created          int64    `json:"created"`
	Model            string   `json:"model"`
	Choices          []Choice `json:"choices"`
	ReasoningContent string   `json:"reasoning_content,omitempty"`
	Usage            *Usage   `json:"usage,omitempty"`
}

// Choice is one completion choice; the gateway always emits exactly one.
type Choice struct {
	Index        int              `json:"index"`
	Message      AssistantMessage `json:"message"`
	FinishReason string           `json:"finish_reason"`
}

// AssistantMessage is the message object inside a choice.
type AssistantMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chunk is one streaming delta event.
type Chunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice pairs a delta with the finish reason; FinishReason is null on
// every chunk but the terminal one.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta holds the incremental fields of one chunk. Pointers keep set-but-
// empty strings on the wire.
type Delta struct {
	Role             *string `json:"role,omitempty"`
	Content          *string `json:"content,omitempty"`
	ReasoningContent *string `json:"reasoning_content,omitempty"`
}

// ModelList is the GET /v1/models body.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// ModelInfo is one model listing entry.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}
