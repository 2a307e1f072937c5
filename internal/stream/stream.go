// Package stream writes chat completions as server-sent events: one role
// delta, optional reasoning and content deltas, a terminal chunk with the
// finish reason, then the [DONE] marker.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/llm-lab/mockllm/internal/oai"
)

// Emitter writes the chunk sequence for one streamed completion. Every
// event is flushed as soon as it is written.
type Emitter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	id      string
	model   string
	created int64
}

// NewEmitter prepares the response for streaming. It fails when the
// writer cannot flush.
func NewEmitter(w http.ResponseWriter, id, model string, created int64) (*Emitter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	return &Emitter{w: w, flusher: flusher, id: id, model: model, created: created}, nil
}

// Role opens the stream with the assistant role delta.
func (e *Emitter) Role() error {
	role := "assistant"
	return e.chunk(oai.ChunkChoice{Delta: oai.Delta{Role: &role}})
}

// Reasoning emits the reasoning text in deltas of size code points. Empty
// reasoning emits nothing.
func (e *Emitter) Reasoning(text string, size int) error {
	if text == "" {
		return nil
	}
	for _, part := range Split(text, size) {
		p := part
		if err := e.chunk(oai.ChunkChoice{Delta: oai.Delta{ReasoningContent: &p}}); err != nil {
			return err
		}
	}
	return nil
}

// Content emits the content text in deltas of size code points. With
// chunking disabled the whole text goes out as one delta, even when empty.
func (e *Emitter) Content(text string, size int) error {
	for _, part := range Split(text, size) {
		p := part
		if err := e.chunk(oai.ChunkChoice{Delta: oai.Delta{Content: &p}}); err != nil {
			return err
		}
	}
	return nil
}

// Finish sends the terminal chunk carrying the finish reason.
func (e *Emitter) Finish(reason string) error {
	return e.chunk(oai.ChunkChoice{Delta: oai.Delta{}, FinishReason: &reason})
}

// Done ends the stream.
func (e *Emitter) Done() error {
	return e.send([]byte("[DONE]"))
}

func (e *Emitter) chunk(choice oai.ChunkChoice) error {
	c := oai.Chunk{
		ID:      e.id,
		Object:  "chat.completion.chunk",
		Created: e.created,
		Model:   e.model,
		Choices: []oai.ChunkChoice{choice},
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return e.send(data)
}

func (e *Emitter) send(data []byte) error {
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

// Split cuts text into chunks of size code points. Size zero disables
// chunking: the whole text becomes one chunk. With chunking enabled an
// empty text yields no chunks at all.
func Split(text string, size int) []string {
	if size <= 0 {
		return []string{text}
	}
	if text == "" {
		return nil
	}
	runes := []rune(text)
	out := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
