package admin

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/llm-lab/mockllm/internal/oai"
)

const streamPingInterval = 15 * time.Second

// interactiveReply is the operator's answer to a parked request.
type interactiveReply struct {
	Content      *string    `json:"content"`
	Reasoning    string     `json:"reasoning"`
	FinishReason string     `json:"finish_reason"`
	Usage        *oai.Usage `json:"usage"`
}

func (a *Admin) handleInteractiveList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.authorize(w, r) == nil {
		return
	}
	oai.WriteJSON(w, http.StatusOK, map[string]any{"requests": a.hub.List()})
}

func (a *Admin) handleInteractiveReply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.authorize(w, r) == nil {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v0/interactive/requests/")
	id, ok := strings.CutSuffix(rest, "/reply")
	if !ok || id == "" || strings.Contains(id, "/") {
		oai.WriteError(w, oai.NotFound("not found"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		oai.WriteError(w, oai.BadRequest("failed to read request body"))
		return
	}
	var payload interactiveReply
	if err := json.Unmarshal(body, &payload); err != nil {
		oai.WriteError(w, oai.BadRequest("invalid request body: "+err.Error()))
		return
	}
	if payload.Content == nil {
		oai.WriteError(w, oai.BadRequest("content is required"))
		return
	}
	finish := payload.FinishReason
	if finish == "" {
		finish = "stop"
	}

	delivered := a.hub.Reply(id, oai.Reply{
		Content:      *payload.Content,
		Reasoning:    payload.Reasoning,
		FinishReason: finish,
		Usage:        payload.Usage,
	})
	if !delivered {
		oai.WriteError(w, oai.NotFound("request not found"))
		return
	}
	oai.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleInteractiveStream relays hub events as SSE with a periodic ping
// comment so idle connections stay open through proxies.
func (a *Admin) handleInteractiveStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.authorize(w, r) == nil {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		oai.WriteError(w, oai.Internal("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	events := a.hub.Subscribe()
	defer a.hub.Unsubscribe(events)

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", ev); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
