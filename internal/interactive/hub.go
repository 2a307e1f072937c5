// Package interactive queues chat requests for a human operator. Requests
// park in a process-wide hub until someone replies through the admin API
// or the model's timeout serves the fallback text. The hub outlives config
// reloads.
package interactive

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/llm-lab/mockllm/internal/oai"
)

const eventBuffer = 128

// Request is one parked chat request as the admin surface sees it.
type Request struct {
	ID        string        `json:"id"`
	Model     string        `json:"model"`
	Messages  []oai.Message `json:"messages"`
	Stream    bool          `json:"stream"`
	Created   int64         `json:"created"`
	TimeoutMS int           `json:"timeout_ms"`
}

type pending struct {
	req   Request
	reply chan oai.Reply
	seq   uint64
}

type event struct {
	Type    string   `json:"type"`
	ID      string   `json:"id,omitempty"`
	Request *Request `json:"request,omitempty"`
}

// Hub tracks pending interactive requests and fans out queue events to
// subscribers. All methods are safe for concurrent use.
type Hub struct {
	mu      sync.Mutex
	pending map[string]*pending
	subs    map[chan []byte]struct{}
	seq     uint64
}

func NewHub() *Hub {
	return &Hub{
		pending: make(map[string]*pending),
		subs:    make(map[chan []byte]struct{}),
	}
}

// Enqueue parks a request and returns it along with the channel its reply
// arrives on.
func (h *Hub) Enqueue(model string, messages []oai.Message, stream bool, timeoutMS int) (Request, <-chan oai.Reply) {
	req := Request{
		ID:        uuid.NewString(),
		Model:     model,
		Messages:  messages,
		Stream:    stream,
		Created:   time.Now().Unix(),
		TimeoutMS: timeoutMS,
	}
	ch := make(chan oai.Reply, 1)

	h.mu.Lock()
	h.seq++
	h.pending[req.ID] = &pending{req: req, reply: ch, seq: h.seq}
	h.mu.Unlock()

	h.broadcast(event{Type: "queued", Request: &req})
	return req, ch
}

// Reply resolves a pending request. It reports false when the id is
// unknown, already answered, or already timed out.
func (h *Hub) Reply(id string, reply oai.Reply) bool {
	h.mu.Lock()
	p, ok := h.pending[id]
	if ok {
		delete(h.pending, id)
	}
	h.mu.Unlock()
	if !ok {
		return false
	}

	p.reply <- reply
	h.broadcast(event{Type: "replied", ID: id})
	return true
}

// Timeout drops a request whose waiter gave up and reports whether it was
// still pending. A lost race against Reply is silent.
func (h *Hub) Timeout(id string) bool {
	h.mu.Lock()
	_, ok := h.pending[id]
	if ok {
		delete(h.pending, id)
	}
	h.mu.Unlock()
	if ok {
		h.broadcast(event{Type: "timeout", ID: id})
	}
	return ok
}

// List returns the pending requests, oldest first.
func (h *Hub) List() []Request {
	h.mu.Lock()
	entries := make([]*pending, 0, len(h.pending))
	for _, p := range h.pending {
		entries = append(entries, p)
	}
	h.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]Request, len(entries))
	for i, p := range entries {
		out[i] = p.req
	}
	return out
}

// Len is the number of requests currently parked.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Subscribe registers an event listener. The channel carries marshaled
// events and drops when the listener falls behind.
func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, eventBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	_, ok := h.subs[ch]
	if ok {
		delete(h.subs, ch)
	}
	h.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (h *Hub) broadcast(ev event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- data:
		default:
		}
	}
}
