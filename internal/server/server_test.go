package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/llm-lab/mockllm/internal/interactive"
	"github.com/llm-lab/mockllm/internal/kernel"
	"github.com/llm-lab/mockllm/internal/oai"
	"github.com/llm-lab/mockllm/internal/observability"
)

// One Metrics per test binary; promauto registers against the default
// registry and rejects duplicates.
var testMetrics = observability.NewMetrics()

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// serverDir lays out a config tree exercising every model kind.
func serverDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), "server:\n  listen: \"127.0.0.1:0\"\n")
	writeFile(t, filepath.Join(dir, "models", "_catalog.yaml"), `schema: 2
default_model: echo
aliases:
  - name: fast
    providers: [echo, pro]
    strategy: round_robin
defaults:
  metadata:
    owned_by: lab
`)
	writeFile(t, filepath.Join(dir, "models", "echo.yaml"), `schema: 2
kind: static
static:
  rules:
    - when:
        any:
          - contains: hi
      replies:
        - content: hello
          reasoning: greeting check
    - default: true
      replies:
        - content: a
        - content: b
`)
	writeFile(t, filepath.Join(dir, "models", "pro.yaml"), `schema: 2
kind: static
static:
  rules:
    - default: true
      replies:
        - content: p
`)
	writeFile(t, filepath.Join(dir, "models", "js.yaml"), `schema: 2
kind: script
script:
  file: main.js
  timeout_ms: 2000
`)
	writeFile(t, filepath.Join(dir, "models", "slow.yaml"), `schema: 2
kind: script
script:
  file: slow.js
  timeout_ms: 50
`)
	writeFile(t, filepath.Join(dir, "models", "oracle.yaml"), `schema: 2
kind: interactive
interactive:
  timeout_ms: 2000
  fallback_text: offline
  fake_reasoning: mulling
`)
	writeFile(t, filepath.Join(dir, "models", "flaky.yaml"), `schema: 2
kind: interactive
interactive:
  timeout_ms: 150
  fallback_text: offline
`)
	writeFile(t, filepath.Join(dir, "scripts", "main.js"), `export function handle(input) {
  const msgs = input.parsed.messages;
  return { content: "js:" + msgs[msgs.length - 1].content };
}
`)
	writeFile(t, filepath.Join(dir, "scripts", "slow.js"), `export function handle(input) {
  const until = Date.now() + 400;
  while (Date.now() < until) {}
  return { content: "late" };
}
`)
	return dir
}

func newTestServer(t *testing.T, dir string) (*httptest.Server, *interactive.Hub) {
	t.Helper()
	handle, err := kernel.Open(dir, testMetrics)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(handle.Close)

	hub := interactive.NewHub()
	srv := New(Options{
		Handle:  handle,
		Hub:     hub,
		Metrics: testMetrics,
		Version: "test",
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, hub
}

func postChat(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	res, err := http.Post(ts.URL+"/v1/chat/completions", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return res
}

func decodeCompletion(t *testing.T, res *http.Response) oai.Completion {
	t.Helper()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	var out oai.Completion
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode completion: %v", err)
	}
	return out
}

func decodeErr(t *testing.T, res *http.Response) (int, string) {
	t.Helper()
	defer res.Body.Close()
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error.Type != "invalid_request_error" {
		t.Errorf("expected type invalid_request_error, got %q", envelope.Error.Type)
	}
	return res.StatusCode, envelope.Error.Message
}

func TestChatNonStreaming(t *testing.T) {
	ts, _ := newTestServer(t, serverDir(t))

	res := postChat(t, ts, `{"model":"lab/echo","messages":[{"role":"user","content":"hi"}]}`)
	out := decodeCompletion(t, res)

	if !strings.HasPrefix(out.ID, "chatcmpl-") {
		t.Errorf("expected chatcmpl- id, got %q", out.ID)
	}
	if out.Object != "chat.completion" {
		t.Errorf("expected chat.completion, got %q", out.Object)
	}
	if out.Model != "lab/echo" {
		t.Errorf("expected model lab/echo, got %q", out.Model)
	}
	if len(out.Choices) != 1 {
		t.Fatalf("expected one choice, got %d", len(out.Choices))
	}
	choice := out.Choices[0]
	if choice.Message.Role != "assistant" || choice.Message.Content != "hello" {
		t.Errorf("expected assistant hello, got %s %q", choice.Message.Role, choice.Message.Content)
	}
	if choice.FinishReason != "stop" {
		t.Errorf("expected finish stop, got %q", choice.FinishReason)
	}
	if out.ReasoningContent != "greeting check" {
		t.Errorf("expected reasoning in field mode, got %q", out.ReasoningContent)
	}
	if out.Usage == nil {
		t.Fatal("expected usage block")
	}
	// prompt: role "user" + content "hi" = 6 bytes -> 2; completion: "hello" -> 2.
	if out.Usage.PromptTokens != 2 || out.Usage.CompletionTokens != 2 || out.Usage.TotalTokens != 4 {
		t.Errorf("unexpected usage %+v", *out.Usage)
	}
}

func TestChatRoundRobinReplies(t *testing.T) {
	ts, _ := newTestServer(t, serverDir(t))

	var got []string
	for i := 0; i < 3; i++ {
		res := postChat(t, ts, `{"model":"lab/echo","messages":[{"role":"user","content":"zzz"}]}`)
		out := decodeCompletion(t, res)
		got = append(got, out.Choices[0].Message.Content)
	}
	want := []string{"a", "b", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestChatAliasKeepsPublicModel(t *testing.T) {
	ts, _ := newTestServer(t, serverDir(t))

	first := decodeCompletion(t, postChat(t, ts, `{"model":"lab/fast","messages":[{"role":"user","content":"x"}]}`))
	second := decodeCompletion(t, postChat(t, ts, `{"model":"lab/fast","messages":[{"role":"user","content":"x"}]}`))

	if first.Model != "lab/fast" || second.Model != "lab/fast" {
		t.Errorf("expected alias id echoed, got %q and %q", first.Model, second.Model)
	}
	if first.Choices[0].Message.Content != "a" || second.Choices[0].Message.Content != "p" {
		t.Errorf("expected providers to alternate a,p got %q,%q",
			first.Choices[0].Message.Content, second.Choices[0].Message.Content)
	}
}

func TestChatDefaultModel(t *testing.T) {
	ts, _ := newTestServer(t, serverDir(t))

	out := decodeCompletion(t, postChat(t, ts, `{"messages":[{"role":"user","content":"hi"}]}`))
	if out.Model != "lab/echo" {
		t.Errorf("expected default model lab/echo, got %q", out.Model)
	}
}

func TestChatValidation(t *testing.T) {
	ts, _ := newTestServer(t, serverDir(t))

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"empty messages", `{"model":"lab/echo","messages":[]}`, 400, "messages must not be empty"},
		{"bare model name", `{"model":"echo","messages":[{"role":"user","content":"x"}]}`, 400, "model must be prefix/name"},
		{"unknown model", `{"model":"lab/nope","messages":[{"role":"user","content":"x"}]}`, 404, "model not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := decodeErr(t, postChat(t, ts, tt.body))
			if status != tt.wantStatus || msg != tt.wantMsg {
				t.Errorf("expected %d %q, got %d %q", tt.wantStatus, tt.wantMsg, status, msg)
			}
		})
	}
}

func TestChatBadJSON(t *testing.T) {
	ts, _ := newTestServer(t, serverDir(t))

	status, msg := decodeErr(t, postChat(t, ts, `{"model":`))
	if status != 400 || !strings.HasPrefix(msg, "invalid request body") {
		t.Errorf("expected 400 invalid request body, got %d %q", status, msg)
	}
}

func TestChatMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t, serverDir(t))

	res, err := http.Get(ts.URL + "/v1/chat/completions")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", res.StatusCode)
	}
}

func TestChatScript(t *testing.T) {
	ts, _ := newTestServer(t, serverDir(t))

	out := decodeCompletion(t, postChat(t, ts, `{"model":"lab/js","messages":[{"role":"user","content":"ping"}]}`))
	if out.Choices[0].Message.Content != "js:ping" {
		t.Errorf("expected js:ping, got %q", out.Choices[0].Message.Content)
	}
}

func TestChatScriptTimeout(t *testing.T) {
	ts, _ := newTestServer(t, serverDir(t))

	status, msg := decodeErr(t, postChat(t, ts, `{"model":"lab/slow","messages":[{"role":"user","content":"x"}]}`))
	if status != 500 || msg != "script timeout" {
		t.Errorf("expected 500 script timeout, got %d %q", status, msg)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	ts, _ := newTestServer(t, serverDir(t))

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/chat/completions",
		strings.NewReader(`{"model":"lab/echo","messages":[{"role":"user","content":"x"}]}`))
	req.Header.Set("x-request-id", "req-42")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	res.Body.Close()
	if got := res.Header.Get("x-request-id"); got != "req-42" {
		t.Errorf("expected req-42 echoed, got %q", got)
	}

	res2 := postChat(t, ts, `{"model":"lab/echo","messages":[{"role":"user","content":"x"}]}`)
	res2.Body.Close()
	if res2.Header.Get("x-request-id") == "" {
		t.Error("expected a generated x-request-id")
	}
}

func TestModelsList(t *testing.T) {
	ts, _ := newTestServer(t, serverDir(t))

	res, err := http.Get(ts.URL + "/v1/models")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	var list oai.ModelList
	if err := json.NewDecoder(res.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Object != "list" {
		t.Errorf("expected list, got %q", list.Object)
	}
	var ids []string
	for _, m := range list.Data {
		ids = append(ids, m.ID)
		if m.Object != "model" {
			t.Errorf("expected object model, got %q", m.Object)
		}
	}
	want := []string{"lab/echo", "lab/fast", "lab/flaky", "lab/js", "lab/oracle", "lab/pro", "lab/slow"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
}

func TestModelGet(t *testing.T) {
	ts, _ := newTestServer(t, serverDir(t))

	res, err := http.Get(ts.URL + "/v1/models/lab/echo")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	var info oai.ModelInfo
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.ID != "lab/echo" || info.OwnedBy != "lab" {
		t.Errorf("expected lab/echo owned by lab, got %q %q", info.ID, info.OwnedBy)
	}

	res2, err := http.Get(ts.URL + "/v1/models/lab/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	status, msg := decodeErr(t, res2)
	if status != 404 || msg != "model not found" {
		t.Errorf("expected 404 model not found, got %d %q", status, msg)
	}
}

func TestInteractiveReply(t *testing.T) {
	ts, hub := newTestServer(t, serverDir(t))

	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if pending := hub.List(); len(pending) == 1 {
				hub.Reply(pending[0].ID, oai.Reply{Content: "from operator", FinishReason: "stop"})
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	out := decodeCompletion(t, postChat(t, ts, `{"model":"lab/oracle","messages":[{"role":"user","content":"help"}]}`))
	if out.Choices[0].Message.Content != "from operator" {
		t.Errorf("expected operator reply, got %q", out.Choices[0].Message.Content)
	}
	if out.Choices[0].FinishReason != "stop" {
		t.Errorf("expected finish stop, got %q", out.Choices[0].FinishReason)
	}
}

func TestInteractiveTimeoutFallback(t *testing.T) {
	ts, hub := newTestServer(t, serverDir(t))

	events := hub.Subscribe()
	defer hub.Unsubscribe(events)

	out := decodeCompletion(t, postChat(t, ts, `{"model":"lab/flaky","messages":[{"role":"user","content":"help"}]}`))
	if out.Choices[0].Message.Content != "offline" {
		t.Errorf("expected fallback offline, got %q", out.Choices[0].Message.Content)
	}
	if out.Choices[0].FinishReason != "stop" {
		t.Errorf("expected finish stop, got %q", out.Choices[0].FinishReason)
	}
	if hub.Len() != 0 {
		t.Errorf("expected empty queue after timeout, got %d", hub.Len())
	}

	var types []string
	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			var decoded struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(ev, &decoded); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			types = append(types, decoded.Type)
		case <-time.After(time.Second):
			t.Fatalf("expected 2 events, got %v", types)
		}
	}
	if types[0] != "queued" || types[1] != "timeout" {
		t.Errorf("expected queued,timeout got %v", types)
	}
}

type sseEvent struct {
	data string
}

func readSSE(t *testing.T, res *http.Response) []sseEvent {
	t.Helper()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}
	var events []sseEvent
	scanner := bufio.NewScanner(res.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			events = append(events, sseEvent{data: data})
		}
	}
	return events
}

func decodeChunk(t *testing.T, ev sseEvent) oai.Chunk {
	t.Helper()
	var chunk oai.Chunk
	if err := json.Unmarshal([]byte(ev.data), &chunk); err != nil {
		t.Fatalf("decode chunk %q: %v", ev.data, err)
	}
	return chunk
}

func TestChatStreaming(t *testing.T) {
	ts, _ := newTestServer(t, serverDir(t))

	res := postChat(t, ts, `{"model":"lab/echo","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	events := readSSE(t, res)

	if len(events) == 0 || events[len(events)-1].data != "[DONE]" {
		t.Fatalf("expected terminal [DONE], got %v", events)
	}
	chunks := events[:len(events)-1]
	// role, reasoning "greeting check" in 8-rune chunks (2), content "hello" (1), finish.
	if len(chunks) != 5 {
		t.Fatalf("expected 5 chunks, got %d: %v", len(chunks), events)
	}

	first := decodeChunk(t, chunks[0])
	if first.Object != "chat.completion.chunk" || first.Model != "lab/echo" {
		t.Errorf("unexpected chunk header %+v", first)
	}
	if first.Choices[0].Delta.Role == nil || *first.Choices[0].Delta.Role != "assistant" {
		t.Error("expected role delta first")
	}

	var reasoning, content string
	for _, ev := range chunks[1 : len(chunks)-1] {
		delta := decodeChunk(t, ev).Choices[0].Delta
		if delta.ReasoningContent != nil {
			reasoning += *delta.ReasoningContent
		}
		if delta.Content != nil {
			content += *delta.Content
		}
	}
	if reasoning != "greeting check" {
		t.Errorf("expected reasoning greeting check, got %q", reasoning)
	}
	if content != "hello" {
		t.Errorf("expected content hello, got %q", content)
	}

	last := decodeChunk(t, chunks[len(chunks)-1])
	if last.Choices[0].FinishReason == nil || *last.Choices[0].FinishReason != "stop" {
		t.Error("expected terminal finish_reason stop")
	}
	if strings.Contains(strings.Join(collectData(events), " "), `"usage"`) {
		t.Error("streams must not carry usage")
	}
}

func collectData(events []sseEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.data
	}
	return out
}

func TestInteractiveStreamingOrder(t *testing.T) {
	ts, hub := newTestServer(t, serverDir(t))

	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if pending := hub.List(); len(pending) == 1 {
				hub.Reply(pending[0].ID, oai.Reply{Content: "yes", FinishReason: "stop"})
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	res := postChat(t, ts, `{"model":"lab/oracle","stream":true,"messages":[{"role":"user","content":"go?"}]}`)
	events := readSSE(t, res)
	if events[len(events)-1].data != "[DONE]" {
		t.Fatalf("expected [DONE], got %v", events)
	}

	var sawRole, sawReasoning, sawContent bool
	for _, ev := range events[:len(events)-1] {
		delta := decodeChunk(t, ev).Choices[0].Delta
		switch {
		case delta.Role != nil:
			if sawReasoning || sawContent {
				t.Error("role delta must come first")
			}
			sawRole = true
		case delta.ReasoningContent != nil:
			if sawContent {
				t.Error("fake reasoning must precede content")
			}
			sawReasoning = true
		case delta.Content != nil && *delta.Content != "":
			sawContent = true
		}
	}
	if !sawRole || !sawReasoning || !sawContent {
		t.Errorf("expected role, reasoning, content: %v %v %v", sawRole, sawReasoning, sawContent)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, serverDir(t))

	res := postChat(t, ts, `{"model":"lab/echo","messages":[{"role":"user","content":"x"}]}`)
	res.Body.Close()

	mres, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer mres.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(mres.Body); err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(buf.String(), "mockllm_requests_total") {
		t.Error("expected mockllm_requests_total in /metrics")
	}
}

func TestDashboardServed(t *testing.T) {
	ts, _ := newTestServer(t, serverDir(t))

	res, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	if cc := res.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("expected no-cache index, got %q", cc)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(res.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(buf.String(), "mockllm") {
		t.Error("expected dashboard html")
	}

	ares, err := http.Get(ts.URL + "/assets/app.js")
	if err != nil {
		t.Fatalf("get asset: %v", err)
	}
	ares.Body.Close()
	if ares.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for asset, got %d", ares.StatusCode)
	}
	if cc := ares.Header.Get("Cache-Control"); !strings.Contains(cc, "immutable") {
		t.Errorf("expected immutable asset caching, got %q", cc)
	}
}

func TestAuthRequired(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), `server:
  listen: "127.0.0.1:0"
  auth:
    enabled: true
    api_key: sk-test
`)
	writeFile(t, filepath.Join(dir, "models", "_catalog.yaml"), "schema: 2\ndefaults:\n  metadata:\n    owned_by: lab\n")
	writeFile(t, filepath.Join(dir, "models", "echo.yaml"), `schema: 2
kind: static
static:
  rules:
    - default: true
      replies:
        - content: a
`)
	ts, _ := newTestServer(t, dir)

	body := `{"model":"lab/echo","messages":[{"role":"user","content":"x"}]}`

	status, msg := decodeErr(t, postChat(t, ts, body))
	if status != 401 || msg != "unauthorized" {
		t.Errorf("expected 401 unauthorized, got %d %q", status, msg)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer sk-wrong")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	status, msg = decodeErr(t, res)
	if status != 401 || msg != "unauthorized" {
		t.Errorf("expected 401 for wrong key, got %d %q", status, msg)
	}

	req2, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/chat/completions", strings.NewReader(body))
	req2.Header.Set("Authorization", "Bearer sk-test")
	res2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	out := decodeCompletion(t, res2)
	if out.Choices[0].Message.Content != "a" {
		t.Errorf("expected a, got %q", out.Choices[0].Message.Content)
	}

	lres, err := http.Get(ts.URL + "/v1/models")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	status, _ = decodeErr(t, lres)
	if status != 401 {
		t.Errorf("expected 401 for unauthenticated model list, got %d", status)
	}
}

func TestUsageDisabled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), `server:
  listen: "127.0.0.1:0"
response:
  include_usage: false
`)
	writeFile(t, filepath.Join(dir, "models", "_catalog.yaml"), "schema: 2\ndefaults:\n  metadata:\n    owned_by: lab\n")
	writeFile(t, filepath.Join(dir, "models", "echo.yaml"), `schema: 2
kind: static
static:
  rules:
    - default: true
      replies:
        - content: a
`)
	ts, _ := newTestServer(t, dir)

	out := decodeCompletion(t, postChat(t, ts, `{"model":"lab/echo","messages":[{"role":"user","content":"x"}]}`))
	if out.Usage != nil {
		t.Errorf("expected no usage, got %+v", *out.Usage)
	}
}

func TestReasoningPrefixMode(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), `server:
  listen: "127.0.0.1:0"
response:
  reasoning_mode: prefix
`)
	writeFile(t, filepath.Join(dir, "models", "_catalog.yaml"), "schema: 2\ndefaults:\n  metadata:\n    owned_by: lab\n")
	writeFile(t, filepath.Join(dir, "models", "echo.yaml"), `schema: 2
kind: static
static:
  rules:
    - default: true
      replies:
        - content: hello
          reasoning: because
`)
	ts, _ := newTestServer(t, dir)

	out := decodeCompletion(t, postChat(t, ts, `{"model":"lab/echo","messages":[{"role":"user","content":"x"}]}`))
	want := "<think>because</think>\nhello"
	if out.Choices[0].Message.Content != want {
		t.Errorf("expected %q, got %q", want, out.Choices[0].Message.Content)
	}
	if out.ReasoningContent != "" {
		t.Errorf("prefix mode must not set reasoning_content, got %q", out.ReasoningContent)
	}
}

func TestServerStartShutdown(t *testing.T) {
	handle, err := kernel.Open(serverDir(t), testMetrics)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer handle.Close()

	srv := New(Options{Handle: handle, Hub: interactive.NewHub(), Version: "test"})
	if err := srv.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if srv.Addr() == "" {
		t.Fatal("expected a bound address")
	}

	res, err := http.Get(fmt.Sprintf("http://%s/v1/models", srv.Addr()))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", res.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
