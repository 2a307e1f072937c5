package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/llm-lab/mockllm/internal/config"
	"github.com/llm-lab/mockllm/internal/kernel"
	"github.com/llm-lab/mockllm/internal/oai"
	"github.com/llm-lab/mockllm/internal/rules"
	"github.com/llm-lab/mockllm/internal/script"
	"github.com/llm-lab/mockllm/internal/stream"
)

// completionContext carries the per-request identifiers every branch of
// the chat handler needs.
type completionContext struct {
	snap      *kernel.Snapshot
	model     *config.Model
	public    string
	id        string
	created   int64
	requestID string
	now       time.Time
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := s.handle.Snapshot()
	if !snap.Config.Server.Auth.Authorize(r.Header.Get("Authorization")) {
		oai.WriteError(w, oai.Unauthorized("unauthorized"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		oai.WriteError(w, oai.BadRequest("failed to read request body"))
		return
	}
	var req oai.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		oai.WriteError(w, oai.BadRequest("invalid request body: "+err.Error()))
		return
	}
	if len(req.Messages) == 0 {
		oai.WriteError(w, oai.BadRequest("messages must not be empty"))
		return
	}

	m, public, apiErr := snap.Resolve(req.Model)
	if apiErr != nil {
		oai.WriteError(w, apiErr)
		return
	}

	now := time.Now()
	rc := completionContext{
		snap:      snap,
		model:     m,
		public:    public,
		id:        "chatcmpl-" + uuid.NewString(),
		created:   now.Unix(),
		requestID: RequestIDFrom(r.Context()),
		now:       now,
	}

	if m.Kind == config.KindInteractive {
		s.serveInteractive(w, rc, &req)
		return
	}

	start := time.Now()
	reply, genErr := s.generate(rc, &req, body)
	s.recordRequest(rc, start, genErr)
	if genErr != nil {
		oai.WriteError(w, genErr)
		return
	}
	s.render(w, rc, &req, reply)
}

// generate produces the reply for static and script models.
func (s *Server) generate(rc completionContext, req *oai.ChatRequest, body []byte) (oai.Reply, error) {
	switch rc.model.Kind {
	case config.KindStatic:
		return rc.snap.StaticReply(rc.model, req.Messages, rules.Vars{
			RequestID: rc.requestID,
			Now:       rc.now,
		})
	case config.KindScript:
		input := script.Input{
			Request: json.RawMessage(body),
			Parsed: &oai.ParsedRequest{
				Model:       req.Model,
				Messages:    req.Messages,
				Stream:      req.Stream,
				Temperature: req.Temperature,
				TopP:        req.TopP,
				MaxTokens:   req.MaxTokens,
				Stop:        req.Stop,
				Extra:       req.Extra,
			},
			Model: rc.model,
			Meta:  script.Meta{RequestID: rc.requestID, Now: rc.now.UTC().Format(time.RFC3339)},
		}
		reply, err := rc.snap.ScriptEval(rc.model, input)
		s.recordScriptEval(rc.public, err)
		return reply, err
	}
	return oai.Reply{}, oai.Internal("unsupported model kind")
}

// render shapes the reply per the response config and writes it as a
// JSON completion or an SSE stream.
func (s *Server) render(w http.ResponseWriter, rc completionContext, req *oai.ChatRequest, reply oai.Reply) {
	cfg := rc.snap.Config.Response
	shaped := stream.ApplyReasoning(cfg.ReasoningMode, reply)

	if !req.Stream {
		usage := shaped.Usage
		if usage == nil && cfg.UsageEnabled() {
			u := oai.EstimateUsage(req.Messages, shaped.Content)
			usage = &u
		}
		oai.WriteJSON(w, http.StatusOK, oai.Completion{
			ID:      rc.id,
			Object:  "chat.completion",
			Created: rc.created,
			Model:   rc.public,
			Choices: []oai.Choice{{
				Index: 0,
				Message: oai.AssistantMessage{
					Role:    "assistant",
					Content: shaped.Content,
				},
				FinishReason: shaped.FinishReason,
			}},
			ReasoningContent: shaped.Reasoning,
			Usage:            usage,
		})
		return
	}

	em, err := stream.NewEmitter(w, rc.id, rc.public, rc.created)
	if err != nil {
		oai.WriteError(w, oai.Internal(err.Error()))
		return
	}
	if err := s.streamReply(em, cfg, shaped, rc.model.ChunkChars()); err != nil {
		s.log.Warn("stream aborted", "error", err, "request_id", rc.requestID)
	}
}

func (s *Server) streamReply(em *stream.Emitter, cfg config.ResponseConfig, reply oai.Reply, size int) error {
	if err := em.Role(); err != nil {
		return err
	}
	s.pace(cfg.StreamFirstDelayMS)
	if err := em.Reasoning(reply.Reasoning, size); err != nil {
		return err
	}
	if err := em.Content(reply.Content, size); err != nil {
		return err
	}
	if err := em.Finish(reply.FinishReason); err != nil {
		return err
	}
	return em.Done()
}

// serveInteractive parks the request on the hub and serves whatever the
// operator sends back, or the fallback text after the timeout.
func (s *Server) serveInteractive(w http.ResponseWriter, rc completionContext, req *oai.ChatRequest) {
	start := time.Now()
	spec := rc.model.Interactive
	if spec == nil {
		s.recordRequest(rc, start, oai.Internal("interactive config missing"))
		oai.WriteError(w, oai.Internal("interactive config missing"))
		return
	}

	pending, replyCh := s.hub.Enqueue(rc.public, req.Messages, req.Stream, spec.TimeoutMS)
	s.syncPendingGauge()

	if !req.Stream {
		reply := s.awaitReply(pending.ID, replyCh, spec)
		s.syncPendingGauge()
		s.recordRequest(rc, start, nil)
		s.render(w, rc, req, reply)
		return
	}

	em, err := stream.NewEmitter(w, rc.id, rc.public, rc.created)
	if err != nil {
		s.recordRequest(rc, start, err)
		oai.WriteError(w, oai.Internal(err.Error()))
		return
	}
	cfg := rc.snap.Config.Response
	size := rc.model.ChunkChars()

	streamErr := func() error {
		if err := em.Role(); err != nil {
			return err
		}
		s.pace(cfg.StreamFirstDelayMS)
		if cfg.ReasoningMode == config.ReasoningField {
			if err := em.Reasoning(spec.FakeReasoning, size); err != nil {
				return err
			}
		}
		reply := s.awaitReply(pending.ID, replyCh, spec)
		s.syncPendingGauge()
		shaped := stream.ApplyReasoning(cfg.ReasoningMode, reply)
		if err := em.Reasoning(shaped.Reasoning, size); err != nil {
			return err
		}
		if err := em.Content(shaped.Content, size); err != nil {
			return err
		}
		if err := em.Finish(shaped.FinishReason); err != nil {
			return err
		}
		return em.Done()
	}()
	s.recordRequest(rc, start, streamErr)
	if streamErr != nil {
		s.log.Warn("stream aborted", "error", streamErr, "request_id", rc.requestID)
	}
}

// awaitReply blocks until the operator answers or the model's timeout
// elapses, in which case the hub entry is released and the fallback
// reply is returned.
func (s *Server) awaitReply(id string, ch <-chan oai.Reply, spec *config.InteractiveSpec) oai.Reply {
	timer := time.NewTimer(time.Duration(spec.TimeoutMS) * time.Millisecond)
	defer timer.Stop()
	select {
	case reply := <-ch:
		return reply
	case <-timer.C:
		s.hub.Timeout(id)
		return oai.Reply{Content: spec.FallbackText, FinishReason: "stop"}
	}
}

func (s *Server) pace(ms int) {
	if ms > 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}
}

func (s *Server) recordRequest(rc completionContext, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordRequest(rc.public, string(rc.model.Kind), status, time.Since(start).Seconds())
}

func (s *Server) recordScriptEval(model string, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		if err.Error() == "script timeout" {
			status = "timeout"
		}
	}
	s.metrics.RecordScriptEval(model, status)
}

func (s *Server) syncPendingGauge() {
	if s.metrics != nil {
		s.metrics.InteractivePending.Set(float64(s.hub.Len()))
	}
}
