package rules

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/llm-lab/mockllm/internal/config"
	"github.com/llm-lab/mockllm/internal/oai"
)

// Counter advances a named round-robin sequence. Next returns the slot
// to serve now and moves the sequence forward.
type Counter interface {
	Next(key string, n int) int
}

// Vars are the request values substituted into reply placeholders.
type Vars struct {
	ModelID   string
	RequestID string
	Now       time.Time
}

// hook for deterministic tests
var intn = rand.Intn

// Respond serves one request from a static model: select a rule, pick
// one of its replies, render placeholders.
func Respond(model *config.Model, cache *Cache, messages []oai.Message, counter Counter, vars Vars) (oai.Reply, error) {
	text, hasText := oai.LastInputText(messages)
	index, err := cache.Select(text, hasText)
	if err != nil {
		return oai.Reply{}, err
	}
	if index < 0 || index >= len(model.Static.Rules) {
		return oai.Reply{}, errors.New("rule index out of range")
	}
	rule := model.Static.Rules[index]
	reply, err := pickReply(model, index, rule, counter)
	if err != nil {
		return oai.Reply{}, err
	}

	vars.ModelID = model.ID
	out := oai.Reply{
		Content:      Interpolate(reply.Content, vars, text),
		FinishReason: "stop",
	}
	if reply.Reasoning != "" {
		out.Reasoning = Interpolate(reply.Reasoning, vars, text)
	}
	return out, nil
}

func pickReply(model *config.Model, index int, rule config.Rule, counter Counter) (config.StaticReply, error) {
	replies := rule.Replies
	if len(replies) == 0 {
		return config.StaticReply{}, errors.New("no static reply")
	}
	strategy := rule.Pick
	if strategy == "" {
		strategy = model.Static.Pick
	}
	if strategy == "" {
		strategy = config.PickRoundRobin
	}

	switch strategy {
	case config.PickRoundRobin:
		key := fmt.Sprintf("%s:%d", model.ID, index)
		return replies[counter.Next(key, len(replies))], nil
	case config.PickRandom:
		return replies[intn(len(replies))], nil
	case config.PickWeighted:
		total := 0
		for _, reply := range replies {
			total += replyWeight(reply)
		}
		if total <= 0 {
			return config.StaticReply{}, errors.New("invalid weight configuration")
		}
		target := intn(total)
		for _, reply := range replies {
			target -= replyWeight(reply)
			if target < 0 {
				return reply, nil
			}
		}
		return replies[len(replies)-1], nil
	default:
		return config.StaticReply{}, fmt.Errorf("unknown pick strategy %q", strategy)
	}
}

// replyWeight clamps weights to at least one so a zero or negative
// weight never starves a reply.
func replyWeight(reply config.StaticReply) int {
	if reply.Weight == nil || *reply.Weight < 1 {
		return 1
	}
	return *reply.Weight
}

// Interpolate renders the {{model.id}}, {{now}}, {{request_id}} and
// {{last_user}} placeholders in a reply text.
func Interpolate(s string, vars Vars, lastUser string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return strings.NewReplacer(
		"{{model.id}}", vars.ModelID,
		"{{now}}", vars.Now.UTC().Format(time.RFC3339),
		"{{request_id}}", vars.RequestID,
		"{{last_user}}", lastUser,
	).Replace(s)
}
