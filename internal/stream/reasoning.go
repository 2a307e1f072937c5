package stream

import (
	"github.com/llm-lab/mockllm/internal/config"
	"github.com/llm-lab/mockllm/internal/oai"
)

// ApplyReasoning shapes a reply for the configured reasoning mode. In
// prefix mode the reasoning folds into the content inside think tags; in
// none mode it is dropped; in field mode it stays separate for the
// reasoning_content field. Think tags already present in content are left
// alone either way.
func ApplyReasoning(mode config.ReasoningMode, reply oai.Reply) oai.Reply {
	switch mode {
	case config.ReasoningPrefix:
		if reply.Reasoning != "" {
			reply.Content = "<think>" + reply.Reasoning + "</think>\n" + reply.Content
			reply.Reasoning = ""
		}
	case config.ReasoningNone:
		reply.Reasoning = ""
	}
	return reply
}
