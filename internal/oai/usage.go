package oai

// EstimateUsage derives a cheap token count for a mock reply: one token per
// four UTF-8 bytes, rounded up. The prompt side sums role and content bytes
// over every request message; the completion side counts the final content
// as sent to the client.
func EstimateUsage(messages []Message, content string) Usage {
	var promptBytes int
	for _, m := range messages {
		promptBytes += len(m.Role) + len(m.Text())
	}
	prompt := estimateTokens(promptBytes)
	completion := estimateTokens(len(content))
	return Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

func estimateTokens(bytes int) int {
	return (bytes + 3) / 4
}
