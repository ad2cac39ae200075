package ai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Generate sends the persona instruction as the system message and the
// prompt as the user message, and returns the reply with reasoning blocks
// removed.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.generationModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if c.provider == ProviderOllama {
		req.MaxTokens = 100
		req.Temperature = 0.7
	}
	text, err := c.complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", c.provider, err)
	}
	return StripReasoning(text), nil
}
