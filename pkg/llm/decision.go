package llm

import (
	"context"
	"fmt"
	"time"
)

// Decision-call constants are compile-time per §4.B: 120s timeout per attempt, one
// call plus up to 3 retries, multiplicative backoff 1s -> 2s -> 4s, temperature ~0.5, ~2000
// max output tokens. These are the DecisionEngine's only calling convention onto
// LLMClient; nothing downstream configures them per request.
const (
	DecisionCallTimeout = 120 * time.Second
	decisionTemperature = 0.5
	decisionMaxTokens   = 2000
)

var decisionRetry = RetryConfig{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     4 * time.Second,
	Multiplier:     2.0,
}

// Caller is the abstract `(system, user) -> text` capability the DecisionEngine
// consumes (§4.B). *Client satisfies it via DecisionCall.
type Caller interface {
	DecisionCall(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// DecisionCall invokes the configured model with the engine's fixed retry and
// timeout policy and returns the raw assistant text. Empty content is an error.
func (c *Client) DecisionCall(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	temp := decisionTemperature
	maxTokens := decisionMaxTokens
	req := &ChatRequest{
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: &temp,
		MaxCompletionTokens: &maxTokens,
	}

	handler := NewRetryHandler(decisionRetry)
	var content string
	err := handler.Do(ctx, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, DecisionCallTimeout)
		defer cancel()

		resp, err := c.Chat(attemptCtx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return fmt.Errorf("llm: empty response content")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("llm: decision call failed: %w", err)
	}
	return content, nil
}

var _ Caller = (*Client)(nil)
