package ai

import "context"

// Client is a single-shot chat completion against the hosted model.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
