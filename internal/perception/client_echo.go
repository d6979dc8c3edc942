package perception

import (
	"context"
	"fmt"
)

// EchoClient is the terminal fallback when no provider is reachable. It
// acknowledges the prompt with a canned stub and never fails, so a run
// always completes even on a machine with no keys and no network.
type EchoClient struct{}

// NewEchoClient creates the echo stub client.
func NewEchoClient() *EchoClient {
	return &EchoClient{}
}

// Name returns the provider identifier.
func (c *EchoClient) Name() string { return "echo" }

// Model returns the stub model label.
func (c *EchoClient) Model() string { return "fallback" }

// Complete returns a canned acknowledgement of the prompt.
func (c *EchoClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("I understand you want: %s... I'll help you with that.", truncatePrompt(prompt, 100)), nil
}

// CompleteWithSystem ignores the system preamble and echoes the user prompt.
func (c *EchoClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.Complete(ctx, userPrompt)
}
