package agents

import (
	"context"
	"strings"

	"symphony/internal/types"
)

// Designer produces architecture and component breakdowns ahead of the coder.
type Designer struct {
	client types.LLMClient
}

// NewDesigner returns a designer backed by the given client.
func NewDesigner(client types.LLMClient) *Designer {
	return &Designer{client: client}
}

// AgentType reports the designer role.
func (d *Designer) AgentType() types.AgentType {
	return types.AgentDesigner
}

// Execute runs one design task.
func (d *Designer) Execute(ctx context.Context, task types.AgentTask, tctx types.TaskContext) (types.AgentResult, error) {
	return execute(ctx, d.client, types.AgentDesigner, task, tctx, "", func(raw string) interface{} {
		return DesignOutput{
			Design:     strings.TrimSpace(raw),
			Components: []string{},
		}
	})
}
