package agents

import (
	"context"

	"symphony/internal/perception"
	"symphony/internal/types"
)

// Coder turns a task into runnable code.
type Coder struct {
	client types.LLMClient
}

// NewCoder returns a coder backed by the given client.
func NewCoder(client types.LLMClient) *Coder {
	return &Coder{client: client}
}

// AgentType reports the coder role.
func (c *Coder) AgentType() types.AgentType {
	return types.AgentCoder
}

// Execute runs one coding task. A prose or fenced-code answer is wrapped into
// the standard code shape with main.py defaults so integration always has a
// file to place.
func (c *Coder) Execute(ctx context.Context, task types.AgentTask, tctx types.TaskContext) (types.AgentResult, error) {
	return execute(ctx, c.client, types.AgentCoder, task, tctx, "", func(raw string) interface{} {
		return CoderOutput{
			Code:         perception.ExtractCodeBlock(raw, "python"),
			Explanation:  "Generated code",
			Dependencies: []string{"python"},
			FileName:     "main.py",
			Instructions: "Run: python main.py",
		}
	})
}
