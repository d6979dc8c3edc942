package agents

import (
	"context"
	"strings"

	"symphony/internal/types"
)

// Writer produces project documentation.
type Writer struct {
	client types.LLMClient
}

// NewWriter returns a writer backed by the given client.
func NewWriter(client types.LLMClient) *Writer {
	return &Writer{client: client}
}

// AgentType reports the writer role.
func (w *Writer) AgentType() types.AgentType {
	return types.AgentWriter
}

// Execute runs one documentation task. Prose answers are already the
// deliverable, so the wrap just moves them into the documentation field.
func (w *Writer) Execute(ctx context.Context, task types.AgentTask, tctx types.TaskContext) (types.AgentResult, error) {
	return execute(ctx, w.client, types.AgentWriter, task, tctx, "", func(raw string) interface{} {
		return WriterOutput{
			Documentation: strings.TrimSpace(raw),
		}
	})
}
