package agent

import "context"

// Request carries one decision call: instructions, the model to use and the
// snapshot payload serialized for the model.
type Request struct {
	Model        string
	Instructions string
	Snapshot     any
}

// Response is the agent's answer. Decision is nil when the model declined to
// decide or its output failed schema validation; RawPrompt/RawResponse are
// always populated for the audit log.
type Response struct {
	Decision    *Decision
	RawPrompt   string
	RawResponse string
}

// DecisionAgent turns a snapshot into a schema-validated decision or nil.
type DecisionAgent interface {
	Decide(ctx context.Context, req Request) (*Response, error)
}
