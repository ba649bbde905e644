// Package provider defines the contract for the hosted language-model
// collaborator. The engine treats a completion as one opaque function:
// messages plus tool schema in, assistant text and tool-call requests out.
// Concrete implementations live in separate packages (e.g. modules/provider/openai).
package provider

import "context"

// Caller is the interface for communicating with an LLM.
type Caller interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req Request) (Response, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}
