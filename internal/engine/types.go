// Package engine implements the per-message chat turn: store the user
// message, call the model with the registry's tool schema, route requested
// tool calls through the approval gate, feed the results back for a final
// answer, and persist the assistant message.
package engine

import (
	"encoding/json"
	"time"

	"github.com/loopgate/loopgate/internal/provider"
)

// Config holds the static per-agent turn settings.
type Config struct {
	// SystemPrompt is prepended to every completion request.
	SystemPrompt string

	// Temperature is forwarded to the model when non-nil.
	Temperature *float64

	// MaxTokens caps each completion when positive.
	MaxTokens int

	// TurnTimeout bounds one whole turn, including approval waits. It
	// must comfortably exceed the gate's approval timeout, otherwise a
	// parked gated call is cut short as a turn cancellation instead of a
	// synthetic rejection.
	TurnTimeout time.Duration

	// HistoryWindow caps how many stored messages are replayed to the
	// model. Zero replays the full transcript.
	HistoryWindow int
}

// DefaultTurnTimeout leaves room for the gate's 30-minute approval wait.
const DefaultTurnTimeout = 45 * time.Minute

func (c *Config) withDefaults() {
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = DefaultTurnTimeout
	}
}

// TurnOptions are per-turn overrides.
type TurnOptions struct {
	// ApprovalTimeout overrides the gate's decision deadline for this
	// turn's gated calls. Zero keeps the gate default.
	ApprovalTimeout time.Duration
}

// ToolCallRecord tracks one tool invocation during a turn.
type ToolCallRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Result    string          `json:"result"`
}

// TurnResult is the outcome of a successful turn.
type TurnResult struct {
	SessionID  string              `json:"session_id"`
	NewSession bool                `json:"new_session"`
	Reply      string              `json:"reply"`
	ToolCalls  []ToolCallRecord    `json:"tool_calls,omitempty"`
	Usage      provider.TokenUsage `json:"usage"`
}
