// Package convo provides the session-scoped conversation contract: an
// append-only transcript plus an auditable approval ledger, keyed by
// session id. Implementations must serialize mutations per session.
package convo

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a transcript message.
type Role string

// Role constants for transcript messages.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one transcript entry. Immutable once appended; insertion
// order is conversation order.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ApprovalStatus is the lifecycle state of an approval request.
type ApprovalStatus string

// Approval lifecycle states. Pending is the only initial state;
// approved and rejected are terminal.
const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

// Decision is a human verdict on a pending approval.
type Decision string

// Decision values accepted by Resolve.
const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Approval is one entry in the approval ledger. Created pending when a
// gated tool call is first requested, mutated exactly once by a human
// decision (or timeout-as-rejection), never deleted.
type Approval struct {
	ID            string          `json:"id"`
	ToolName      string          `json:"tool_name"`
	ToolArgs      json.RawMessage `json:"tool_args"`
	Reasoning     string          `json:"reasoning"`
	Status        ApprovalStatus  `json:"status"`
	HumanResponse string          `json:"human_response,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	DecidedAt     *time.Time      `json:"decided_at,omitempty"`
}

// State is the full conversation record for one session.
type State struct {
	Messages    []Message  `json:"messages"`
	Approvals   []Approval `json:"approvals"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUpdated time.Time  `json:"last_updated"`
}

// snapshotRecent is how many trailing messages a Snapshot carries.
const snapshotRecent = 5

// Snapshot is a deliberately truncated view of a session for cheap
// status polling: counts, timestamps, and the most recent messages.
type Snapshot struct {
	MessageCount  int       `json:"message_count"`
	PendingCount  int       `json:"pending_approvals"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdated   time.Time `json:"last_updated"`
	RecentHistory []Message `json:"recent_history"`
}

// Store is the session-keyed conversation store. All operations are scoped
// to a session id. Appends create the session lazily; read-only queries on
// an unknown session fail with ErrSessionNotFound. Implementations must be
// safe for concurrent use and must apply mutations to one session strictly
// one at a time.
type Store interface {
	// AppendMessage appends a message with a fresh timestamp and bumps
	// the session's LastUpdated. The session is created on first append.
	AppendMessage(sessionID string, role Role, content string) error

	// Snapshot returns the truncated status view for the session.
	Snapshot(sessionID string) (Snapshot, error)

	// History returns the complete message and approval sequences.
	History(sessionID string) (State, error)

	// AddApproval appends a pending approval with a fresh unique id and
	// returns that id. The session is created lazily if needed.
	AddApproval(sessionID, toolName string, toolArgs json.RawMessage, reasoning string) (string, error)

	// GetApproval returns the approval with the given id.
	GetApproval(sessionID, approvalID string) (Approval, error)

	// Resolve records a human decision on a pending approval, stamping
	// DecidedAt. Resolving an unknown id fails with ErrApprovalNotFound;
	// resolving an already-terminal approval fails with ErrApprovalResolved.
	Resolve(sessionID, approvalID string, decision Decision, humanResponse string) error

	// PendingApprovals returns approvals still awaiting a decision, in
	// creation order.
	PendingApprovals(sessionID string) ([]Approval, error)

	// Sessions returns the ids of all known sessions.
	Sessions() ([]string, error)

	// Purge removes all state for a session.
	Purge(sessionID string) error
}
