package convo

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sessionState holds the record for a single session.
type sessionState struct {
	messages    []Message
	approvals   []Approval
	createdAt   time.Time
	lastUpdated time.Time
}

// MemStore is a thread-safe, in-memory implementation of Store. The store
// mutex gives the one-mutator-at-a-time-per-session guarantee; the durable
// implementation lives in modules/store/sqlite.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
	now      func() time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		sessions: make(map[string]*sessionState),
		now:      time.Now,
	}
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

func (s *MemStore) getOrCreate(sessionID string) *sessionState {
	st, ok := s.sessions[sessionID]
	if !ok {
		now := s.now()
		st = &sessionState{createdAt: now, lastUpdated: now}
		s.sessions[sessionID] = st
	}
	return st
}

// AppendMessage appends a message with a fresh timestamp, creating the
// session lazily.
func (s *MemStore) AppendMessage(sessionID string, role Role, content string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.getOrCreate(sessionID)
	now := s.now()
	st.messages = append(st.messages, Message{Role: role, Content: content, Timestamp: now})
	st.lastUpdated = now
	return nil
}

// Snapshot returns the truncated status view for the session.
func (s *MemStore) Snapshot(sessionID string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}

	snap := Snapshot{
		MessageCount: len(st.messages),
		CreatedAt:    st.createdAt,
		LastUpdated:  st.lastUpdated,
	}
	for _, a := range st.approvals {
		if a.Status == StatusPending {
			snap.PendingCount++
		}
	}

	n := snapshotRecent
	if n > len(st.messages) {
		n = len(st.messages)
	}
	snap.RecentHistory = make([]Message, n)
	copy(snap.RecentHistory, st.messages[len(st.messages)-n:])
	return snap, nil
}

// History returns the complete message and approval sequences.
func (s *MemStore) History(sessionID string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		return State{}, ErrSessionNotFound
	}

	out := State{
		Messages:    make([]Message, len(st.messages)),
		Approvals:   make([]Approval, len(st.approvals)),
		CreatedAt:   st.createdAt,
		LastUpdated: st.lastUpdated,
	}
	copy(out.Messages, st.messages)
	copy(out.Approvals, st.approvals)
	return out, nil
}

// AddApproval appends a pending approval with a fresh unique id.
func (s *MemStore) AddApproval(sessionID, toolName string, toolArgs json.RawMessage, reasoning string) (string, error) {
	if sessionID == "" {
		return "", ErrEmptySessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.getOrCreate(sessionID)
	now := s.now()

	// Copy the raw args so callers cannot mutate the ledger afterwards.
	args := make(json.RawMessage, len(toolArgs))
	copy(args, toolArgs)

	a := Approval{
		ID:        uuid.NewString(),
		ToolName:  toolName,
		ToolArgs:  args,
		Reasoning: reasoning,
		Status:    StatusPending,
		CreatedAt: now,
	}
	st.approvals = append(st.approvals, a)
	st.lastUpdated = now
	return a.ID, nil
}

// GetApproval returns the approval with the given id.
func (s *MemStore) GetApproval(sessionID, approvalID string) (Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		return Approval{}, ErrSessionNotFound
	}
	for _, a := range st.approvals {
		if a.ID == approvalID {
			return a, nil
		}
	}
	return Approval{}, ErrApprovalNotFound
}

// Resolve records a human decision on a pending approval. The transition
// is strictly pending → approved|rejected; terminal approvals stay as
// decided.
func (s *MemStore) Resolve(sessionID, approvalID string, decision Decision, humanResponse string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	for i := range st.approvals {
		a := &st.approvals[i]
		if a.ID != approvalID {
			continue
		}
		if a.Status != StatusPending {
			return ErrApprovalResolved
		}

		now := s.now()
		switch decision {
		case DecisionApproved:
			a.Status = StatusApproved
		default:
			a.Status = StatusRejected
		}
		a.HumanResponse = humanResponse
		a.DecidedAt = &now
		st.lastUpdated = now
		return nil
	}
	return ErrApprovalNotFound
}

// PendingApprovals returns approvals still awaiting a decision.
func (s *MemStore) PendingApprovals(sessionID string) ([]Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	var pending []Approval
	for _, a := range st.approvals {
		if a.Status == StatusPending {
			pending = append(pending, a)
		}
	}
	return pending, nil
}

// Sessions returns the ids of all known sessions.
func (s *MemStore) Sessions() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

// Purge removes all state for a session.
func (s *MemStore) Purge(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
