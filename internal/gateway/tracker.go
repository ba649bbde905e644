package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loopgate/loopgate/internal/convo"
	"github.com/loopgate/loopgate/internal/engine"
	"github.com/loopgate/loopgate/internal/event"
)

// TurnState is the lifecycle of a tracked turn.
type TurnState string

// TurnState values.
const (
	TurnRunning   TurnState = "running"
	TurnCompleted TurnState = "completed"
	TurnFailed    TurnState = "failed"
)

// finishedRetention is how long a finished turn stays queryable.
const finishedRetention = 10 * time.Minute

// Turn is one tracked chat turn. The HTTP handler that started it may have
// detached; GET /v1/turns/{id} reads its current state.
type Turn struct {
	ID        string
	SessionID string

	mu         sync.Mutex
	state      TurnState
	result     engine.TurnResult
	err        error
	pending    *convo.Approval
	finishedAt time.Time

	// done closes when the turn finishes. approvalReady receives at most
	// one notification per pending approval observed on the bus.
	done          chan struct{}
	approvalReady chan struct{}
}

// TurnView is a copyable snapshot of a Turn for JSON responses.
type TurnView struct {
	ID        string                  `json:"turn_id"`
	SessionID string                  `json:"session_id"`
	State     TurnState               `json:"state"`
	Reply     string                  `json:"reply,omitempty"`
	ToolCalls []engine.ToolCallRecord `json:"tool_calls,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Approval  *convo.Approval         `json:"pending_approval,omitempty"`
}

// View returns the turn's current state as a snapshot.
func (t *Turn) View() TurnView {
	t.mu.Lock()
	defer t.mu.Unlock()

	v := TurnView{
		ID:        t.ID,
		SessionID: t.SessionID,
		State:     t.state,
		Approval:  t.pending,
	}
	switch t.state {
	case TurnCompleted:
		v.Reply = t.result.Reply
		v.ToolCalls = t.result.ToolCalls
		v.Approval = nil
	case TurnFailed:
		v.Error = t.err.Error()
		v.Approval = nil
	}
	return v
}

// Done returns the completion channel.
func (t *Turn) Done() <-chan struct{} { return t.done }

// ApprovalReady signals that a pending approval was observed for this
// turn's session.
func (t *Turn) ApprovalReady() <-chan struct{} { return t.approvalReady }

func (t *Turn) setPending(a *convo.Approval) {
	t.mu.Lock()
	t.pending = a
	t.mu.Unlock()
	select {
	case t.approvalReady <- struct{}{}:
	default:
	}
}

func (t *Turn) finish(res engine.TurnResult, err error) {
	t.mu.Lock()
	if err != nil {
		t.state = TurnFailed
		t.err = err
	} else {
		t.state = TurnCompleted
		t.result = res
	}
	t.pending = nil
	t.finishedAt = time.Now()
	t.mu.Unlock()
	close(t.done)
}

func (t *Turn) finished() (bool, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state != TurnRunning, t.finishedAt
}

// tracker owns in-flight and recently finished turns.
type tracker struct {
	runner TurnRunner
	bus    *event.Bus

	mu    sync.Mutex
	turns map[string]*Turn
}

func newTracker(runner TurnRunner, bus *event.Bus) *tracker {
	return &tracker{
		runner: runner,
		bus:    bus,
		turns:  make(map[string]*Turn),
	}
}

// Start launches a turn in the background and returns its handle. The turn
// runs on its own context so a detached HTTP client does not cancel it.
func (tr *tracker) Start(sessionID, message string, opts engine.TurnOptions) *Turn {
	t := &Turn{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		state:         TurnRunning,
		done:          make(chan struct{}),
		approvalReady: make(chan struct{}, 1),
	}

	tr.mu.Lock()
	tr.prune()
	tr.turns[t.ID] = t
	tr.mu.Unlock()

	// Watch the bus for this session's pending approvals while the turn
	// runs, so the chat handler can answer with the approval payload.
	if tr.bus != nil {
		ch, cancel := tr.bus.Subscribe()
		go func() {
			defer cancel()
			for {
				select {
				case ev, ok := <-ch:
					if !ok {
						return
					}
					if ev.Type == event.TypeApprovalPending && ev.SessionID == sessionID {
						t.setPending(ev.Approval)
					}
				case <-t.done:
					return
				}
			}
		}()
	}

	go func() {
		res, err := tr.runner.Turn(context.Background(), sessionID, message, opts)
		t.finish(res, err)
	}()

	return t
}

// Get returns a tracked turn by id.
func (tr *tracker) Get(id string) (*Turn, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	t, ok := tr.turns[id]
	return t, ok
}

// prune drops finished turns past retention. Caller holds tr.mu.
func (tr *tracker) prune() {
	cutoff := time.Now().Add(-finishedRetention)
	for id, t := range tr.turns {
		if done, at := t.finished(); done && at.Before(cutoff) {
			delete(tr.turns, id)
		}
	}
}
