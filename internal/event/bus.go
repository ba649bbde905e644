// Package event provides a small in-process pub/sub hub. The gateway's
// websocket feed, the start-turn pending detector, and the terminal
// approver all subscribe to it; the gate and engine publish into it.
package event

import (
	"sync"
	"time"

	"github.com/loopgate/loopgate/internal/convo"
)

// Type identifies the kind of event.
type Type string

// Event types published by the engine and gate.
const (
	TypeApprovalPending  Type = "approval.pending"
	TypeApprovalResolved Type = "approval.resolved"
	TypeTurnCompleted    Type = "turn.completed"
	TypeTurnFailed       Type = "turn.failed"
)

// Event is one notification. Approval is set on approval events; Reply on
// turn.completed.
type Event struct {
	Type      Type            `json:"type"`
	SessionID string          `json:"session_id"`
	Approval  *convo.Approval `json:"approval,omitempty"`
	Reply     string          `json:"reply,omitempty"`
	Error     string          `json:"error,omitempty"`
	Time      time.Time       `json:"time"`
}

// subscriberBuffer is the channel capacity per subscriber. A subscriber
// that falls further behind loses events rather than blocking publishers.
const subscriberBuffer = 32

// Bus fans events out to all current subscribers. Publishing never blocks.
type Bus struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber. The returned cancel func removes
// the subscription and closes the channel; it is safe to call twice.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber, stamping Time if unset.
// Slow subscribers are skipped, never waited on.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
