package gate_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loopgate/loopgate/internal/convo"
	"github.com/loopgate/loopgate/internal/event"
	"github.com/loopgate/loopgate/internal/gate"
	"github.com/loopgate/loopgate/internal/tool"
)

// newFixture builds a store, a registry with one gated and one ungated
// tool, and counters tracking executor invocations.
func newFixture(t *testing.T) (*convo.MemStore, *tool.Registry, *atomic.Int64, *atomic.Int64) {
	t.Helper()

	store := convo.NewMemStore()
	registry := tool.NewRegistry()

	var balanceCalls, paymentCalls atomic.Int64
	err := registry.Register(tool.Definition{
		Name: "checkBalance",
		Exec: func(context.Context, ...any) (string, error) {
			balanceCalls.Add(1)
			return "balance is 250", nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	err = registry.Register(tool.Definition{
		Name: "makePayment",
		Params: []tool.Param{
			{Name: "amount", Type: tool.TypeNumber},
		},
		Exec: func(context.Context, ...any) (string, error) {
			paymentCalls.Add(1)
			return "payment sent", nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	return store, registry, &balanceCalls, &paymentCalls
}

func newGate(store convo.Store, registry *tool.Registry, timeout time.Duration, bus *event.Bus) *gate.Gate {
	return gate.New(gate.Config{
		Store:        store,
		Registry:     registry,
		GatedTools:   []string{"makePayment"},
		PollInterval: 10 * time.Millisecond,
		Timeout:      timeout,
		Bus:          bus,
	})
}

func TestGateUngatedExecutesImmediately(t *testing.T) {
	t.Parallel()

	store, registry, balanceCalls, _ := newFixture(t)
	g := newGate(store, registry, time.Minute, nil)

	out, err := g.Execute(context.Background(), "s1", "checkBalance", nil, nil, "", 0)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "balance is 250" {
		t.Errorf("out = %q", out)
	}
	if balanceCalls.Load() != 1 {
		t.Errorf("executor ran %d times, want 1", balanceCalls.Load())
	}

	// No approval record (and thus no session) may exist for an ungated call.
	if state, err := store.History("s1"); err == nil && len(state.Approvals) != 0 {
		t.Errorf("ungated call created %d approvals", len(state.Approvals))
	}
}

func TestGateGatedCreatesApprovalBeforeExecution(t *testing.T) {
	t.Parallel()

	store, registry, _, paymentCalls := newFixture(t)
	g := newGate(store, registry, 200*time.Millisecond, nil)

	args := map[string]any{"amount": float64(100)}
	raw := json.RawMessage(`{"amount":100}`)

	done := make(chan string, 1)
	go func() {
		out, err := g.Execute(context.Background(), "s1", "makePayment", args, raw, "model wants to pay", 0)
		if err != nil {
			done <- "error: " + err.Error()
			return
		}
		done <- out
	}()

	// An approval request appears while the call is parked, before any
	// executor invocation.
	var pending []convo.Approval
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		p, err := store.PendingApprovals("s1")
		if err == nil && len(p) > 0 {
			pending = p
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(pending) != 1 {
		t.Fatalf("pending approvals = %d, want 1", len(pending))
	}
	if pending[0].ToolName != "makePayment" || pending[0].Status != convo.StatusPending {
		t.Errorf("approval = %+v", pending[0])
	}
	if paymentCalls.Load() != 0 {
		t.Fatal("executor ran before a decision")
	}

	if err := store.Resolve("s1", pending[0].ID, convo.DecisionApproved, "go ahead"); err != nil {
		t.Fatal(err)
	}

	out := <-done
	if !strings.HasPrefix(out, "[HUMAN APPROVED] ") {
		t.Errorf("out = %q, want [HUMAN APPROVED] prefix", out)
	}
	if !strings.Contains(out, "payment sent") {
		t.Errorf("out = %q, want wrapped tool result", out)
	}
	if paymentCalls.Load() != 1 {
		t.Errorf("executor ran %d times after approval, want 1", paymentCalls.Load())
	}
}

func TestGateRejectionSkipsExecutor(t *testing.T) {
	t.Parallel()

	store, registry, _, paymentCalls := newFixture(t)
	g := newGate(store, registry, time.Minute, nil)

	done := make(chan string, 1)
	go func() {
		out, _ := g.Execute(context.Background(), "s1", "makePayment", nil, nil, "", 0)
		done <- out
	}()

	var id string
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if p, err := store.PendingApprovals("s1"); err == nil && len(p) > 0 {
			id = p[0].ID
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if id == "" {
		t.Fatal("no pending approval appeared")
	}
	if err := store.Resolve("s1", id, convo.DecisionRejected, "not authorized"); err != nil {
		t.Fatal(err)
	}

	out := <-done
	if out != "[HUMAN REJECTED] not authorized" {
		t.Errorf("out = %q", out)
	}
	if paymentCalls.Load() != 0 {
		t.Error("executor ran despite rejection")
	}
}

func TestGateTimeoutResolvesAsRejection(t *testing.T) {
	t.Parallel()

	store, registry, _, paymentCalls := newFixture(t)
	g := newGate(store, registry, 50*time.Millisecond, nil)

	out, err := g.Execute(context.Background(), "s1", "makePayment", nil, nil, "", 0)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(out, "[TIMEOUT] ") {
		t.Errorf("out = %q, want [TIMEOUT] prefix", out)
	}
	if paymentCalls.Load() != 0 {
		t.Error("executor ran despite timeout")
	}

	// The ledger records the synthetic rejection for audit.
	state, err := store.History("s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(state.Approvals) != 1 {
		t.Fatalf("approvals = %d, want 1", len(state.Approvals))
	}
	a := state.Approvals[0]
	if a.Status != convo.StatusRejected {
		t.Errorf("status = %q, want rejected", a.Status)
	}
	if !strings.Contains(a.HumanResponse, "timed out") {
		t.Errorf("HumanResponse = %q, want timeout reason", a.HumanResponse)
	}
}

func TestGatePerCallTimeoutOverride(t *testing.T) {
	t.Parallel()

	store, registry, _, _ := newFixture(t)
	// Long default, short override: the call must still time out quickly.
	g := newGate(store, registry, time.Hour, nil)

	start := time.Now()
	out, err := g.Execute(context.Background(), "s1", "makePayment", nil, nil, "", 40*time.Millisecond)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(out, "[TIMEOUT] ") {
		t.Errorf("out = %q", out)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("override ignored, call took %s", elapsed)
	}
}

func TestGatePublishesApprovalEvents(t *testing.T) {
	t.Parallel()

	store, registry, _, _ := newFixture(t)
	bus := event.NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	g := newGate(store, registry, time.Minute, bus)

	go func() {
		_, _ = g.Execute(context.Background(), "s1", "makePayment", nil, nil, "needs sign-off", 0)
	}()

	select {
	case ev := <-ch:
		if ev.Type != event.TypeApprovalPending || ev.SessionID != "s1" {
			t.Fatalf("first event = %+v", ev)
		}
		if ev.Approval == nil || ev.Approval.ToolName != "makePayment" {
			t.Fatalf("event approval = %+v", ev.Approval)
		}
		if err := store.Resolve("s1", ev.Approval.ID, convo.DecisionApproved, ""); err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no approval.pending event")
	}

	select {
	case ev := <-ch:
		if ev.Type != event.TypeApprovalResolved {
			t.Fatalf("second event = %+v", ev)
		}
		if ev.Approval.Status != convo.StatusApproved {
			t.Errorf("resolved event status = %q", ev.Approval.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no approval.resolved event")
	}
}

func TestGateContextCancelAbortsWait(t *testing.T) {
	t.Parallel()

	store, registry, _, _ := newFixture(t)
	g := newGate(store, registry, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := g.Execute(ctx, "s1", "makePayment", nil, nil, "", 0)
		done <- err
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected context error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("gate did not observe cancellation")
	}
}
