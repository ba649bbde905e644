// Package terminal provides an interactive approver that watches the
// event bus and prompts the operator on the controlling terminal
// whenever a gated tool call is waiting for a decision.
package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/charmbracelet/huh"

	"github.com/loopgate/loopgate/internal/convo"
	"github.com/loopgate/loopgate/internal/event"
)

// Resolver records a human decision on a pending approval.
type Resolver interface {
	ResolveApproval(sessionID, approvalID string, decision convo.Decision, feedback string) error
}

// Approver prompts on the terminal for each pending approval event.
type Approver struct {
	resolver Resolver
	bus      *event.Bus
	logger   *slog.Logger

	// prompt is swapped out in tests.
	prompt func(ctx context.Context, a *convo.Approval) (convo.Decision, string, error)
}

// New creates an Approver reading events from bus and resolving through r.
func New(r Resolver, bus *event.Bus, logger *slog.Logger) *Approver {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Approver{resolver: r, bus: bus, logger: logger}
	a.prompt = a.promptForm
	return a
}

// Run consumes approval events until ctx is canceled. Prompts are handled
// one at a time; events arriving while a prompt is open queue on the bus
// subscription.
func (a *Approver) Run(ctx context.Context) error {
	ch, cancel := a.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if ev.Type != event.TypeApprovalPending || ev.Approval == nil {
				continue
			}
			a.handle(ctx, ev.SessionID, ev.Approval)
		}
	}
}

func (a *Approver) handle(ctx context.Context, sessionID string, approval *convo.Approval) {
	decision, feedback, err := a.prompt(ctx, approval)
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			a.logger.Info("approval prompt dismissed",
				"session_id", sessionID, "approval_id", approval.ID)
			return
		}
		a.logger.Error("approval prompt failed",
			"approval_id", approval.ID, "error", err)
		return
	}

	err = a.resolver.ResolveApproval(sessionID, approval.ID, decision, feedback)
	switch {
	case err == nil:
		a.logger.Info("approval decided on terminal",
			"session_id", sessionID, "approval_id", approval.ID, "decision", decision)
	case errors.Is(err, convo.ErrApprovalResolved):
		// Decided elsewhere while the prompt was open; the first decision stands.
		a.logger.Info("approval already decided",
			"session_id", sessionID, "approval_id", approval.ID)
	default:
		a.logger.Error("resolve approval failed",
			"approval_id", approval.ID, "error", err)
	}
}

// promptForm renders the interactive approve/reject form.
func (a *Approver) promptForm(ctx context.Context, approval *convo.Approval) (convo.Decision, string, error) {
	var decision string
	var feedback string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Tool %q requests approval", approval.ToolName)).
				Description(describeCall(approval)).
				Options(
					huh.NewOption("Approve", string(convo.DecisionApproved)),
					huh.NewOption("Reject", string(convo.DecisionRejected)),
				).
				Value(&decision),
			huh.NewInput().
				Title("Feedback (optional)").
				Value(&feedback),
		),
	)

	if err := form.RunWithContext(ctx); err != nil {
		return "", "", err
	}
	return convo.Decision(decision), feedback, nil
}

// describeCall formats the tool arguments and reasoning for the prompt.
func describeCall(approval *convo.Approval) string {
	args := string(approval.ToolArgs)
	if compact, err := compactJSON(approval.ToolArgs); err == nil {
		args = compact
	}
	if approval.Reasoning == "" {
		return "args: " + args
	}
	return fmt.Sprintf("args: %s\nreasoning: %s", args, approval.Reasoning)
}

func compactJSON(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
