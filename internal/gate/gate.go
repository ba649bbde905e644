// Package gate implements the human-approval gate. Tool calls whose names
// are in the configured gated set pause until a human decision arrives in
// the conversation store (written by the HTTP decision endpoint, the
// terminal approver, or the sweeper); everything else executes directly.
//
// The gate polls the store because the store is the only decision channel:
// whoever records the verdict does so out-of-band, against the same
// per-session ledger the gate is watching. Each poll cycle yields to the
// scheduler and holds no lock while waiting.
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/loopgate/loopgate/internal/convo"
	"github.com/loopgate/loopgate/internal/event"
	"github.com/loopgate/loopgate/internal/metrics"
	"github.com/loopgate/loopgate/internal/tool"
)

// Defaults for the approval wait.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultTimeout      = 30 * time.Minute
)

// timeoutReason is recorded on approvals the gate expires.
const timeoutReason = "timed out waiting for human approval"

// Config assembles a Gate.
type Config struct {
	Store    convo.Store
	Registry *tool.Registry

	// GatedTools is the set of tool names requiring human sign-off.
	// Fixed at construction; the gate never mutates it.
	GatedTools []string

	// PollInterval is how often the store is re-read while waiting.
	PollInterval time.Duration

	// Timeout is the default absolute deadline for a decision. A zero
	// per-call override in Execute falls back to this.
	Timeout time.Duration

	Bus     *event.Bus       // optional
	Metrics *metrics.Metrics // optional
	Logger  *slog.Logger
}

// Gate decides per tool call whether execution needs a human decision and
// blocks gated calls until one arrives or the deadline passes.
type Gate struct {
	store    convo.Store
	registry *tool.Registry
	gated    map[string]struct{}
	interval time.Duration
	timeout  time.Duration
	bus      *event.Bus
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates a Gate from the given configuration.
func New(cfg Config) *Gate {
	gated := make(map[string]struct{}, len(cfg.GatedTools))
	for _, name := range cfg.GatedTools {
		gated[name] = struct{}{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gate{
		store:    cfg.Store,
		registry: cfg.Registry,
		gated:    gated,
		interval: cfg.PollInterval,
		timeout:  cfg.Timeout,
		bus:      cfg.Bus,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		tracer:   otel.Tracer("github.com/loopgate/loopgate/internal/gate"),
	}
}

// Gated reports whether the named tool requires human approval.
func (g *Gate) Gated(name string) bool {
	_, ok := g.gated[name]
	return ok
}

// Execute routes one tool call. Ungated tools go straight to the registry.
// Gated tools create an approval request and wait for its resolution:
// approved results are wrapped as "[HUMAN APPROVED] <result>", rejections
// and timeouts produce synthetic failure-shaped results without ever
// invoking the executor. timeout == 0 uses the gate default.
//
// The returned error is non-nil only for failures that should abort the
// turn (store errors, context cancellation) or for tool.ErrToolNotFound.
func (g *Gate) Execute(
	ctx context.Context,
	sessionID, name string,
	args map[string]any,
	rawArgs json.RawMessage,
	reasoning string,
	timeout time.Duration,
) (string, error) {
	if !g.Gated(name) {
		return g.run(ctx, name, args)
	}
	if timeout <= 0 {
		timeout = g.timeout
	}

	approvalID, err := g.store.AddApproval(sessionID, name, rawArgs, reasoning)
	if err != nil {
		return "", fmt.Errorf("gate: create approval request: %w", err)
	}
	g.metrics.ObserveApprovalCreated()
	g.logger.Info("approval requested",
		"session_id", sessionID, "approval_id", approvalID, "tool", name)

	if g.bus != nil {
		if a, err := g.store.GetApproval(sessionID, approvalID); err == nil {
			g.bus.Publish(event.Event{
				Type:      event.TypeApprovalPending,
				SessionID: sessionID,
				Approval:  &a,
			})
		}
	}

	return g.await(ctx, sessionID, name, args, approvalID, timeout)
}

// await polls the store until the approval leaves pending or the deadline
// passes. On deadline it marks the request rejected with a timeout reason.
func (g *Gate) await(
	ctx context.Context,
	sessionID, name string,
	args map[string]any,
	approvalID string,
	timeout time.Duration,
) (string, error) {
	ctx, span := g.tracer.Start(ctx, "approval.wait",
		trace.WithAttributes(
			attribute.String("approval.id", approvalID),
			attribute.String("tool.name", name)))
	defer span.End()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		a, err := g.store.GetApproval(sessionID, approvalID)
		if err != nil {
			return "", fmt.Errorf("gate: read approval %s: %w", approvalID, err)
		}
		if a.Status != convo.StatusPending {
			return g.settle(ctx, sessionID, name, args, a)
		}

		if time.Now().After(deadline) {
			err := g.store.Resolve(sessionID, approvalID, convo.DecisionRejected, timeoutReason)
			if err == nil {
				g.metrics.ObserveApprovalResolved("timeout")
				g.publishResolved(sessionID, approvalID)
				g.logger.Warn("approval timed out",
					"session_id", sessionID, "approval_id", approvalID, "tool", name)
				return fmt.Sprintf("[TIMEOUT] approval request for %s timed out after %s", name, timeout), nil
			}
			// A decision raced the deadline; honor whatever won.
			a, rerr := g.store.GetApproval(sessionID, approvalID)
			if rerr != nil {
				return "", fmt.Errorf("gate: read approval %s: %w", approvalID, rerr)
			}
			return g.settle(ctx, sessionID, name, args, a)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// settle converts a terminal approval into the call's textual result.
// The executor runs iff the decision was approved.
func (g *Gate) settle(
	ctx context.Context,
	sessionID, name string,
	args map[string]any,
	a convo.Approval,
) (string, error) {
	g.publishResolved(sessionID, a.ID)

	if a.Status == convo.StatusApproved {
		g.metrics.ObserveApprovalResolved("approved")
		out, err := g.run(ctx, name, args)
		if err != nil {
			return "", err
		}
		return "[HUMAN APPROVED] " + out, nil
	}

	if a.HumanResponse == timeoutReason {
		g.metrics.ObserveApprovalResolved("timeout")
		return fmt.Sprintf("[TIMEOUT] approval request for %s %s", name, timeoutReason), nil
	}

	g.metrics.ObserveApprovalResolved("rejected")
	reason := a.HumanResponse
	if reason == "" {
		reason = "rejected by human operator"
	}
	return "[HUMAN REJECTED] " + reason, nil
}

// run executes through the registry and records the tool outcome.
func (g *Gate) run(ctx context.Context, name string, args map[string]any) (string, error) {
	out, err := g.registry.Execute(ctx, name, args)
	switch {
	case err != nil:
		g.metrics.ObserveTool(name, "not_found")
		return "", err
	case isContained(out, name):
		g.metrics.ObserveTool(name, "error")
	default:
		g.metrics.ObserveTool(name, "ok")
	}
	return out, nil
}

// isContained reports whether out is a registry-contained executor failure.
func isContained(out, name string) bool {
	prefix := "Error executing " + name + ": "
	return len(out) >= len(prefix) && out[:len(prefix)] == prefix
}

func (g *Gate) publishResolved(sessionID, approvalID string) {
	if g.bus == nil {
		return
	}
	if a, err := g.store.GetApproval(sessionID, approvalID); err == nil {
		g.bus.Publish(event.Event{
			Type:      event.TypeApprovalResolved,
			SessionID: sessionID,
			Approval:  &a,
		})
	}
}
