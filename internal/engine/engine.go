package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loopgate/loopgate/internal/convo"
	"github.com/loopgate/loopgate/internal/event"
	"github.com/loopgate/loopgate/internal/gate"
	"github.com/loopgate/loopgate/internal/metrics"
	"github.com/loopgate/loopgate/internal/provider"
	"github.com/loopgate/loopgate/internal/session"
	"github.com/loopgate/loopgate/internal/tool"
)

// Params assembles an Engine. Store, Registry, Gate, Sessions, and Caller
// are required; Bus, Metrics, and Logger are optional.
type Params struct {
	Caller   provider.Caller
	Registry *tool.Registry
	Gate     *gate.Gate
	Store    convo.Store
	Sessions *session.Manager
	Config   Config
	Bus      *event.Bus
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Engine orchestrates one user-message → assistant-message turn at a time
// per session. All collaborators are injected; there is no process-wide
// agent instance.
type Engine struct {
	caller   provider.Caller
	registry *tool.Registry
	gate     *gate.Gate
	store    convo.Store
	sessions *session.Manager
	config   Config
	bus      *event.Bus
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates an Engine from the given parameters.
func New(p Params) *Engine {
	p.Config.withDefaults()
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return &Engine{
		caller:   p.Caller,
		registry: p.Registry,
		gate:     p.Gate,
		store:    p.Store,
		sessions: p.Sessions,
		config:   p.Config,
		bus:      p.Bus,
		metrics:  p.Metrics,
		logger:   p.Logger,
		tracer:   otel.Tracer("github.com/loopgate/loopgate/internal/engine"),
	}
}

// Turn runs one chat turn. An empty sessionID starts a fresh session.
// Turns on the same session are serialized; sessions are independent.
func (e *Engine) Turn(ctx context.Context, sessionID, message string, opts TurnOptions) (TurnResult, error) {
	start := time.Now()

	sessionID, minted := e.sessions.Resolve(sessionID)
	unlock := e.sessions.Lock(sessionID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, e.config.TurnTimeout)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "chat.turn",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	res := TurnResult{SessionID: sessionID, NewSession: minted}

	if err := e.store.AppendMessage(sessionID, convo.RoleUser, message); err != nil {
		return res, e.fail(span, start, sessionID, FailureSessionStore, "storing user message", err)
	}

	msgs, err := e.buildMessages(sessionID)
	if err != nil {
		return res, e.fail(span, start, sessionID, FailureSessionStore, "reading history", err)
	}

	schemas := e.registry.Schemas()
	resp, err := e.complete(ctx, provider.Request{
		Messages:    msgs,
		Tools:       schemas,
		Temperature: e.config.Temperature,
		MaxTokens:   e.config.MaxTokens,
	})
	if err != nil {
		return res, e.fail(span, start, sessionID, classify(err), "first completion", err)
	}
	res.Usage = resp.Usage

	final := resp.Content
	if len(resp.ToolCalls) > 0 {
		records, toolMsgs, terr := e.processToolCalls(ctx, sessionID, resp, opts)
		if terr != nil {
			return res, e.fail(span, start, sessionID, classify(terr), "tool execution", terr)
		}
		res.ToolCalls = records

		followUp := append(msgs, provider.Message{
			Role:      provider.MessageRoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		followUp = append(followUp, toolMsgs...)

		second, err := e.complete(ctx, provider.Request{
			Messages:    followUp,
			Tools:       schemas,
			Temperature: e.config.Temperature,
			MaxTokens:   e.config.MaxTokens,
		})
		if err != nil {
			return res, e.fail(span, start, sessionID, classify(err), "final completion", err)
		}
		final = second.Content
		res.Usage = sumUsage(res.Usage, second.Usage)
	}

	if err := e.store.AppendMessage(sessionID, convo.RoleAssistant, final); err != nil {
		return res, e.fail(span, start, sessionID, FailureSessionStore, "storing assistant message", err)
	}

	res.Reply = final
	e.metrics.ObserveTurn("ok", time.Since(start))
	if e.bus != nil {
		e.bus.Publish(event.Event{Type: event.TypeTurnCompleted, SessionID: sessionID, Reply: final})
	}
	e.logger.Info("turn completed",
		"session_id", sessionID, "tool_calls", len(res.ToolCalls),
		"duration", time.Since(start))
	return res, nil
}

// ResolveApproval records a human decision into the matching approval
// request. This is the programmatic face of the decision channel; the
// gateway and the terminal approver both come through here.
func (e *Engine) ResolveApproval(sessionID, approvalID string, decision convo.Decision, feedback string) error {
	if decision != convo.DecisionApproved && decision != convo.DecisionRejected {
		return fmt.Errorf("invalid decision %q", decision)
	}
	if err := e.store.Resolve(sessionID, approvalID, decision, feedback); err != nil {
		return err
	}
	e.logger.Info("approval decision recorded",
		"session_id", sessionID, "approval_id", approvalID, "decision", decision)
	return nil
}

// processToolCalls runs the model's requested calls sequentially, in
// request order, so the transcript and approval trail stay deterministic.
func (e *Engine) processToolCalls(
	ctx context.Context,
	sessionID string,
	resp provider.Response,
	opts TurnOptions,
) ([]ToolCallRecord, []provider.Message, error) {
	records := make([]ToolCallRecord, 0, len(resp.ToolCalls))
	toolMsgs := make([]provider.Message, 0, len(resp.ToolCalls))

	for _, tc := range resp.ToolCalls {
		callCtx, span := e.tracer.Start(ctx, "tool.execute",
			trace.WithAttributes(attribute.String("tool.name", tc.Name)))

		result, err := e.runToolCall(callCtx, sessionID, tc, resp.Content, opts)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "tool call aborted turn")
			span.End()
			return nil, nil, err
		}
		span.End()

		records = append(records, ToolCallRecord{
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: tc.Arguments,
			Result:    result,
		})
		toolMsgs = append(toolMsgs, provider.Message{
			Role:    provider.MessageRoleTool,
			Content: result,
			ToolID:  tc.ID,
		})
	}
	return records, toolMsgs, nil
}

// runToolCall resolves one requested call to its textual result. Per-call
// failures (unknown tool, malformed arguments) become textual results so
// the turn can still reach the final completion; only store errors and
// cancellation abort.
func (e *Engine) runToolCall(
	ctx context.Context,
	sessionID string,
	tc provider.ToolCall,
	reasoning string,
	opts TurnOptions,
) (string, error) {
	args := map[string]any{}
	if len(tc.Arguments) > 0 {
		if err := json.Unmarshal(tc.Arguments, &args); err != nil {
			return fmt.Sprintf("Error executing %s: invalid arguments: %s", tc.Name, err), nil
		}
	}

	result, err := e.gate.Execute(ctx, sessionID, tc.Name, args, tc.Arguments, reasoning, opts.ApprovalTimeout)
	if err != nil {
		if errors.Is(err, tool.ErrToolNotFound) {
			return "Error: " + err.Error(), nil
		}
		return "", err
	}
	return result, nil
}

// buildMessages assembles the completion input from the stored transcript:
// the system prompt followed by the (optionally windowed) full history.
func (e *Engine) buildMessages(sessionID string) ([]provider.Message, error) {
	state, err := e.store.History(sessionID)
	if err != nil {
		return nil, err
	}

	history := state.Messages
	if w := e.config.HistoryWindow; w > 0 && len(history) > w {
		history = history[len(history)-w:]
	}

	msgs := make([]provider.Message, 0, len(history)+1)
	if e.config.SystemPrompt != "" {
		msgs = append(msgs, provider.Message{
			Role:    provider.MessageRoleSystem,
			Content: e.config.SystemPrompt,
		})
	}
	for _, m := range history {
		msgs = append(msgs, provider.Message{
			Role:    provider.MessageRole(m.Role),
			Content: m.Content,
		})
	}
	return msgs, nil
}

// complete wraps the model call in a span.
func (e *Engine) complete(ctx context.Context, req provider.Request) (provider.Response, error) {
	ctx, span := e.tracer.Start(ctx, "model.complete",
		trace.WithAttributes(
			attribute.String("model.name", e.caller.ModelName()),
			attribute.Int("messages", len(req.Messages)),
		))
	defer span.End()

	resp, err := e.caller.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return provider.Response{}, err
	}
	span.SetAttributes(attribute.Int("usage.total_tokens", resp.Usage.TotalTokens))
	return resp, nil
}

// fail builds the structured turn error, records it, and publishes the
// failure event.
func (e *Engine) fail(span trace.Span, start time.Time, sessionID string, kind FailureKind, msg string, err error) error {
	terr := &TurnError{Kind: kind, Message: msg, Timestamp: time.Now(), Err: err}
	span.RecordError(terr)
	span.SetStatus(codes.Error, string(kind))

	e.metrics.ObserveTurn(string(kind), time.Since(start))
	if e.bus != nil {
		e.bus.Publish(event.Event{Type: event.TypeTurnFailed, SessionID: sessionID, Error: terr.Error()})
	}
	e.logger.Error("turn failed",
		"session_id", sessionID, "kind", string(kind), "error", err)
	return terr
}

// classify maps a low-level error onto the turn failure taxonomy.
func classify(err error) FailureKind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FailureCanceled
	case errors.Is(err, convo.ErrSessionNotFound), errors.Is(err, convo.ErrApprovalNotFound):
		return FailureSessionStore
	default:
		return FailureModelCall
	}
}

func sumUsage(a, b provider.TokenUsage) provider.TokenUsage {
	return provider.TokenUsage{
		PromptTokens:     a.PromptTokens + b.PromptTokens,
		CompletionTokens: a.CompletionTokens + b.CompletionTokens,
		TotalTokens:      a.TotalTokens + b.TotalTokens,
	}
}
