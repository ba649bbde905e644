package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/loopgate/loopgate/internal/convo"
	"github.com/loopgate/loopgate/internal/engine"
	"github.com/loopgate/loopgate/internal/event"
)

// fakeRunner is a configurable TurnRunner test double.
type fakeRunner struct {
	turnFunc    func(ctx context.Context, sessionID, message string, opts engine.TurnOptions) (engine.TurnResult, error)
	resolveFunc func(sessionID, approvalID string, decision convo.Decision, feedback string) error
}

func (f *fakeRunner) Turn(ctx context.Context, sessionID, message string, opts engine.TurnOptions) (engine.TurnResult, error) {
	if f.turnFunc == nil {
		return engine.TurnResult{SessionID: sessionID, Reply: "ok"}, nil
	}
	return f.turnFunc(ctx, sessionID, message, opts)
}

func (f *fakeRunner) ResolveApproval(sessionID, approvalID string, decision convo.Decision, feedback string) error {
	if f.resolveFunc == nil {
		return nil
	}
	return f.resolveFunc(sessionID, approvalID, decision, feedback)
}

// newTestGateway builds a gateway around a fake runner and a fresh store,
// returning the router for httptest-driven requests.
func newTestGateway(runner *fakeRunner, store convo.Store, bus *event.Bus, cfg Config) (*Gateway, http.Handler) {
	if store == nil {
		store = convo.NewMemStore()
	}
	g := New(Params{
		Config: cfg,
		Runner: runner,
		Store:  store,
		Bus:    bus,
	})
	return g, g.buildRouter()
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}
