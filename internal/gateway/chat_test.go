package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loopgate/loopgate/internal/convo"
	"github.com/loopgate/loopgate/internal/engine"
	"github.com/loopgate/loopgate/internal/event"
)

func postChat(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return do(h, req)
}

func TestChatCompletedWithinWait(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		turnFunc: func(_ context.Context, sessionID, message string, _ engine.TurnOptions) (engine.TurnResult, error) {
			return engine.TurnResult{SessionID: sessionID, Reply: "echo: " + message}, nil
		},
	}
	_, h := newTestGateway(runner, nil, nil, Config{})

	rr := postChat(t, h, `{"session_id":"s1","message":"hello"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}

	var resp struct {
		TurnID     string `json:"turn_id"`
		SessionID  string `json:"session_id"`
		State      string `json:"state"`
		Reply      string `json:"reply"`
		NewSession bool   `json:"new_session"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.State != string(TurnCompleted) || resp.Reply != "echo: hello" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.SessionID != "s1" || resp.NewSession {
		t.Errorf("session bookkeeping = %+v", resp)
	}
	if resp.TurnID == "" {
		t.Error("missing turn id")
	}
}

func TestChatMintsSessionID(t *testing.T) {
	t.Parallel()

	_, h := newTestGateway(&fakeRunner{}, nil, nil, Config{})

	rr := postChat(t, h, `{"message":"hi"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp struct {
		SessionID  string `json:"session_id"`
		NewSession bool   `json:"new_session"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.SessionID == "" || !resp.NewSession {
		t.Errorf("resp = %+v, want minted session", resp)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	t.Parallel()

	_, h := newTestGateway(&fakeRunner{}, nil, nil, Config{})

	if rr := postChat(t, h, `{"message":"  "}`); rr.Code != http.StatusBadRequest {
		t.Errorf("blank message: status = %d", rr.Code)
	}
	if rr := postChat(t, h, `not json`); rr.Code != http.StatusBadRequest {
		t.Errorf("bad body: status = %d", rr.Code)
	}
}

func TestChatDetachesOnPendingApproval(t *testing.T) {
	t.Parallel()

	bus := event.NewBus()
	release := make(chan struct{})
	approval := &convo.Approval{ID: "a1", ToolName: "makePayment", Status: convo.StatusPending}

	runner := &fakeRunner{
		turnFunc: func(_ context.Context, sessionID, _ string, _ engine.TurnOptions) (engine.TurnResult, error) {
			// Mimic the gate: announce the pending approval, then park.
			bus.Publish(event.Event{
				Type:      event.TypeApprovalPending,
				SessionID: sessionID,
				Approval:  approval,
			})
			<-release
			return engine.TurnResult{SessionID: sessionID, Reply: "done after approval"}, nil
		},
	}
	_, h := newTestGateway(runner, nil, bus, Config{WaitTimeout: 5 * time.Second})

	rr := postChat(t, h, `{"session_id":"s1","message":"pay up"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}

	var resp struct {
		TurnID   string          `json:"turn_id"`
		State    string          `json:"state"`
		Approval *convo.Approval `json:"pending_approval"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.State != string(TurnRunning) {
		t.Errorf("state = %q", resp.State)
	}
	if resp.Approval == nil || resp.Approval.ID != "a1" {
		t.Errorf("pending approval = %+v", resp.Approval)
	}

	// Releasing the turn makes the handle resolve.
	close(release)

	deadline := time.Now().Add(2 * time.Second)
	for {
		req := httptest.NewRequest(http.MethodGet, "/v1/turns/"+resp.TurnID, nil)
		rr := do(h, req)
		if rr.Code == http.StatusOK {
			if !strings.Contains(rr.Body.String(), "done after approval") {
				t.Fatalf("turn body = %s", rr.Body)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("turn never completed, last status %d", rr.Code)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestChatDetachesOnWaitTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	runner := &fakeRunner{
		turnFunc: func(_ context.Context, sessionID, _ string, _ engine.TurnOptions) (engine.TurnResult, error) {
			<-release
			return engine.TurnResult{SessionID: sessionID, Reply: "late"}, nil
		},
	}
	_, h := newTestGateway(runner, nil, nil, Config{WaitTimeout: 50 * time.Millisecond})
	defer close(release)

	rr := postChat(t, h, `{"session_id":"s1","message":"slow"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), string(TurnRunning)) {
		t.Errorf("body = %s", rr.Body)
	}
}

func TestChatFailedTurn(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		turnFunc: func(_ context.Context, sessionID, _ string, _ engine.TurnOptions) (engine.TurnResult, error) {
			return engine.TurnResult{SessionID: sessionID}, &engine.TurnError{
				Kind:    engine.FailureModelCall,
				Message: "provider unreachable",
			}
		},
	}
	_, h := newTestGateway(runner, nil, nil, Config{})

	rr := postChat(t, h, `{"session_id":"s1","message":"hi"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "model_call_failed") {
		t.Errorf("body = %s", rr.Body)
	}
}

func TestChatForwardsApprovalTimeout(t *testing.T) {
	t.Parallel()

	var got engine.TurnOptions
	runner := &fakeRunner{
		turnFunc: func(_ context.Context, sessionID, _ string, opts engine.TurnOptions) (engine.TurnResult, error) {
			got = opts
			return engine.TurnResult{SessionID: sessionID, Reply: "ok"}, nil
		},
	}
	_, h := newTestGateway(runner, nil, nil, Config{})

	rr := postChat(t, h, `{"session_id":"s1","message":"hi","approval_timeout_seconds":90}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got.ApprovalTimeout != 90*time.Second {
		t.Errorf("ApprovalTimeout = %s", got.ApprovalTimeout)
	}
}

func TestGetTurnUnknown(t *testing.T) {
	t.Parallel()

	_, h := newTestGateway(&fakeRunner{}, nil, nil, Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/turns/nope", nil)
	if rr := do(h, req); rr.Code != http.StatusNotFound {
		t.Errorf("status = %d", rr.Code)
	}
}
