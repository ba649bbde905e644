package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/loopgate/loopgate/internal/engine"
)

// chatRequest is the body of POST /v1/chat.
type chatRequest struct {
	// SessionID continues an existing conversation. Empty starts a new one.
	SessionID string `json:"session_id"`

	Message string `json:"message"`

	// ApprovalTimeoutSeconds overrides the gate's decision deadline for
	// this turn. Zero keeps the default.
	ApprovalTimeoutSeconds int `json:"approval_timeout_seconds,omitempty"`
}

// handleChat starts a chat turn and waits up to WaitTimeout for it to
// finish. Turns parked on a human approval (or just slow) come back as a
// pending handle the client can poll via GET /v1/turns/{id}.
func (g *Gateway) handleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			http.Error(w, "message is required", http.StatusBadRequest)
			return
		}

		// Mint here rather than in the engine so the pending-approval
		// watcher knows the session id before the turn starts.
		sessionID := strings.TrimSpace(req.SessionID)
		newSession := sessionID == ""
		if newSession {
			sessionID = uuid.NewString()
		}

		opts := engine.TurnOptions{}
		if req.ApprovalTimeoutSeconds > 0 {
			opts.ApprovalTimeout = time.Duration(req.ApprovalTimeoutSeconds) * time.Second
		}

		turn := g.turns.Start(sessionID, req.Message, opts)

		wait := time.NewTimer(g.config.WaitTimeout)
		defer wait.Stop()

		select {
		case <-turn.Done():
			g.writeTurn(w, turn, newSession)
		case <-turn.ApprovalReady():
			writeTurnJSON(w, http.StatusAccepted, turn.View(), newSession)
		case <-wait.C:
			writeTurnJSON(w, http.StatusAccepted, turn.View(), newSession)
		case <-r.Context().Done():
			// Client went away; the turn keeps running and stays pollable.
		}
	}
}

// handleGetTurn reports the state of a tracked turn.
func (g *Gateway) handleGetTurn() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		turn, ok := g.turns.Get(id)
		if !ok {
			http.Error(w, "turn not found", http.StatusNotFound)
			return
		}

		view := turn.View()
		status := http.StatusOK
		if view.State == TurnRunning {
			status = http.StatusAccepted
		}
		writeJSON(w, status, view)
	}
}

// writeTurn renders a finished turn: 200 for success, 502 for failure.
func (g *Gateway) writeTurn(w http.ResponseWriter, turn *Turn, newSession bool) {
	view := turn.View()
	status := http.StatusOK
	if view.State == TurnFailed {
		status = http.StatusBadGateway
	}
	writeTurnJSON(w, status, view, newSession)
}

// turnResponse decorates a TurnView with session bookkeeping.
type turnResponse struct {
	TurnView
	NewSession bool `json:"new_session"`
}

func writeTurnJSON(w http.ResponseWriter, status int, view TurnView, newSession bool) {
	writeJSON(w, status, turnResponse{TurnView: view, NewSession: newSession})
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
