package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loopgate/loopgate/internal/convo"
)

// handleListApprovals returns the session's approvals still awaiting a
// decision, oldest first.
func (g *Gateway) handleListApprovals() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		pending, err := g.store.PendingApprovals(sessionID)
		if err != nil {
			if errors.Is(err, convo.ErrSessionNotFound) {
				http.Error(w, "session not found", http.StatusNotFound)
				return
			}
			http.Error(w, "listing approvals failed", http.StatusInternalServerError)
			return
		}
		if pending == nil {
			pending = []convo.Approval{}
		}
		writeJSON(w, http.StatusOK, pending)
	}
}

// decisionRequest is the body of POST /v1/sessions/{sessionID}/approvals/{id}.
type decisionRequest struct {
	// Decision is "approved" or "rejected".
	Decision string `json:"decision"`

	// Feedback is the human's note, surfaced to the model on rejection.
	Feedback string `json:"feedback,omitempty"`
}

// handleDecideApproval records a human verdict on a pending approval.
// Deciding an approval that already has a verdict is a conflict; the first
// decision stands.
func (g *Gateway) handleDecideApproval() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		approvalID := chi.URLParam(r, "approvalID")

		var req decisionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		decision := convo.Decision(req.Decision)
		if decision != convo.DecisionApproved && decision != convo.DecisionRejected {
			http.Error(w, `decision must be "approved" or "rejected"`, http.StatusBadRequest)
			return
		}

		err := g.runner.ResolveApproval(sessionID, approvalID, decision, req.Feedback)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]string{
				"approval_id": approvalID,
				"status":      string(decision),
			})
		case errors.Is(err, convo.ErrApprovalResolved):
			http.Error(w, "approval already decided", http.StatusConflict)
		case errors.Is(err, convo.ErrApprovalNotFound), errors.Is(err, convo.ErrSessionNotFound):
			http.Error(w, "approval not found", http.StatusNotFound)
		default:
			g.logger.Error("approval decision failed",
				"session_id", sessionID, "approval_id", approvalID, "error", err)
			http.Error(w, "recording decision failed", http.StatusInternalServerError)
		}
	}
}
