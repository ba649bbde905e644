package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/loopgate/loopgate/internal/convo"
)

// sessionJSON is a serializable session snapshot.
type sessionJSON struct {
	ID               string    `json:"id"`
	Messages         int       `json:"messages"`
	PendingApprovals int       `json:"pending_approvals"`
	CreatedAt        time.Time `json:"created_at"`
	LastUpdated      time.Time `json:"last_updated"`
}

// handleListSessions returns all known sessions as JSON.
func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		ids, err := g.store.Sessions()
		if err != nil {
			http.Error(w, "listing sessions failed", http.StatusInternalServerError)
			return
		}

		sessions := make([]sessionJSON, 0, len(ids))
		for _, id := range ids {
			snap, err := g.store.Snapshot(id)
			if err != nil {
				// Purged between listing and reading; skip.
				continue
			}
			sessions = append(sessions, sessionJSON{
				ID:               id,
				Messages:         snap.MessageCount,
				PendingApprovals: snap.PendingCount,
				CreatedAt:        snap.CreatedAt,
				LastUpdated:      snap.LastUpdated,
			})
		}

		writeJSON(w, http.StatusOK, sessions)
	}
}

// handleGetSession returns a session's full transcript and approval ledger.
func (g *Gateway) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		state, err := g.store.History(id)
		if err != nil {
			if errors.Is(err, convo.ErrSessionNotFound) {
				http.Error(w, "session not found", http.StatusNotFound)
				return
			}
			http.Error(w, "reading session failed", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, state)
	}
}

// handleDeleteSession purges a session's transcript and approval ledger.
func (g *Gateway) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		// Purge is idempotent, so probe first to give unknown ids a 404.
		if _, err := g.store.Snapshot(id); err != nil {
			if errors.Is(err, convo.ErrSessionNotFound) {
				http.Error(w, "session not found", http.StatusNotFound)
				return
			}
			http.Error(w, "reading session failed", http.StatusInternalServerError)
			return
		}
		if err := g.store.Purge(id); err != nil {
			http.Error(w, "deleting session failed", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
