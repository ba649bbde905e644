package gateway

import (
	"net/http"
	"time"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime           time.Duration `json:"uptime_seconds"`
	Model            string        `json:"model"`
	Sessions         int           `json:"sessions"`
	PendingApprovals int           `json:"pending_approvals"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime: time.Since(g.startedAt).Truncate(time.Second),
			Model:  g.modelName,
		}

		if ids, err := g.store.Sessions(); err == nil {
			resp.Sessions = len(ids)
			for _, sid := range ids {
				if snap, err := g.store.Snapshot(sid); err == nil {
					resp.PendingApprovals += snap.PendingCount
				}
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
