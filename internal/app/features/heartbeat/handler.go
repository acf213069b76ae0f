// internal/app/features/heartbeat/handler.go
package heartbeat

import (
	"context"
	"net/http"

	userstore "github.com/dalemusser/handspm/internal/app/store/users"
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Handler keeps a signed-in user's presence fresh.
type Handler struct {
	Users *userstore.Store
	Log   *zap.Logger
}

// NewHandler creates a new heartbeat handler.
func NewHandler(users *userstore.Store, logger *zap.Logger) *Handler {
	return &Handler{Users: users, Log: logger}
}

// ServeHeartbeat handles POST /api/auth/heartbeat.
// Marks the user online and refreshes last_active; users who stop sending
// heartbeats are swept offline by the presence job.
func (h *Handler) ServeHeartbeat(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := h.Users.SetPresence(ctx, actor.UID, true); err != nil {
		// Silent for the client; the next heartbeat tries again.
		h.Log.Warn("heartbeat: set presence",
			zap.String("uid", actor.UID),
			zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}
