// internal/app/features/heartbeat/routes.go
package heartbeat

import (
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers POST /heartbeat for signed-in users.
func MountRoutes(r chi.Router, h *Handler, sm *auth.SessionManager) {
	r.Group(func(pr chi.Router) {
		// Require user to be signed in
		pr.Use(sm.RequireSignedIn)
		pr.Post("/heartbeat", h.ServeHeartbeat)
	})
}
