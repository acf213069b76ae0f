// internal/app/features/logout/routes.go
package logout

import (
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers POST /logout for signed-in users.
func MountRoutes(r chi.Router, h *Handler, sm *auth.SessionManager) {
	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)
		pr.Post("/logout", h.ServeLogout)
	})
}
