// internal/app/features/notifications/routes.go
package notifications

import (
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes serves /api/notifications.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.ServeList)
	r.Post("/{id}/read", h.HandleRead)
	return r
}
