// internal/app/features/projects/routes.go
package projects

import (
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes serves /api/projects. Every endpoint needs a signed-in user;
// deletion is further restricted inside the handler.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.ServeList)
	r.Post("/", h.HandleCreate)
	r.Patch("/{id}", h.HandleUpdate)
	r.Delete("/{id}", h.HandleDelete)
	r.Get("/{id}/comments", h.ServeComments)
	r.Post("/{id}/comments", h.HandleComment)
	return r
}
