// internal/app/features/dashboard/routes.go
package dashboard

import (
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes wires the dashboard feature under whatever mount point
// the top-level router chooses (e.g., "/api/dashboard").
//
// What each viewer sees is decided by their permissions, not by a
// role-specific handler.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)
		pr.Get("/", h.ServeDashboard)
	})

	return r
}
