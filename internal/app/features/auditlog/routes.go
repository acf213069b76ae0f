// internal/app/features/auditlog/routes.go
package auditlog

import (
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/authz"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the system log viewer under the path where this router
// is mounted (typically "/api/logs" from bootstrap).
//
// Access is restricted to viewers with CanViewLogs.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)
		pr.Use(sm.RequirePermission(func(p authz.Permissions) bool { return p.CanViewLogs }))

		pr.Get("/", h.ServeList)
	})

	return r
}
