// internal/app/features/maintenance/routes.go
package maintenance

import (
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/authz"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the maintenance actions. All of them require CanMaintain.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.Use(sm.RequirePermission(func(p authz.Permissions) bool { return p.CanMaintain }))

	r.Post("/clear-logs", h.HandleClearLogs)
	r.Post("/clear-notifications", h.HandleClearNotifications)
	return r
}
