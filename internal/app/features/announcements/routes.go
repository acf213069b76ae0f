// internal/app/features/announcements/routes.go
package announcements

import (
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/authz"
	"github.com/go-chi/chi/v5"
)

func canManage(p authz.Permissions) bool { return p.CanManageAnnouncements }
func canBroadcast(p authz.Permissions) bool { return p.CanBroadcast }

// MountRoutes mounts /announcements and /broadcast on the API router.
// Reading is open to every signed-in user; writes need the matching
// permission.
func (h *Handler) MountRoutes(r chi.Router, sm *auth.SessionManager) {
	r.Route("/announcements", func(ar chi.Router) {
		ar.Use(sm.RequireSignedIn)
		ar.Get("/", h.List)
		ar.With(sm.RequirePermission(canManage)).Post("/", h.Create)
		ar.With(sm.RequirePermission(canManage)).Delete("/{id}", h.Delete)
	})
	r.With(sm.RequirePermission(canBroadcast)).Post("/broadcast", h.Broadcast)
}
