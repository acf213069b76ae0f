// internal/app/features/schedules/routes.go
package schedules

import (
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/authz"
	"github.com/go-chi/chi/v5"
)

func canManage(p authz.Permissions) bool { return p.CanManageSchedules }

// Routes serves /api/schedules.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.ServeList)
	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequirePermission(canManage))
		pr.Post("/", h.HandleCreate)
		pr.Delete("/{id}", h.HandleDelete)
	})
	return r
}
