// internal/app/features/vouchers/routes.go
package vouchers

import (
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes serves /api/vouchers.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.With(sm.RequirePermission(CanView)).Get("/pool", h.ServePool)
	r.With(sm.RequirePermission(CanManage)).Post("/pool", h.HandleAdd)
	return r
}
