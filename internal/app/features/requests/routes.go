// internal/app/features/requests/routes.go
package requests

import (
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes serves /api/requests. Approval permissions depend on the kind and
// are checked by the workflow service.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/{kind}", h.ServeList)
	r.Post("/{kind}", h.HandleSubmit)
	r.Post("/{kind}/{id}/decision", h.HandleDecision)
	r.Delete("/{kind}/{id}", h.HandleWithdraw)
	return r
}
