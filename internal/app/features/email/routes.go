// internal/app/features/email/routes.go
package email

import (
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/authz"
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.With(sm.RequirePermission(func(p authz.Permissions) bool { return p.CanSendEmail })).
		Post("/", h.HandleSend)
	return r
}
