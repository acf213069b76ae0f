// internal/app/features/systemusers/routes.go
package systemusers

import (
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/authz"
	"github.com/go-chi/chi/v5"
)

func canManage(p authz.Permissions) bool { return p.CanManageUsers }

// Routes mounts all user routes under the path where this router is
// mounted (typically "/api/users" from bootstrap).
//
// Example mount from bootstrap:
//
//	h := systemusers.NewHandler(users, audit, logger)
//	r.Mount("/api/users", systemusers.Routes(h, sessionMgr))
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	// The directory itself is readable by everyone signed in.
	r.Get("/", h.ServeList)

	r.Group(func(pr chi.Router) {
		// Only user managers can change accounts.
		pr.Use(sm.RequirePermission(canManage))

		pr.Post("/", h.HandleCreate)
		pr.Patch("/{id}", h.HandleEdit)
		pr.Delete("/{id}", h.HandleDelete)
	})

	return r
}
