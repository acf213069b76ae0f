// internal/app/features/live/routes.go
package live

import (
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the event stream (typically at "/api/live"). The stream
// must not sit behind the request timeout middleware.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.Get("/", h.ServeLive)
	return r
}
