// internal/app/features/login/routes.go
package login

import "github.com/go-chi/chi/v5"

// MountRoutes registers the anonymous auth endpoints. It is mounted under
// /api/auth next to logout and heartbeat.
func MountRoutes(r chi.Router, h *Handler) {
	r.Post("/register", h.HandleRegister)
	r.Post("/login", h.HandleLogin)
}
