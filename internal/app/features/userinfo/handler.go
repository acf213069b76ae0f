// internal/app/features/userinfo/handler.go
package userinfo

import (
	"net/http"

	"github.com/dalemusser/handspm/internal/app/features/apierr"
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/authz"
)

// Handler serves the signed-in user's identity.
type Handler struct{}

// NewHandler creates a new userinfo handler.
func NewHandler() *Handler {
	return &Handler{}
}

// Profile is the identity and capability set the client renders from.
type Profile struct {
	UID         string            `json:"uid"`
	EmployeeID  string            `json:"employee_id"`
	DisplayName string            `json:"display_name"`
	Department  string            `json:"department"`
	Email       string            `json:"email,omitempty"`
	Role        string            `json:"role"`
	RoleLabel   string            `json:"role_label"`
	Permissions authz.Permissions `json:"permissions"`
}

// ProfileOf builds the Profile for actor.
func ProfileOf(a authz.Actor) Profile {
	return Profile{
		UID:         a.UID,
		EmployeeID:  a.EmployeeID,
		DisplayName: a.DisplayName,
		Department:  a.Department,
		Email:       a.Email,
		Role:        a.Role,
		RoleLabel:   authz.RoleLabel(a.Role),
		Permissions: a.Perms,
	}
}

type response struct {
	IsAuthenticated bool     `json:"isAuthenticated"`
	User            *Profile `json:"user,omitempty"`
}

// ServeUserInfo handles GET /api/me.
//
//	{ "isAuthenticated": true, "user": { "uid": "...", "permissions": {...} } }
//
// Anonymous callers get 200 with isAuthenticated false.
func (h *Handler) ServeUserInfo(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentUser(r)
	if !ok {
		apierr.JSON(w, http.StatusOK, response{})
		return
	}
	p := ProfileOf(*actor)
	apierr.JSON(w, http.StatusOK, response{IsAuthenticated: true, User: &p})
}
