// internal/app/features/systemusers/new.go
package systemusers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dalemusser/handspm/internal/app/features/apierr"
	userstore "github.com/dalemusser/handspm/internal/app/store/users"
	"github.com/dalemusser/handspm/internal/app/system/auditlog"
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/authz"
	"github.com/dalemusser/handspm/internal/app/system/timeouts"
)

// HandleCreate handles POST /api/users: an admin adds an account with an
// explicit role and initial password.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	var in userstore.UserInput
	if err := apierr.Decode(w, r, &in); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	u, err := h.Users.Create(ctx, in)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	h.AuditLog.As(ctx, *actor, auditlog.ActionUserAdmin,
		fmt.Sprintf("新增人員: %s (%s), 權限: %s", u.DisplayName, u.EmployeeID, authz.RoleLabel(u.Role)))
	apierr.JSON(w, http.StatusCreated, u)
}
