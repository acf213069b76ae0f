// internal/app/features/systemusers/edit.go
package systemusers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/dalemusser/handspm/internal/app/features/apierr"
	userstore "github.com/dalemusser/handspm/internal/app/store/users"
	"github.com/dalemusser/handspm/internal/app/system/auditlog"
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/timeouts"
	"github.com/dalemusser/handspm/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// HandleEdit handles PATCH /api/users/{id}. A password field resets the
// user's password under the same length rule as registration.
func (h *Handler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)
	uid := chi.URLParam(r, "id")

	var upd userstore.UserUpdate
	if err := apierr.Decode(w, r, &upd); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	u, err := h.Users.Get(ctx, uid)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	// Guard: the last admin may not be demoted.
	if upd.Role != nil && *upd.Role != models.RoleAdmin && u.Role == models.RoleAdmin {
		if msg, err := h.lastAdminGuard(ctx); err != nil || msg != "" {
			h.refuse(w, msg, err)
			return
		}
	}

	after, err := h.Users.Update(ctx, uid, upd)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	h.AuditLog.As(ctx, *actor, auditlog.ActionUserAdmin,
		fmt.Sprintf("編輯人員: %s (%s)%s", after.DisplayName, after.EmployeeID, changeSummary(upd)))
	apierr.JSON(w, http.StatusOK, after)
}

// HandleDelete handles DELETE /api/users/{id}, enforcing safety guards
// (cannot delete self, cannot delete the last admin).
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)
	uid := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	u, err := h.Users.Get(ctx, uid)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	// Guard 1: prevent a user from deleting themself.
	if u.ID == actor.UID {
		h.refuse(w, "無法刪除自己的帳號", nil)
		return
	}

	// Guard 2: do not allow deleting the last admin.
	if u.Role == models.RoleAdmin {
		if msg, err := h.lastAdminGuard(ctx); err != nil || msg != "" {
			h.refuse(w, msg, err)
			return
		}
	}

	if err := h.Users.Delete(ctx, uid); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	h.AuditLog.As(ctx, *actor, auditlog.ActionUserAdmin, fmt.Sprintf("刪除人員: %s (%s)", u.DisplayName, u.EmployeeID))
	w.WriteHeader(http.StatusNoContent)
}

func changeSummary(upd userstore.UserUpdate) string {
	var parts []string
	if upd.Role != nil {
		parts = append(parts, "權限")
	}
	if upd.Department != nil {
		parts = append(parts, "部門")
	}
	if upd.Password != nil {
		parts = append(parts, "重設密碼")
	}
	if len(parts) == 0 {
		return ""
	}
	return ", " + strings.Join(parts, "/")
}
