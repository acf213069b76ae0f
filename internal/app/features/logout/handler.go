// internal/app/features/logout/handler.go
package logout

import (
	"context"
	"net/http"

	userstore "github.com/dalemusser/handspm/internal/app/store/users"
	"github.com/dalemusser/handspm/internal/app/system/auditlog"
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/timeouts"
	"go.uber.org/zap"
)

type Handler struct {
	Users      *userstore.Store
	AuditLog   *auditlog.Logger
	SessionMgr *auth.SessionManager
	Log        *zap.Logger
}

func NewHandler(users *userstore.Store, audit *auditlog.Logger, sessionMgr *auth.SessionManager, logger *zap.Logger) *Handler {
	return &Handler{
		Users:      users,
		AuditLog:   audit,
		SessionMgr: sessionMgr,
		Log:        logger,
	}
}

// ServeLogout handles POST /api/auth/logout. The user is marked offline
// and the session cookie expired.
func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := h.Users.SetPresence(ctx, actor.UID, false); err != nil {
		h.Log.Warn("logout: clear presence", zap.String("uid", actor.UID), zap.Error(err))
	}
	h.AuditLog.As(ctx, *actor, auditlog.ActionLogout, "ID: "+actor.EmployeeID)

	if err := h.SessionMgr.SignOut(w, r); err != nil {
		h.Log.Error("logout: save session", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}
