// internal/app/features/login/handler.go
package login

// Terminology: User Identifiers
//   - UID / uid: the document ID of a user record; sessions and notifications key on it
//   - EmployeeID / employee_id: the human-readable code users type to sign in

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dalemusser/handspm/internal/app/features/apierr"
	"github.com/dalemusser/handspm/internal/app/features/userinfo"
	"github.com/dalemusser/handspm/internal/app/notify"
	userstore "github.com/dalemusser/handspm/internal/app/store/users"
	"github.com/dalemusser/handspm/internal/app/system/auditlog"
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/authz"
	"github.com/dalemusser/handspm/internal/app/system/ratelimit"
	"github.com/dalemusser/handspm/internal/app/system/timeouts"
	"github.com/dalemusser/handspm/internal/domain/models"
	"go.uber.org/zap"
)

type Handler struct {
	Users      *userstore.Store
	Notifier   *notify.Notifier
	AuditLog   *auditlog.Logger
	SessionMgr *auth.SessionManager
	Limiter    *ratelimit.LoginLimiter
	Log        *zap.Logger
}

func NewHandler(
	users *userstore.Store,
	notifier *notify.Notifier,
	audit *auditlog.Logger,
	sessionMgr *auth.SessionManager,
	limiter *ratelimit.LoginLimiter,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		Users:      users,
		Notifier:   notifier,
		AuditLog:   audit,
		SessionMgr: sessionMgr,
		Limiter:    limiter,
		Log:        logger,
	}
}

type loginRequest struct {
	EmployeeID string `json:"employee_id"`
	Password   string `json:"password"`
}

// WelcomeMessage is the first notification a new account receives.
func WelcomeMessage(u models.User) string {
	return fmt.Sprintf("歡迎！您的編號: %s, 權限: %s", u.EmployeeID, authz.RoleLabel(u.Role))
}

// HandleRegister handles POST /api/auth/register. The new account is
// signed in straight away.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in userstore.Registration
	if err := apierr.Decode(w, r, &in); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.Users.Register(ctx, in)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	h.Log.Info("user registered",
		zap.String("uid", u.ID),
		zap.String("employee_id", u.EmployeeID),
		zap.String("role", u.Role))

	// Delivery failures are queued for retry by the notifier.
	_ = h.Notifier.Notify(ctx, notify.NewEvent(models.NotificationSystem, WelcomeMessage(u), ""), u.ID)
	h.AuditLog.Registered(ctx, u)

	h.signIn(ctx, w, r, u)
	apierr.JSON(w, http.StatusCreated, userinfo.ProfileOf(authz.NewActor(u)))
}

// HandleLogin handles POST /api/auth/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := apierr.Decode(w, r, &in); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	if h.Limiter != nil {
		if ok, msg := h.Limiter.Check(r, in.EmployeeID); !ok {
			h.Log.Warn("login rate limited",
				zap.String("employee_id", in.EmployeeID),
				zap.String("ip", ratelimit.ClientIP(r)))
			apierr.Error(w, http.StatusTooManyRequests, msg)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.Users.Authenticate(ctx, in.EmployeeID, in.Password)
	if errors.Is(err, userstore.ErrInvalidCredentials) {
		h.AuditLog.LoginFailed(ctx, in.EmployeeID)
	}
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	if h.Limiter != nil {
		h.Limiter.ResetEmployee(in.EmployeeID)
	}
	h.signIn(ctx, w, r, u)
	actor := authz.NewActor(u)
	h.AuditLog.LoggedIn(ctx, actor)
	apierr.JSON(w, http.StatusOK, userinfo.ProfileOf(actor))
}

func (h *Handler) signIn(ctx context.Context, w http.ResponseWriter, r *http.Request, u models.User) {
	if err := h.SessionMgr.SignIn(w, r, u.ID); err != nil {
		h.Log.Error("save session", zap.String("uid", u.ID), zap.Error(err))
	}
	if err := h.Users.SetPresence(ctx, u.ID, true); err != nil {
		h.Log.Warn("set presence on login", zap.String("uid", u.ID), zap.Error(err))
	}
}
