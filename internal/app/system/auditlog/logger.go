// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"fmt"

	"github.com/dalemusser/handspm/internal/app/store/syslog"
	"github.com/dalemusser/handspm/internal/app/system/authz"
	"github.com/dalemusser/handspm/internal/domain/models"
	"go.uber.org/zap"
)

// Actions recorded in the system log.
const (
	ActionRegister     = "系統註冊"
	ActionLogin        = "系統登入"
	ActionLoginFailed  = "登入失敗"
	ActionLogout       = "系統登出"
	ActionBroadcast    = "系統廣播"
	ActionReview       = "審核申請"
	ActionUserAdmin    = "人員管理"
	ActionInventory    = "庫存管理"
	ActionMaintenance  = "系統維護"
	ActionProjectAdmin = "專案管理"
)

// Modes for Config.Mode.
const (
	ModeAll = "all" // "logs" collection + zap
	ModeDB  = "db"
	ModeLog = "log"
	ModeOff = "off"
)

// Logger writes system log entries to the "logs" collection and/or zap.
// A nil *Logger is valid and does nothing.
type Logger struct {
	store  *syslog.Store
	zapLog *zap.Logger
	mode   string
}

// New creates a Logger. An empty mode means ModeAll.
func New(store *syslog.Store, zapLog *zap.Logger, mode string) *Logger {
	if mode == "" {
		mode = ModeAll
	}
	return &Logger{store: store, zapLog: zapLog, mode: mode}
}

// Record writes an entry. Failures are logged, never returned: the system
// log must not block the action it describes.
func (l *Logger) Record(ctx context.Context, action, details, userID, userName string) {
	if l == nil || l.mode == ModeOff {
		return
	}
	if l.mode == ModeAll || l.mode == ModeLog {
		l.zapLog.Info("system log",
			zap.Bool("audit", true),
			zap.String("action", action),
			zap.String("details", details),
			zap.String("user_id", userID),
			zap.String("user_name", userName))
	}
	if l.mode == ModeAll || l.mode == ModeDB {
		_, err := l.store.Append(ctx, models.LogEntry{
			Action:   action,
			Details:  details,
			UserID:   userID,
			UserName: userName,
		})
		if err != nil {
			l.zapLog.Error("failed to store system log entry",
				zap.Error(err),
				zap.String("action", action))
		}
	}
}

// As records an entry attributed to actor.
func (l *Logger) As(ctx context.Context, actor authz.Actor, action, details string) {
	l.Record(ctx, action, details, actor.UID, actor.DisplayName)
}

// Registered records a new account.
func (l *Logger) Registered(ctx context.Context, u models.User) {
	l.Record(ctx, ActionRegister, fmt.Sprintf("ID: %s, 權限: %s", u.EmployeeID, authz.RoleLabel(u.Role)), u.ID, u.DisplayName)
}

// LoginFailed records a failed sign-in. Only the attempted employee code is
// stored; the reason is never recorded.
func (l *Logger) LoginFailed(ctx context.Context, employeeID string) {
	l.Record(ctx, ActionLoginFailed, "ID: "+employeeID, "", "")
}

// LoggedIn records a successful sign-in.
func (l *Logger) LoggedIn(ctx context.Context, actor authz.Actor) {
	l.As(ctx, actor, ActionLogin, "ID: "+actor.EmployeeID)
}
