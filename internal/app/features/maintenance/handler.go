// internal/app/features/maintenance/handler.go
package maintenance

import (
	"context"

	"github.com/dalemusser/handspm/internal/app/system/auditlog"
	"go.uber.org/zap"
)

// LogClearer empties the system log.
type LogClearer interface {
	Clear(ctx context.Context) (int64, error)
}

// NotificationClearer empties every user's notifications.
type NotificationClearer interface {
	ClearAll(ctx context.Context) (int64, error)
}

// Handler owns the admin maintenance actions.
type Handler struct {
	Logs          LogClearer
	Notifications NotificationClearer
	AuditLog      *auditlog.Logger
	Log           *zap.Logger
}

// NewHandler constructs a Handler over the log and notification stores.
func NewHandler(logs LogClearer, notes NotificationClearer, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Logs:          logs,
		Notifications: notes,
		AuditLog:      audit,
		Log:           logger,
	}
}
