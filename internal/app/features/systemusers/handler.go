// internal/app/features/systemusers/handler.go
package systemusers

import (
	userstore "github.com/dalemusser/handspm/internal/app/store/users"
	"github.com/dalemusser/handspm/internal/app/system/auditlog"
	"go.uber.org/zap"
)

// Handler serves the staff directory and its admin management.
type Handler struct {
	Users    *userstore.Store
	Log      *zap.Logger
	AuditLog *auditlog.Logger
}

// NewHandler constructs a System Users feature handler.
func NewHandler(users *userstore.Store, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Users:    users,
		Log:      logger,
		AuditLog: audit,
	}
}
