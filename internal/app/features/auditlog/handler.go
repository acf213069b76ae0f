// internal/app/features/auditlog/handler.go
package auditlog

import (
	"time"

	"github.com/dalemusser/handspm/internal/app/store/syslog"
	"go.uber.org/zap"
)

type Handler struct {
	Logs     *syslog.Store
	Location *time.Location
	Log      *zap.Logger
}

// NewHandler constructs a system log viewer. Date filters are read in loc.
func NewHandler(logs *syslog.Store, loc *time.Location, logger *zap.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		Logs:     logs,
		Location: loc,
		Log:      logger,
	}
}
