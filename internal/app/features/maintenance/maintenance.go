// internal/app/features/maintenance/maintenance.go
package maintenance

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dalemusser/handspm/internal/app/features/apierr"
	"github.com/dalemusser/handspm/internal/app/system/auditlog"
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/timeouts"
	"go.uber.org/zap"
)

type result struct {
	Deleted int64 `json:"deleted"`
}

// HandleClearLogs handles POST /api/maintenance/clear-logs. The entry
// recording the clear is written after it, so it survives.
func (h *Handler) HandleClearLogs(w http.ResponseWriter, r *http.Request) {
	h.clear(w, r, "系統日誌", h.Logs.Clear)
}

// HandleClearNotifications handles POST /api/maintenance/clear-notifications.
func (h *Handler) HandleClearNotifications(w http.ResponseWriter, r *http.Request) {
	h.clear(w, r, "所有通知", h.Notifications.ClearAll)
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request, what string, fn func(context.Context) (int64, error)) {
	actor, _ := auth.CurrentUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Maintenance(), h.Log, "maintenance clear")
	defer cancel()

	n, err := fn(ctx)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	h.Log.Info("maintenance clear", zap.String("target", what), zap.Int64("deleted", n), zap.String("by", actor.EmployeeID))
	h.AuditLog.As(ctx, *actor, auditlog.ActionMaintenance, fmt.Sprintf("清除%s: %d 筆", what, n))
	apierr.JSON(w, http.StatusOK, result{Deleted: n})
}
