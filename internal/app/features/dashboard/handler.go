// internal/app/features/dashboard/handler.go
package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/dalemusser/handspm/internal/app/dashboard"
	"github.com/dalemusser/handspm/internal/app/features/apierr"
	"github.com/dalemusser/handspm/internal/app/livesync"
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/docstore"
	"github.com/dalemusser/handspm/internal/app/system/timeouts"
	"go.uber.org/zap"
)

type Handler struct {
	DB  docstore.Backend
	Log *zap.Logger
	Now func() time.Time
}

func NewHandler(db docstore.Backend, logger *zap.Logger) *Handler {
	return &Handler{
		DB:  db,
		Log: logger,
		Now: time.Now,
	}
}

// ServeDashboard handles GET /api/dashboard: a one-shot summary computed
// from the same per-viewer projection the live view uses, so role rules
// are applied in one place.
func (h *Handler) ServeDashboard(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	snap, err := livesync.Load(ctx, h.DB, *actor, nil)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	sum, err := dashboard.Summarize(snap, *actor, h.Now())
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, sum)
}
