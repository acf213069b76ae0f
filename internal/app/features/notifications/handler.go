// internal/app/features/notifications/handler.go
package notifications

import (
	"context"
	"net/http"

	"github.com/dalemusser/handspm/internal/app/features/apierr"
	notificationstore "github.com/dalemusser/handspm/internal/app/store/notifications"
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/timeouts"
	"github.com/dalemusser/handspm/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves the signed-in user's own notifications.
type Handler struct {
	Store *notificationstore.Store
	Log   *zap.Logger
}

func NewHandler(store *notificationstore.Store, logger *zap.Logger) *Handler {
	return &Handler{Store: store, Log: logger}
}

type listResponse struct {
	Unread int64                 `json:"unread"`
	Items  []models.Notification `json:"items"`
}

// ServeList handles GET /api/notifications, newest first.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	items, err := h.Store.ForUser(ctx, actor.UID)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	unread, err := h.Store.Unread(ctx, actor.UID)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, listResponse{Unread: unread, Items: items})
}

// HandleRead handles POST /api/notifications/{id}/read. Another user's
// notification answers 404.
func (h *Handler) HandleRead(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := h.Store.MarkRead(ctx, chi.URLParam(r, "id"), actor.UID); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
