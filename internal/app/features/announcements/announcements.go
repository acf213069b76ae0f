// internal/app/features/announcements/announcements.go
package announcements

import (
	"context"
	"net/http"

	"github.com/dalemusser/handspm/internal/app/features/apierr"
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// List handles GET /api/announcements, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	list, err := h.Store.List(ctx)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, list)
}

type createRequest struct {
	Content string `json:"content"`
}

// Create handles POST /api/announcements. Content is sanitized HTML.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	var in createRequest
	if err := apierr.Decode(w, r, &in); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	a, err := h.Store.Create(ctx, in.Content, actor.EmployeeID, actor.DisplayName)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	h.Log.Info("announcement created",
		zap.String("id", a.ID),
		zap.String("by", actor.EmployeeID))
	apierr.JSON(w, http.StatusCreated, a)
}

// Delete handles DELETE /api/announcements/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := h.Store.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type broadcastRequest struct {
	Message string `json:"message"`
}

type broadcastResponse struct {
	Delivered int `json:"delivered"`
}

// Broadcast handles POST /api/broadcast: every user receives the message
// as a notification. Partial delivery still answers 200 with the count;
// the failed writes sit in the retry queue.
func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	var in broadcastRequest
	if err := apierr.Decode(w, r, &in); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	n, err := h.Notifier.Broadcast(ctx, *actor, in.Message)
	if err != nil && n == 0 {
		apierr.Write(w, h.Log, err)
		return
	}
	if err != nil {
		h.Log.Warn("broadcast partially delivered", zap.Int("delivered", n), zap.Error(err))
	}
	apierr.JSON(w, http.StatusOK, broadcastResponse{Delivered: n})
}
