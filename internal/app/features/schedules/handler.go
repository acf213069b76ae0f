// internal/app/features/schedules/handler.go
package schedules

import (
	"context"
	"net/http"

	"github.com/dalemusser/handspm/internal/app/features/apierr"
	schedulestore "github.com/dalemusser/handspm/internal/app/store/schedules"
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves the promotional calendar.
type Handler struct {
	Store *schedulestore.Store
	Log   *zap.Logger
}

func NewHandler(store *schedulestore.Store, logger *zap.Logger) *Handler {
	return &Handler{Store: store, Log: logger}
}

// ServeList handles GET /api/schedules in start-date order.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	list, err := h.Store.List(ctx)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, list)
}

// HandleCreate handles POST /api/schedules. Overlapping windows are
// rejected with 400.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	var in schedulestore.Input
	if err := apierr.Decode(w, r, &in); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	s, err := h.Store.Create(ctx, in)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	h.Log.Info("schedule created",
		zap.String("id", s.ID),
		zap.String("name", s.Name),
		zap.String("by", actor.EmployeeID))
	apierr.JSON(w, http.StatusCreated, s)
}

// HandleDelete handles DELETE /api/schedules/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := h.Store.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
