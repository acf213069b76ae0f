// internal/app/features/requests/handler.go
package requests

import (
	"context"
	"net/http"

	"github.com/dalemusser/handspm/internal/app/features/apierr"
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/timeouts"
	"github.com/dalemusser/handspm/internal/app/workflow"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler exposes the three request workflows (point top-up, voucher,
// member change) under one URL scheme keyed by kind.
type Handler struct {
	Workflow *workflow.Service
	Log      *zap.Logger
}

func NewHandler(wf *workflow.Service, logger *zap.Logger) *Handler {
	return &Handler{Workflow: wf, Log: logger}
}

// kind resolves the {kind} URL parameter, answering 404 for unknown kinds.
func kind(w http.ResponseWriter, r *http.Request) (workflow.Kind, bool) {
	k, ok := workflow.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		apierr.Error(w, http.StatusNotFound, "未知的申請類型")
	}
	return k, ok
}

// ServeList handles GET /api/requests/{kind}. Users without the
// see-all permission get only their own requests.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)
	k, ok := kind(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	list, err := h.Workflow.List(ctx, *actor, k)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, list)
}

// HandleSubmit handles POST /api/requests/{kind}.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)
	k, ok := kind(w, r)
	if !ok {
		return
	}

	var in workflow.SubmitInput
	if err := apierr.Decode(w, r, &in); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	req, err := h.Workflow.Submit(ctx, *actor, k, in)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	apierr.JSON(w, http.StatusCreated, req)
}

type decisionRequest struct {
	Approve *bool `json:"approve"`
}

// HandleDecision handles POST /api/requests/{kind}/{id}/decision with
// body {"approve": true|false}. A voucher approval answers 409 with
// retryable=true when it lost every race for a pool entry.
func (h *Handler) HandleDecision(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)
	k, ok := kind(w, r)
	if !ok {
		return
	}

	var in decisionRequest
	if err := apierr.Decode(w, r, &in); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	if in.Approve == nil {
		apierr.JSON(w, http.StatusBadRequest, apierr.Response{Error: "請指定核准或駁回", Field: "approve"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	req, err := h.Workflow.Process(ctx, *actor, k, chi.URLParam(r, "id"), *in.Approve)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, req)
}

// HandleWithdraw handles DELETE /api/requests/{kind}/{id}. Only the
// requester may withdraw, and only while the request is pending.
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)
	k, ok := kind(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := h.Workflow.Withdraw(ctx, *actor, k, chi.URLParam(r, "id")); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
