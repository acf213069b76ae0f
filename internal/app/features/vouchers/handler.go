// internal/app/features/vouchers/handler.go
package vouchers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dalemusser/handspm/internal/app/features/apierr"
	voucherstore "github.com/dalemusser/handspm/internal/app/store/vouchers"
	"github.com/dalemusser/handspm/internal/app/system/auditlog"
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/authz"
	"github.com/dalemusser/handspm/internal/app/system/timeouts"
	"github.com/dalemusser/handspm/internal/domain/models"
	"go.uber.org/zap"
)

// Handler serves the voucher code inventory.
type Handler struct {
	Vouchers *voucherstore.Store
	AuditLog *auditlog.Logger
	Log      *zap.Logger
}

func NewHandler(vouchers *voucherstore.Store, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{Vouchers: vouchers, AuditLog: audit, Log: logger}
}

// CanView gates reading the pool: inventory managers and voucher
// approvers.
func CanView(p authz.Permissions) bool {
	return p.CanManageInventory || p.CanApproveVoucher
}

// CanManage gates adding codes.
func CanManage(p authz.Permissions) bool {
	return p.CanManageInventory
}

type poolResponse struct {
	Available int64                 `json:"available"`
	Entries   []models.VoucherEntry `json:"entries"`
}

// ServePool handles GET /api/vouchers/pool.
func (h *Handler) ServePool(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	entries, err := h.Vouchers.List(ctx)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	available, err := h.Vouchers.Available(ctx)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, poolResponse{Available: available, Entries: entries})
}

type addRequest struct {
	Codes string `json:"codes"`
}

type addResponse struct {
	Added int `json:"added"`
}

// HandleAdd handles POST /api/vouchers/pool with {"codes": "A,B\nC"}.
// Either every code is added or none is.
func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	var in addRequest
	if err := apierr.Decode(w, r, &in); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	n, err := h.Vouchers.AddCodes(ctx, in.Codes)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	h.AuditLog.As(ctx, *actor, auditlog.ActionInventory, fmt.Sprintf("新增電子券 %d 筆", n))
	apierr.JSON(w, http.StatusCreated, addResponse{Added: n})
}
