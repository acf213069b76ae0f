// internal/app/features/systemusers/helpers.go
package systemusers

import (
	"context"
	"net/http"

	"github.com/dalemusser/handspm/internal/app/features/apierr"
)

/*
lastAdminGuard returns a refusal message when removing admin rights from
one more account would leave the system without an admin.

Callers pass in a context with an appropriate timeout.
*/
func (h *Handler) lastAdminGuard(ctx context.Context) (string, error) {
	n, err := h.Users.CountAdmins(ctx)
	if err != nil {
		return "", err
	}
	if n <= 1 {
		return "系統至少需要一位管理員", nil
	}
	return "", nil
}

// refuse answers a guard failure: 409 with msg, or the error if the
// guard itself failed.
func (h *Handler) refuse(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	apierr.Error(w, http.StatusConflict, msg)
}
