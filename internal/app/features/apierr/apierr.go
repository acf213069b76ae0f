// Package apierr writes JSON responses and maps domain errors onto HTTP
// statuses for every API handler.
package apierr

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	announcementstore "github.com/dalemusser/handspm/internal/app/store/announcements"
	notificationstore "github.com/dalemusser/handspm/internal/app/store/notifications"
	projectstore "github.com/dalemusser/handspm/internal/app/store/projects"
	schedulestore "github.com/dalemusser/handspm/internal/app/store/schedules"
	userstore "github.com/dalemusser/handspm/internal/app/store/users"
	"github.com/dalemusser/handspm/internal/app/system/docstore"
	"github.com/dalemusser/handspm/internal/app/system/inputval"
	"github.com/dalemusser/handspm/internal/app/workflow"
	"go.uber.org/zap"
)

// MaxBody caps JSON request bodies.
const MaxBody = 1 << 20

// Response is the error body every handler returns.
type Response struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// JSON writes v with status.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes a plain error message.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, Response{Error: msg})
}

// Decode reads a JSON body into v. Malformed bodies come back as a
// validation error so Write answers 400.
func Decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return inputval.New("", "請求格式不正確")
	}
	return nil
}

var notFound = []error{
	docstore.ErrNotFound,
	workflow.ErrNotFound,
	userstore.ErrNotFound,
	projectstore.ErrNotFound,
	schedulestore.ErrNotFound,
	announcementstore.ErrNotFound,
	notificationstore.ErrNotFound,
}

// Status maps err to an HTTP status and the response body.
func Status(err error) (int, Response) {
	var ve *inputval.Error
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, Response{Error: ve.Message, Field: ve.Field}
	case errors.Is(err, workflow.ErrOutOfStock):
		return http.StatusConflict, Response{Error: "無庫存"}
	case errors.Is(err, workflow.ErrConflict):
		return http.StatusConflict, Response{Error: "目前申請量較大，請重試", Retryable: true}
	case errors.Is(err, workflow.ErrNotPending):
		return http.StatusConflict, Response{Error: "此申請已處理"}
	case errors.Is(err, workflow.ErrForbidden):
		return http.StatusForbidden, Response{Error: "權限不足"}
	case errors.Is(err, userstore.ErrInvalidCredentials):
		return http.StatusUnauthorized, Response{Error: "員工編號或密碼錯誤"}
	case errors.Is(err, userstore.ErrDuplicateEmployeeID):
		return http.StatusConflict, Response{Error: "此員工編號已被註冊"}
	}
	for _, nf := range notFound {
		if errors.Is(err, nf) {
			return http.StatusNotFound, Response{Error: "找不到資料"}
		}
	}
	return http.StatusInternalServerError, Response{Error: "系統錯誤，請稍後再試"}
}

// Write answers err. Only unexpected failures are logged.
func Write(w http.ResponseWriter, log *zap.Logger, err error) {
	status, body := Status(err)
	if status == http.StatusInternalServerError && log != nil {
		log.Error("request failed", zap.Error(err))
	}
	JSON(w, status, body)
}
