// internal/app/features/email/send.go
package email

import (
	"net/http"
	"strings"

	"github.com/dalemusser/handspm/internal/app/features/apierr"
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/htmlsanitize"
	"github.com/dalemusser/handspm/internal/app/system/inputval"
	"github.com/dalemusser/handspm/internal/app/system/mailer"
	"go.uber.org/zap"
)

type sendRequest struct {
	To      string `json:"to" validate:"required,email" label:"收件者"`
	Subject string `json:"subject" validate:"required,max=200" label:"主旨"`
	HTML    string `json:"html" validate:"required" label:"內容"`
}

// HandleSend handles POST /api/email. The body is sanitized, wrapped in
// the site layout and queued; delivery is fire-and-forget.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	var req sendRequest
	if err := apierr.Decode(w, r, &req); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	req.To = strings.TrimSpace(req.To)
	req.Subject = strings.TrimSpace(req.Subject)
	if err := inputval.Validate(req).Err(); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	body := htmlsanitize.SanitizeToHTML(req.HTML)
	if strings.TrimSpace(htmlsanitize.StripTags(string(body))) == "" {
		apierr.Write(w, h.Log, inputval.New("html", "內容為必填"))
		return
	}

	if h.Mail == nil {
		apierr.Error(w, http.StatusServiceUnavailable, "郵件服務未啟用")
		return
	}

	msg := mailer.BuildCustomEmail(h.SiteName, req.Subject, body)
	msg.To = req.To
	msg.TextBody = htmlsanitize.StripTags(string(body))
	if !h.Mail.Enqueue(msg) {
		apierr.JSON(w, http.StatusServiceUnavailable, apierr.Response{Error: "郵件佇列已滿，請稍後再試", Retryable: true})
		return
	}

	h.Log.Info("email queued",
		zap.String("to", req.To),
		zap.String("subject", req.Subject),
		zap.String("by", actor.EmployeeID))
	w.WriteHeader(http.StatusAccepted)
}
