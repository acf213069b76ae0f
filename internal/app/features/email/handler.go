// internal/app/features/email/handler.go
package email

import (
	"github.com/dalemusser/handspm/internal/app/system/mailer"
	"go.uber.org/zap"
)

// Queue accepts outgoing mail without blocking. *mailer.Dispatcher
// satisfies it.
type Queue interface {
	Enqueue(e mailer.Email) bool
}

type Handler struct {
	Mail     Queue
	SiteName string
	Log      *zap.Logger
}

// NewHandler returns an email handler. A nil queue means mail is not
// configured and every send answers 503.
func NewHandler(q Queue, siteName string, logger *zap.Logger) *Handler {
	return &Handler{
		Mail:     q,
		SiteName: siteName,
		Log:      logger,
	}
}
