// internal/app/features/announcements/handler.go
package announcements

import (
	"github.com/dalemusser/handspm/internal/app/notify"
	announcementstore "github.com/dalemusser/handspm/internal/app/store/announcements"
	"go.uber.org/zap"
)

// Handler owns the announcement board and the broadcast endpoint.
type Handler struct {
	Store    *announcementstore.Store
	Notifier *notify.Notifier
	Log      *zap.Logger
}

// NewHandler constructs an Announcements Handler.
func NewHandler(store *announcementstore.Store, notifier *notify.Notifier, logger *zap.Logger) *Handler {
	return &Handler{
		Store:    store,
		Notifier: notifier,
		Log:      logger,
	}
}
