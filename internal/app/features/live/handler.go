// internal/app/features/live/handler.go
package live

import (
	"time"

	"github.com/dalemusser/handspm/internal/app/system/dedupe"
	"github.com/dalemusser/handspm/internal/app/system/docstore"
	"go.uber.org/zap"
)

// DefaultKeepAlive is how often an idle stream gets a comment line so
// proxies do not close it.
const DefaultKeepAlive = 25 * time.Second

// Handler streams each viewer's live snapshot as server-sent events.
type Handler struct {
	DB        docstore.Backend
	Guard     dedupe.Guard
	KeepAlive time.Duration
	Log       *zap.Logger
}

// NewHandler returns a live handler. guard suppresses repeated desktop
// alerts across a user's open tabs; nil disables that.
func NewHandler(db docstore.Backend, guard dedupe.Guard, logger *zap.Logger) *Handler {
	return &Handler{
		DB:        db,
		Guard:     guard,
		KeepAlive: DefaultKeepAlive,
		Log:       logger,
	}
}
