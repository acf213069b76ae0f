// internal/app/features/live/stream.go
package live

import (
	"context"
	"errors"
	"net/http"

	"github.com/dalemusser/handspm/internal/app/features/apierr"
	"github.com/dalemusser/handspm/internal/app/livesync"
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/sse"
	"go.uber.org/zap"
)

var errAlertsBacklogged = errors.New("live: alert backlog full")

// chanAlerter hands alerts to the stream loop. It never blocks the
// session's event loop; a backlogged stream loses the alert.
type chanAlerter chan models.Notification

func (c chanAlerter) Alert(ctx context.Context, _ livesync.Viewer, n models.Notification) error {
	select {
	case c <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errAlertsBacklogged
	}
}

type snapshotEvent struct {
	Version     uint64                              `json:"version"`
	Collections map[string][]map[string]interface{} `json:"collections"`
}

func encodeSnapshot(snap *livesync.Snapshot) snapshotEvent {
	out := snapshotEvent{
		Version:     snap.Version,
		Collections: make(map[string][]map[string]interface{}, len(snap.Collections)),
	}
	for name, docs := range snap.Collections {
		items := make([]map[string]interface{}, 0, len(docs))
		for _, d := range docs {
			m := make(map[string]interface{}, len(d.Data)+1)
			for k, v := range d.Data {
				m[k] = v
			}
			m["id"] = d.ID
			items = append(items, m)
		}
		out.Collections[name] = items
	}
	return out
}

// endEvent tells the client why the stream stopped so it does not
// reconnect into a 401 loop.
type endEvent struct {
	Reason string `json:"reason"`
}

func endReason(err error) string {
	if errors.Is(err, livesync.ErrViewerRemoved) {
		return "removed"
	}
	return "signed_out"
}

// ServeLive handles GET /api/live. Each connection owns one live session
// for the signed-in user. The session follows the user's own record, so a
// role change re-filters the stream and a deleted or signed-out user ends
// it. Otherwise it runs until the client goes away.
func (h *Handler) ServeLive(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	stream, err := sse.NewStream(w, r)
	if err != nil {
		apierr.Error(w, http.StatusInternalServerError, "串流不支援")
		return
	}

	alerts := make(chanAlerter, 16)
	sess := livesync.NewSession(h.DB, livesync.Config{
		Alerter: alerts,
		Guard:   h.Guard,
		Logger:  h.Log,
	})
	defer sess.Close()

	if err := sess.SetViewer(r.Context(), actor); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	cfg := sse.DefaultConfig()
	if h.KeepAlive > 0 {
		cfg.KeepAliveInterval = h.KeepAlive
	}

	uid := actor.UID
	h.Log.Debug("live stream opened", zap.String("uid", uid))
	defer h.Log.Debug("live stream closed", zap.String("uid", uid))

	err = sse.ServeFunc(r.Context(), stream, cfg, func(ctx context.Context, _ func(*sse.Event) error) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case snap, ok := <-sess.Updates():
				if !ok {
					return nil
				}
				if err := stream.SendJSON("snapshot", encodeSnapshot(snap)); err != nil {
					return err
				}
			case n := <-alerts:
				if err := stream.SendJSON("alert", n); err != nil {
					return err
				}
			case reason := <-sess.Ended():
				return stream.SendJSON("end", endEvent{Reason: endReason(reason)})
			}
		}
	})
	if err != nil && !errors.Is(err, sse.ErrStreamClosed) {
		h.Log.Debug("live stream write failed", zap.String("uid", uid), zap.Error(err))
	}
}
