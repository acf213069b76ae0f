// Package notify writes per-user notifications.
//
// Every notification ID is derived from (event ID, recipient uid), so a write
// that is retried after a partial failure lands on the same document and a
// recipient can never receive the same event twice.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dalemusser/handspm/internal/app/system/auditlog"
	"github.com/dalemusser/handspm/internal/app/system/authz"
	"github.com/dalemusser/handspm/internal/app/system/docstore"
	"github.com/dalemusser/handspm/internal/app/system/inputval"
	"github.com/dalemusser/handspm/internal/app/system/metrics"
	"github.com/dalemusser/handspm/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// BroadcastPrefix is prepended to every admin broadcast.
const BroadcastPrefix = "【公告】"

// DefaultMaxQueue bounds the retry queue; the oldest entry is dropped when full.
const DefaultMaxQueue = 1000

// namespace for notification IDs.
var namespace = uuid.MustParse("6f1c7c1e-3b0f-4f55-9d8e-0b7a0c2f6a41")

// Event is one triggering action. Callers mint a fresh ID per action.
type Event struct {
	ID            string
	Type          string
	Message       string
	LinkProjectID string
}

// NewEvent returns an Event with a fresh ID.
func NewEvent(typ, message, linkProjectID string) Event {
	return Event{ID: uuid.NewString(), Type: typ, Message: message, LinkProjectID: linkProjectID}
}

// NotificationID is the document ID for event delivered to uid.
func NotificationID(eventID, uid string) string {
	return uuid.NewSHA1(namespace, []byte(eventID+"|"+uid)).String()
}

type pending struct {
	event Event
	uid   string
	at    time.Time
	next  time.Time
	bo    backoff.BackOff
}

// Notifier writes notifications and retries failed writes.
type Notifier struct {
	b     docstore.Backend
	log   *zap.Logger
	audit *auditlog.Logger
	now   func() time.Time

	mu       sync.Mutex
	queue    []*pending
	maxQueue int
	newBO    func() backoff.BackOff
}

// New creates a Notifier. audit may be nil.
func New(b docstore.Backend, logger *zap.Logger, audit *auditlog.Logger) *Notifier {
	return &Notifier{
		b:        b,
		log:      logger,
		audit:    audit,
		now:      func() time.Time { return time.Now().UTC() },
		maxQueue: DefaultMaxQueue,
		newBO: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 5 * time.Second
			bo.MaxInterval = 5 * time.Minute
			bo.MaxElapsedTime = time.Hour
			return bo
		},
	}
}

// WithBackOff replaces the retry schedule. Used by tests.
func (n *Notifier) WithBackOff(f func() backoff.BackOff) *Notifier {
	n.newBO = f
	return n
}

// Notify writes event for targetUID. An empty targetUID is a no-op. On
// failure the write is queued for retry and the error returned.
func (n *Notifier) Notify(ctx context.Context, event Event, targetUID string) error {
	if targetUID == "" {
		return nil
	}
	at := n.now()
	err := n.write(ctx, event, targetUID, at)
	if err == nil {
		return nil
	}
	metrics.Notifications.WithLabelValues("failed").Inc()
	n.log.Warn("notification write failed; queued for retry",
		zap.String("event_id", event.ID),
		zap.String("target_uid", targetUID),
		zap.Error(err))
	n.enqueue(event, targetUID, at)
	return fmt.Errorf("notify %s: %w", targetUID, err)
}

func (n *Notifier) write(ctx context.Context, event Event, uid string, at time.Time) error {
	typ := event.Type
	if typ == "" {
		typ = models.NotificationSystem
	}
	data := bson.M{
		"target_user_id": uid,
		"type":           typ,
		"message":        event.Message,
		"read":           false,
		"created_at":     at,
	}
	if event.LinkProjectID != "" {
		data["link_project_id"] = event.LinkProjectID
	}
	err := n.b.Insert(ctx, models.CollNotifications, NotificationID(event.ID, uid), data)
	switch {
	case err == nil:
		metrics.Notifications.WithLabelValues("delivered").Inc()
		return nil
	case errors.Is(err, docstore.ErrDuplicate):
		metrics.Notifications.WithLabelValues("duplicate").Inc()
		return nil
	default:
		return err
	}
}

func (n *Notifier) enqueue(event Event, uid string, at time.Time) {
	bo := n.newBO()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queue) >= n.maxQueue {
		dropped := n.queue[0]
		n.queue = n.queue[1:]
		n.log.Error("notification retry queue full; dropping oldest",
			zap.String("event_id", dropped.event.ID),
			zap.String("target_uid", dropped.uid))
	}
	n.queue = append(n.queue, &pending{event: event, uid: uid, at: at, next: n.now().Add(bo.NextBackOff()), bo: bo})
	metrics.NotificationRetryQueue.Set(float64(len(n.queue)))
}

// Pending returns the number of queued retries.
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

// FlushRetries re-attempts every queued write that is due. Entries whose
// backoff is exhausted are dropped and logged. It returns the number
// delivered.
func (n *Notifier) FlushRetries(ctx context.Context) int {
	n.mu.Lock()
	due := make([]*pending, 0, len(n.queue))
	keep := n.queue[:0]
	now := n.now()
	for _, p := range n.queue {
		if !p.next.After(now) {
			due = append(due, p)
		} else {
			keep = append(keep, p)
		}
	}
	n.queue = keep
	n.mu.Unlock()

	delivered := 0
	var again []*pending
	for _, p := range due {
		if ctx.Err() != nil {
			again = append(again, p)
			continue
		}
		if err := n.write(ctx, p.event, p.uid, p.at); err != nil {
			d := p.bo.NextBackOff()
			if d == backoff.Stop {
				metrics.Notifications.WithLabelValues("dropped").Inc()
				n.log.Error("giving up on notification",
					zap.String("event_id", p.event.ID),
					zap.String("target_uid", p.uid),
					zap.Error(err))
				continue
			}
			p.next = n.now().Add(d)
			again = append(again, p)
			continue
		}
		metrics.Notifications.WithLabelValues("retried").Inc()
		delivered++
	}

	n.mu.Lock()
	n.queue = append(n.queue, again...)
	metrics.NotificationRetryQueue.Set(float64(len(n.queue)))
	n.mu.Unlock()
	return delivered
}

// NotifyGroup notifies every candidate accepted by pred, once per uid. It
// returns how many were delivered and the joined errors of the rest.
func (n *Notifier) NotifyGroup(ctx context.Context, event Event, candidates []models.User, pred func(models.User) bool) (int, error) {
	seen := make(map[string]bool, len(candidates))
	var errs []error
	delivered := 0
	for _, u := range candidates {
		if u.ID == "" || seen[u.ID] {
			continue
		}
		if pred != nil && !pred(u) {
			continue
		}
		seen[u.ID] = true
		if err := n.Notify(ctx, event, u.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}

// Users loads the full user list used as NotifyGroup candidates.
func (n *Notifier) Users(ctx context.Context) ([]models.User, error) {
	docs, err := n.b.Find(ctx, models.CollUsers, nil)
	if err != nil {
		return nil, err
	}
	return docstore.DecodeAll[models.User](docs)
}

// Broadcast sends message to every user with the broadcast prefix and logs
// the broadcast.
func (n *Notifier) Broadcast(ctx context.Context, actor authz.Actor, message string) (int, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return 0, inputval.New("message", "廣播內容為必填")
	}
	users, err := n.Users(ctx)
	if err != nil {
		return 0, fmt.Errorf("load broadcast recipients: %w", err)
	}
	event := NewEvent(models.NotificationSystem, BroadcastPrefix+message, "")
	delivered, err := n.NotifyGroup(ctx, event, users, nil)
	n.audit.As(ctx, actor, auditlog.ActionBroadcast, message)
	return delivered, err
}
