// Package livesync keeps a per-viewer, always-current view of the shared
// collections.
//
// A Session subscribes to the backend for one viewer at a time. Every change
// batch is applied on the session's own goroutine and published as a new
// immutable Snapshot, so readers always see either all or none of a
// multi-document commit.
//
// The session also follows the viewer's own user document. A role change
// re-subscribes with the new permissions before any later change is
// applied; a deleted or signed-out viewer ends the subscription.
package livesync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dalemusser/handspm/internal/app/system/authz"
	"github.com/dalemusser/handspm/internal/app/system/dedupe"
	"github.com/dalemusser/handspm/internal/app/system/docstore"
	"github.com/dalemusser/handspm/internal/app/system/metrics"
	"github.com/dalemusser/handspm/internal/domain/models"
	"go.uber.org/zap"
)

// ErrClosed is returned by SetViewer after Close.
var ErrClosed = errors.New("livesync: session closed")

// Reasons delivered on Ended.
var (
	ErrViewerRemoved = errors.New("livesync: viewer account removed")
	ErrSignedOut     = errors.New("livesync: viewer signed out")
)

// roleChange stops a watch whose viewer's permissions no longer match.
type roleChange struct{ to Viewer }

func (r *roleChange) Error() string { return "livesync: viewer role changed to " + r.to.Role }

// DefaultAlertWindow is how recent a new notification must be to raise a
// desktop alert.
const DefaultAlertWindow = 10 * time.Second

// Alerter raises a desktop alert for a freshly delivered notification.
type Alerter interface {
	Alert(ctx context.Context, v Viewer, n models.Notification) error
}

// Config tunes a Session. Zero values get defaults.
type Config struct {
	Policies    []Policy
	Alerter     Alerter
	Guard       dedupe.Guard
	AlertWindow time.Duration
	AlertTTL    time.Duration
	NewBackOff  func() backoff.BackOff
	Logger      *zap.Logger
}

// Session is one viewer's live view.
type Session struct {
	b   docstore.Backend
	cfg Config
	log *zap.Logger
	now func() time.Time

	mu     sync.Mutex
	viewer atomic.Pointer[Viewer]
	cancel context.CancelFunc
	done   chan struct{}
	closed bool

	snap    atomic.Pointer[Snapshot]
	version atomic.Uint64
	updates chan *Snapshot
	ended   chan error
}

// NewSession creates an idle session with no viewer.
func NewSession(b docstore.Backend, cfg Config) *Session {
	if cfg.Policies == nil {
		cfg.Policies = DefaultPolicies()
	}
	if cfg.AlertWindow <= 0 {
		cfg.AlertWindow = DefaultAlertWindow
	}
	if cfg.AlertTTL <= 0 {
		cfg.AlertTTL = time.Hour
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 500 * time.Millisecond
			bo.MaxInterval = 30 * time.Second
			bo.MaxElapsedTime = 0
			return bo
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Session{
		b:       b,
		cfg:     cfg,
		log:     cfg.Logger,
		now:     time.Now,
		updates: make(chan *Snapshot, 1),
		ended:   make(chan error, 1),
	}
	s.snap.Store(emptySnapshot)
	metrics.LiveSessions.Inc()
	return s
}

// Snapshot returns the latest published snapshot. It is never nil.
func (s *Session) Snapshot() *Snapshot { return s.snap.Load() }

// Updates delivers new snapshots. Only the latest unread one is kept. The
// channel is closed by Close.
func (s *Session) Updates() <-chan *Snapshot { return s.updates }

// Ended receives ErrViewerRemoved or ErrSignedOut when the viewer's account
// goes away. The session is idle afterwards.
func (s *Session) Ended() <-chan error { return s.ended }

// Viewer returns the current viewer, or nil. It follows role changes made
// while the session runs.
func (s *Session) Viewer() *Viewer {
	v := s.viewer.Load()
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// SetViewer switches the session to v. The previous subscription is fully
// stopped before SetViewer returns, and the snapshot is reset to empty. A nil
// v leaves the session idle. The new subscription lives until ctx ends, the
// viewer changes, or Close.
func (s *Session) SetViewer(ctx context.Context, v *Viewer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.stopLocked()
	s.reset()
	if v == nil {
		s.viewer.Store(nil)
		return nil
	}
	viewer := *v
	s.viewer.Store(&viewer)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go s.run(ctx, viewer, done)
	return nil
}

// Close stops the session for good and closes Updates.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopLocked()
	s.viewer.Store(nil)
	close(s.updates)
	metrics.LiveSessions.Dec()
}

func (s *Session) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil
}

// publish replaces the current snapshot, dropping any unread one.
func (s *Session) publish(snap *Snapshot) {
	s.snap.Store(snap)
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- snap:
	default:
	}
}

// reset publishes an empty snapshot.
func (s *Session) reset() {
	s.publish(&Snapshot{Version: s.version.Add(1), Collections: map[string][]docstore.Document{}})
}

// end makes the session idle and reports why.
func (s *Session) end(uid string, reason error) {
	s.viewer.Store(nil)
	s.reset()
	s.log.Info("live session ended", zap.String("uid", uid), zap.Error(reason))
	select {
	case s.ended <- reason:
	default:
	}
}

// run is the event loop for one viewer. It reopens the watch with backoff
// until ctx ends.
func (s *Session) run(ctx context.Context, v Viewer, done chan struct{}) {
	defer close(done)
	ps := allowed(s.cfg.Policies, v)
	colls := collections(ps)
	bo := s.cfg.NewBackOff()
	id := &identity{}

	for {
		err := s.watch(ctx, &v, ps, colls, bo, id)
		if ctx.Err() != nil {
			return
		}
		var rc *roleChange
		switch {
		case errors.As(err, &rc):
			s.log.Info("live viewer role changed",
				zap.String("uid", v.UID),
				zap.String("from", v.Role),
				zap.String("to", rc.to.Role))
			v = rc.to
			next := v
			s.viewer.Store(&next)
			ps = allowed(s.cfg.Policies, v)
			colls = collections(ps)
			s.reset()
			bo.Reset()
			continue
		case errors.Is(err, ErrViewerRemoved), errors.Is(err, ErrSignedOut):
			s.end(v.UID, err)
			return
		}
		metrics.WatchErrors.Inc()
		d := bo.NextBackOff()
		if d == backoff.Stop {
			s.log.Error("live sync giving up", zap.String("uid", v.UID), zap.Error(err))
			return
		}
		s.log.Warn("live sync watch failed; reconnecting",
			zap.String("uid", v.UID),
			zap.Duration("retry_in", d),
			zap.Error(err))
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (s *Session) watch(ctx context.Context, v *Viewer, ps []Policy, colls []string, bo backoff.BackOff, id *identity) error {
	wctx, stop := context.WithCancel(ctx)
	batches := make(chan docstore.ChangeBatch)
	errc := make(chan error, 1)
	unsub, err := s.b.Watch(wctx, colls, docstore.HandlerFuncs{
		Change: func(b docstore.ChangeBatch) {
			select {
			case batches <- b:
			case <-wctx.Done():
			}
		},
		Error: func(err error) {
			select {
			case errc <- err:
			default:
			}
		},
	})
	if err != nil {
		stop()
		return err
	}
	// The handler may be blocked on batches; release it before waiting.
	defer func() {
		stop()
		unsub()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			return err
		case b := <-batches:
			bo.Reset()
			next, err := id.check(*v, b)
			if err != nil {
				return err
			}
			if next != *v {
				*v = next
				s.viewer.Store(&next)
			}
			s.apply(ctx, *v, ps, b)
		}
	}
}

// apply publishes one snapshot for the whole batch, then raises alerts.
func (s *Session) apply(ctx context.Context, v Viewer, ps []Policy, b docstore.ChangeBatch) {
	start := time.Now()
	changed := make(map[string][]docstore.Document)
	var added []docstore.Change
	for _, set := range b.Sets {
		for _, p := range ps {
			if p.Collection == set.Collection {
				changed[p.Name] = p.project(v, set.Docs)
			}
		}
		if set.Collection == models.CollNotifications {
			for _, c := range set.Changes {
				if c.Kind == docstore.Added {
					added = append(added, c)
				}
			}
		}
	}
	if len(changed) > 0 {
		s.publish(s.snap.Load().with(s.version.Add(1), changed))
		metrics.ObserveSnapshotApply(time.Since(start))
	}
	for _, c := range added {
		s.alert(ctx, v, c.Doc)
	}
}

func (s *Session) alert(ctx context.Context, v Viewer, d docstore.Document) {
	if s.cfg.Alerter == nil {
		return
	}
	var n models.Notification
	if err := d.Decode(&n); err != nil {
		return
	}
	if n.TargetUserID != v.UID || n.CreatedAt.IsZero() {
		return
	}
	if s.now().Sub(n.CreatedAt) > s.cfg.AlertWindow {
		return
	}
	if s.cfg.Guard != nil && !s.cfg.Guard.Once(ctx, "alert:"+v.UID+":"+n.ID, s.cfg.AlertTTL) {
		return
	}
	if err := s.cfg.Alerter.Alert(ctx, v, n); err != nil {
		s.log.Debug("desktop alert failed", zap.String("notification_id", n.ID), zap.Error(err))
	}
}

// identity follows the viewer's user document across batches.
type identity struct {
	seen   bool
	online bool
}

// check returns the viewer as b leaves it. A batch without the users
// collection changes nothing. Removal and sign-out count only once the
// document has been seen, and sign-out is an online to offline change.
func (id *identity) check(v Viewer, b docstore.ChangeBatch) (Viewer, error) {
	for _, set := range b.Sets {
		if set.Collection != models.CollUsers {
			continue
		}
		var doc *docstore.Document
		for i := range set.Docs {
			if set.Docs[i].ID == v.UID {
				doc = &set.Docs[i]
				break
			}
		}
		if doc == nil {
			if id.seen {
				return v, ErrViewerRemoved
			}
			return v, nil
		}
		var u models.User
		if err := doc.Decode(&u); err != nil {
			return v, nil
		}
		wasOnline := id.seen && id.online
		id.seen, id.online = true, u.IsOnline
		if wasOnline && !u.IsOnline {
			return v, ErrSignedOut
		}
		next := authz.NewActor(u)
		if next.Role != v.Role || next.Perms != v.Perms {
			return v, &roleChange{to: next}
		}
		return next, nil
	}
	return v, nil
}
