package livesync_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dalemusser/handspm/internal/app/livesync"
	"github.com/dalemusser/handspm/internal/app/system/dedupe"
	"github.com/dalemusser/handspm/internal/app/system/docstore"
	"github.com/dalemusser/handspm/internal/app/system/docstore/memstore"
	"github.com/dalemusser/handspm/internal/domain/models"
	"github.com/dalemusser/handspm/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
)

const wait = 2 * time.Second

type recordingAlerter struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingAlerter) Alert(_ context.Context, _ livesync.Viewer, n models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, n.ID)
	return nil
}

func (r *recordingAlerter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func (r *recordingAlerter) alerted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func newSession(t *testing.T, db *memstore.Store, cfg livesync.Config) *livesync.Session {
	t.Helper()
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	}
	s := livesync.NewSession(db, cfg)
	t.Cleanup(s.Close)
	return s
}

func viewer(u models.User) *livesync.Viewer {
	a := testutil.Actor(u)
	return &a
}

func has(snap *livesync.Snapshot, name, id string) bool {
	for _, d := range snap.Get(name) {
		if d.ID == id {
			return true
		}
	}
	return false
}

func TestSession_PoliciesByRole(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	fx := testutil.NewFixtures(t, db)
	admin := fx.CreateAdmin(ctx, "A001", "Ann")
	user := fx.CreateUser(ctx, "U001", "Uma", models.RoleUser)
	other := fx.CreateUser(ctx, "U002", "Ola", models.RoleUser)

	mine := fx.CreateRequest(ctx, models.CollPointRequests, user, models.StatusPending)
	theirs := fx.CreateRequest(ctx, models.CollPointRequests, other, models.StatusPending)
	fx.CreateVoucher(ctx, "V1")
	_ = db.Insert(ctx, models.CollLogs, "l1", bson.M{"action": "系統登入", "timestamp": time.Now().UTC()})
	_ = db.Insert(ctx, models.CollNotifications, "n-user", bson.M{"target_user_id": user.ID, "created_at": time.Now().UTC()})
	_ = db.Insert(ctx, models.CollNotifications, "n-other", bson.M{"target_user_id": other.ID, "created_at": time.Now().UTC()})

	s := newSession(t, db, livesync.Config{})
	if err := s.SetViewer(ctx, viewer(user)); err != nil {
		t.Fatalf("SetViewer: %v", err)
	}
	testutil.Eventually(t, wait, func() bool { return len(s.Snapshot().Get(livesync.Users)) == 3 }, "user snapshot")

	snap := s.Snapshot()
	if !has(snap, livesync.PointRequests, mine.ID) || has(snap, livesync.PointRequests, theirs.ID) {
		t.Errorf("user should see only own requests: %v", snap.Get(livesync.PointRequests))
	}
	if len(snap.Get(livesync.Logs)) != 0 || len(snap.Get(livesync.VoucherPool)) != 0 {
		t.Error("user must not see logs or voucher pool")
	}
	if n := snap.Get(livesync.Notifications); len(n) != 1 || n[0].ID != "n-user" {
		t.Errorf("notifications = %v", n)
	}

	if err := s.SetViewer(ctx, viewer(admin)); err != nil {
		t.Fatalf("SetViewer admin: %v", err)
	}
	testutil.Eventually(t, wait, func() bool { return len(s.Snapshot().Get(livesync.Logs)) == 1 }, "admin logs")
	snap = s.Snapshot()
	if len(snap.Get(livesync.PointRequests)) != 2 || len(snap.Get(livesync.VoucherPool)) != 1 {
		t.Errorf("admin snapshot = %v", snap.Collections)
	}
	if len(snap.Get(livesync.Notifications)) != 0 {
		t.Error("admin must not see other users' notifications")
	}
}

func TestSession_ReflectsWrites(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	user := testutil.NewFixtures(t, db).CreateUser(ctx, "U001", "Uma", models.RoleUser)

	s := newSession(t, db, livesync.Config{})
	_ = s.SetViewer(ctx, viewer(user))
	testutil.Eventually(t, wait, func() bool { return len(s.Snapshot().Get(livesync.Users)) == 1 }, "initial")
	v0 := s.Snapshot().Version

	_ = db.Insert(ctx, models.CollSchedules, "s2", bson.M{"name": "late", "start_date": "2026-12-01", "end_date": "2026-12-02"})
	_ = db.Insert(ctx, models.CollSchedules, "s1", bson.M{"name": "early", "start_date": "2026-01-01", "end_date": "2026-01-02"})
	testutil.Eventually(t, wait, func() bool { return len(s.Snapshot().Get(livesync.Schedules)) == 2 }, "schedules")

	snap := s.Snapshot()
	if snap.Version <= v0 {
		t.Errorf("version %d not after %d", snap.Version, v0)
	}
	got, err := livesync.Items[models.Schedule](snap, livesync.Schedules)
	if err != nil || got[0].Name != "early" {
		t.Errorf("schedules = %+v, %v", got, err)
	}
}

func TestSession_VoucherApprovalIsAtomic(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	fx := testutil.NewFixtures(t, db)
	admin := fx.CreateAdmin(ctx, "A001", "Ann")
	req := fx.CreateRequest(ctx, models.CollVoucherRequests, admin, models.StatusPending)
	entry := fx.CreateVoucher(ctx, "V1")

	s := newSession(t, db, livesync.Config{})
	_ = s.SetViewer(ctx, viewer(admin))
	testutil.Eventually(t, wait, func() bool { return len(s.Snapshot().Get(livesync.VoucherPool)) == 1 }, "initial")

	consistent := func(snap *livesync.Snapshot) bool {
		var approved, used bool
		for _, d := range snap.Get(livesync.VoucherRequests) {
			approved = d.Data["status"] == models.StatusApproved
		}
		for _, d := range snap.Get(livesync.VoucherPool) {
			used = d.Data["is_used"] == true
		}
		return approved == used
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var bad int
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case snap, ok := <-s.Updates():
				if !ok {
					return
				}
				if len(snap.Get(livesync.VoucherPool)) > 0 && !consistent(snap) {
					bad++
				}
			case <-stop:
				return
			}
		}
	}()

	err := db.Batch(ctx, []docstore.Op{
		{Kind: docstore.OpUpdate, Collection: models.CollVoucherRequests, ID: req.ID, Data: bson.M{"status": models.StatusApproved, "assigned_code": "V1"}},
		{Kind: docstore.OpUpdate, Collection: models.CollVoucherPool, ID: entry.ID, Data: bson.M{"is_used": true}},
	})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	testutil.Eventually(t, wait, func() bool {
		for _, d := range s.Snapshot().Get(livesync.VoucherPool) {
			if d.Data["is_used"] == true {
				return true
			}
		}
		return false
	}, "approval visible")
	close(stop)
	wg.Wait()

	if bad != 0 {
		t.Errorf("%d snapshots showed half an approval", bad)
	}
	if !consistent(s.Snapshot()) {
		t.Error("final snapshot inconsistent")
	}
}

func TestSession_SetViewerNilTearsDown(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	user := testutil.NewFixtures(t, db).CreateUser(ctx, "U001", "Uma", models.RoleUser)

	s := newSession(t, db, livesync.Config{})
	_ = s.SetViewer(ctx, viewer(user))
	testutil.Eventually(t, wait, func() bool { return len(s.Snapshot().Get(livesync.Users)) == 1 }, "initial")

	if err := s.SetViewer(ctx, nil); err != nil {
		t.Fatalf("SetViewer(nil): %v", err)
	}
	if n := db.Watchers(); n != 0 {
		t.Fatalf("watchers after SetViewer(nil) = %d", n)
	}
	snap := s.Snapshot()
	if len(snap.Get(livesync.Users)) != 0 || s.Viewer() != nil {
		t.Fatalf("snapshot not reset: %v", snap.Collections)
	}

	_ = db.Insert(ctx, models.CollUsers, "late", bson.M{"employee_id": "X"})
	time.Sleep(50 * time.Millisecond)
	if got := s.Snapshot(); got.Version != snap.Version {
		t.Errorf("snapshot changed after teardown: %d -> %d", snap.Version, got.Version)
	}
}

func TestSession_CloseEndsUpdates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	user := testutil.NewFixtures(t, db).CreateUser(ctx, "U001", "Uma", models.RoleUser)

	s := livesync.NewSession(db, livesync.Config{})
	_ = s.SetViewer(ctx, viewer(user))
	s.Close()
	s.Close()

	if db.Watchers() != 0 {
		t.Error("watch still open after Close")
	}
	for range s.Updates() {
	}
	if err := s.SetViewer(ctx, viewer(user)); !errors.Is(err, livesync.ErrClosed) {
		t.Errorf("SetViewer after Close err = %v", err)
	}
}

func TestSession_ContextCancelStopsWatch(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	user := testutil.NewFixtures(t, db).CreateUser(ctx, "U001", "Uma", models.RoleUser)

	s := newSession(t, db, livesync.Config{})
	sctx, scancel := context.WithCancel(ctx)
	_ = s.SetViewer(sctx, viewer(user))
	testutil.Eventually(t, wait, func() bool { return db.Watchers() == 1 }, "watch open")
	scancel()
	testutil.Eventually(t, wait, func() bool { return db.Watchers() == 0 }, "watch closed")
}

func TestSession_ReconnectsAfterWatchError(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	user := testutil.NewFixtures(t, db).CreateUser(ctx, "U001", "Uma", models.RoleUser)

	s := newSession(t, db, livesync.Config{})
	_ = s.SetViewer(ctx, viewer(user))
	testutil.Eventually(t, wait, func() bool { return len(s.Snapshot().Get(livesync.Users)) == 1 }, "initial")

	db.BreakWatches(errors.New("connection reset"))
	_ = db.Insert(ctx, models.CollAnnouncements, "a1", bson.M{"content": "hi", "created_at": time.Now().UTC()})
	testutil.Eventually(t, wait, func() bool { return len(s.Snapshot().Get(livesync.Announcements)) == 1 }, "change after reconnect")
	if db.Watchers() != 1 {
		t.Errorf("watchers = %d, want 1", db.Watchers())
	}
}

func TestSession_AlertsRecentNotificationsOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	fx := testutil.NewFixtures(t, db)
	user := fx.CreateUser(ctx, "U001", "Uma", models.RoleUser)
	other := fx.CreateUser(ctx, "U002", "Ola", models.RoleUser)

	_ = db.Insert(ctx, models.CollNotifications, "old", bson.M{"target_user_id": user.ID, "message": "old", "created_at": time.Now().UTC().Add(-time.Minute)})

	alerts := &recordingAlerter{}
	s := newSession(t, db, livesync.Config{Alerter: alerts, Guard: dedupe.NewMemoryGuard(time.Minute)})
	_ = s.SetViewer(ctx, viewer(user))
	testutil.Eventually(t, wait, func() bool { return len(s.Snapshot().Get(livesync.Notifications)) == 1 }, "initial")

	_ = db.Insert(ctx, models.CollNotifications, "fresh", bson.M{"target_user_id": user.ID, "message": "new", "created_at": time.Now().UTC()})
	_ = db.Insert(ctx, models.CollNotifications, "not-mine", bson.M{"target_user_id": other.ID, "message": "x", "created_at": time.Now().UTC()})
	testutil.Eventually(t, wait, func() bool { return alerts.count() == 1 }, "fresh alert")

	// The reconnect snapshot reports "fresh" as added again.
	db.BreakWatches(errors.New("reset"))
	_ = db.Insert(ctx, models.CollAnnouncements, "a1", bson.M{"content": "x", "created_at": time.Now().UTC()})
	testutil.Eventually(t, wait, func() bool { return len(s.Snapshot().Get(livesync.Announcements)) == 1 }, "reconnected")

	if got := alerts.alerted(); len(got) != 1 || got[0] != "fresh" {
		t.Errorf("alerts = %v, want [fresh]", got)
	}
}

func TestSession_DemotionNarrowsView(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	fx := testutil.NewFixtures(t, db)
	mgr := fx.CreateManager(ctx, "M001", "Max")
	other := fx.CreateUser(ctx, "U002", "Ola", models.RoleUser)
	before := fx.CreateRequest(ctx, models.CollPointRequests, other, models.StatusPending)

	s := newSession(t, db, livesync.Config{})
	_ = s.SetViewer(ctx, viewer(mgr))
	testutil.Eventually(t, wait, func() bool { return has(s.Snapshot(), livesync.PointRequests, before.ID) }, "manager sees all requests")

	if err := db.Update(ctx, models.CollUsers, mgr.ID, bson.M{"role": models.RoleUser}); err != nil {
		t.Fatalf("demote: %v", err)
	}
	testutil.Eventually(t, wait, func() bool {
		v := s.Viewer()
		return v != nil && v.Role == models.RoleUser && !v.Perms.CanSeeAllRequests
	}, "viewer re-resolved")

	after := fx.CreateRequest(ctx, models.CollPointRequests, other, models.StatusPending)
	_ = db.Insert(ctx, models.CollAnnouncements, "marker", bson.M{"content": "x", "created_at": time.Now().UTC()})
	testutil.Eventually(t, wait, func() bool { return has(s.Snapshot(), livesync.Announcements, "marker") }, "marker")

	snap := s.Snapshot()
	if has(snap, livesync.PointRequests, before.ID) || has(snap, livesync.PointRequests, after.ID) {
		t.Errorf("demoted viewer still sees others' requests: %v", snap.Get(livesync.PointRequests))
	}
}

func TestSession_PromotionWidensView(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	fx := testutil.NewFixtures(t, db)
	user := fx.CreateUser(ctx, "U001", "Uma", models.RoleUser)
	other := fx.CreateUser(ctx, "U002", "Ola", models.RoleUser)
	theirs := fx.CreateRequest(ctx, models.CollPointRequests, other, models.StatusPending)
	_ = db.Insert(ctx, models.CollLogs, "l1", bson.M{"action": "系統登入", "timestamp": time.Now().UTC()})

	s := newSession(t, db, livesync.Config{})
	_ = s.SetViewer(ctx, viewer(user))
	testutil.Eventually(t, wait, func() bool { return len(s.Snapshot().Get(livesync.Users)) == 2 }, "initial")

	if err := db.Update(ctx, models.CollUsers, user.ID, bson.M{"role": models.RoleAdmin}); err != nil {
		t.Fatalf("promote: %v", err)
	}
	testutil.Eventually(t, wait, func() bool {
		snap := s.Snapshot()
		return has(snap, livesync.PointRequests, theirs.ID) && len(snap.Get(livesync.Logs)) == 1
	}, "admin view after promotion")
	if v := s.Viewer(); v == nil || v.Role != models.RoleAdmin {
		t.Errorf("Viewer = %+v", v)
	}
}

func TestSession_ProfileEditKeepsSubscription(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	user := testutil.NewFixtures(t, db).CreateUser(ctx, "U001", "Uma", models.RoleUser)

	s := newSession(t, db, livesync.Config{})
	_ = s.SetViewer(ctx, viewer(user))
	testutil.Eventually(t, wait, func() bool { return len(s.Snapshot().Get(livesync.Users)) == 1 }, "initial")

	_ = db.Update(ctx, models.CollUsers, user.ID, bson.M{"display_name": "Uma Lee"})
	testutil.Eventually(t, wait, func() bool {
		v := s.Viewer()
		return v != nil && v.DisplayName == "Uma Lee"
	}, "display name refreshed")
	select {
	case err := <-s.Ended():
		t.Errorf("session ended: %v", err)
	default:
	}
}

func TestSession_EndsWhenViewerGoesAway(t *testing.T) {
	tests := []struct {
		name  string
		setup bson.M
		act   func(ctx context.Context, db *memstore.Store, uid string) error
		want  error
	}{
		{
			name: "account deleted",
			act: func(ctx context.Context, db *memstore.Store, uid string) error {
				return db.Delete(ctx, models.CollUsers, uid)
			},
			want: livesync.ErrViewerRemoved,
		},
		{
			name:  "signed out",
			setup: bson.M{"is_online": true},
			act: func(ctx context.Context, db *memstore.Store, uid string) error {
				return db.Update(ctx, models.CollUsers, uid, bson.M{"is_online": false})
			},
			want: livesync.ErrSignedOut,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.SetupTestDB(t)
			ctx, cancel := testutil.TestContext()
			defer cancel()
			user := testutil.NewFixtures(t, db).CreateUser(ctx, "U001", "Uma", models.RoleUser)
			if tt.setup != nil {
				_ = db.Update(ctx, models.CollUsers, user.ID, tt.setup)
			}

			s := newSession(t, db, livesync.Config{})
			_ = s.SetViewer(ctx, viewer(user))
			testutil.Eventually(t, wait, func() bool { return len(s.Snapshot().Get(livesync.Users)) == 1 }, "initial")

			if err := tt.act(ctx, db, user.ID); err != nil {
				t.Fatalf("act: %v", err)
			}
			select {
			case err := <-s.Ended():
				if !errors.Is(err, tt.want) {
					t.Errorf("Ended = %v, want %v", err, tt.want)
				}
			case <-time.After(wait):
				t.Fatal("session did not end")
			}
			if s.Viewer() != nil {
				t.Error("viewer should be cleared")
			}
			testutil.Eventually(t, wait, func() bool { return db.Watchers() == 0 }, "watch released")
			if n := len(s.Snapshot().Collections); n != 0 {
				t.Errorf("snapshot still holds %d collections", n)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	fx := testutil.NewFixtures(t, db)
	user := fx.CreateUser(ctx, "U001", "Uma", models.RoleUser)
	mgr := fx.CreateManager(ctx, "M001", "Max")
	fx.CreateRequest(ctx, models.CollVoucherRequests, user, models.StatusPending)
	fx.CreateRequest(ctx, models.CollVoucherRequests, mgr, models.StatusPending)
	fx.CreateVoucher(ctx, "V1")

	snap, err := livesync.Load(ctx, db, *viewer(mgr), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Get(livesync.VoucherRequests)) != 2 || len(snap.Get(livesync.VoucherPool)) != 1 || len(snap.Get(livesync.Logs)) != 0 {
		t.Errorf("manager snapshot = %v", snap.Collections)
	}
}

func TestSort_MissingTimestampIsOldest(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	user := testutil.NewFixtures(t, db).CreateUser(ctx, "U001", "Uma", models.RoleUser)

	now := time.Now().UTC()
	_ = db.Insert(ctx, models.CollAnnouncements, "pending-ts", bson.M{"content": "no time yet"})
	_ = db.Insert(ctx, models.CollAnnouncements, "older", bson.M{"content": "a", "created_at": now.Add(-time.Hour)})
	_ = db.Insert(ctx, models.CollAnnouncements, "newer", bson.M{"content": "b", "created_at": now})

	snap, err := livesync.Load(ctx, db, *viewer(user), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := snap.Get(livesync.Announcements)
	want := []string{"newer", "older", "pending-ts"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("order = %v, want %v", ids(got), want)
		}
	}
}

func ids(docs []docstore.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
