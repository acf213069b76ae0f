package live_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/handspm/internal/app/features/live"
	"github.com/dalemusser/handspm/internal/app/livesync"
	"github.com/dalemusser/handspm/internal/app/notify"
	userstore "github.com/dalemusser/handspm/internal/app/store/users"
	"github.com/dalemusser/handspm/internal/app/system/dedupe"
	"github.com/dalemusser/handspm/internal/domain/models"
	"github.com/dalemusser/handspm/internal/testutil"
)

type sseEvent struct {
	name string
	data string
}

// openStream connects as u and returns a channel of parsed events.
func openStream(t *testing.T, ctx context.Context, h *live.Handler, u models.User) <-chan sseEvent {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeLive(w, testutil.AsActor(r, testutil.Actor(u)))
	}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type: got %q", ct)
	}

	out := make(chan sseEvent, 64)
	go func() {
		defer resp.Body.Close()
		defer close(out)
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 64*1024), 1<<20)
		var ev sseEvent
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			case line == "" && ev.name != "":
				out <- ev
				ev = sseEvent{}
			}
		}
	}()
	return out
}

// waitFor returns the first event named name whose data satisfies match.
func waitFor(t *testing.T, events <-chan sseEvent, name string, match func(string) bool) sseEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("stream closed while waiting for %s", name)
			}
			if ev.name == name && match(ev.data) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", name)
		}
	}
}

func TestServeLive_StreamsSnapshotsAndAlerts(t *testing.T) {
	svc := testutil.NewServices(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := svc.Fixtures.CreateAdmin(ctx, "A001", "管理員")
	user := svc.Fixtures.CreateUser(ctx, "U001", "王小明", models.RoleUser)
	svc.Fixtures.CreateProject(ctx, "春季海報", admin, user, models.ProjectActive)

	h := live.NewHandler(svc.DB, dedupe.NewMemoryGuard(time.Minute), svc.Log)
	streamCtx, stop := context.WithCancel(ctx)
	defer stop()
	events := openStream(t, streamCtx, h, user)

	ev := waitFor(t, events, "snapshot", func(d string) bool { return strings.Contains(d, "春季海報") })
	var snap struct {
		Version     uint64                              `json:"version"`
		Collections map[string][]map[string]interface{} `json:"collections"`
	}
	if err := json.Unmarshal([]byte(ev.data), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if _, ok := snap.Collections[livesync.Logs]; ok {
		t.Error("a regular user must not receive logs")
	}
	if got := snap.Collections[livesync.Projects]; len(got) != 1 || got[0]["id"] == "" {
		t.Errorf("projects: %+v", got)
	}

	if err := svc.Notifier.Notify(ctx, notify.NewEvent(models.NotificationSystem, "您有新的通知", ""), user.ID); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	alert := waitFor(t, events, "alert", func(string) bool { return true })
	if !strings.Contains(alert.data, "您有新的通知") {
		t.Errorf("alert payload: %s", alert.data)
	}
	waitFor(t, events, "snapshot", func(d string) bool { return strings.Contains(d, "您有新的通知") })
}

func TestServeLive_ReleasesWatchOnDisconnect(t *testing.T) {
	svc := testutil.NewServices(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	user := svc.Fixtures.CreateUser(ctx, "U001", "王小明", models.RoleUser)
	h := live.NewHandler(svc.DB, nil, svc.Log)

	streamCtx, stop := context.WithCancel(ctx)
	events := openStream(t, streamCtx, h, user)
	waitFor(t, events, "snapshot", func(string) bool { return true })

	testutil.Eventually(t, 2*time.Second, func() bool { return svc.DB.Watchers() == 1 }, "watch not opened")
	stop()
	testutil.Eventually(t, 2*time.Second, func() bool { return svc.DB.Watchers() == 0 }, "watch still open after disconnect")
}

func TestServeLive_KeepAlive(t *testing.T) {
	svc := testutil.NewServices(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	user := svc.Fixtures.CreateUser(ctx, "U001", "王小明", models.RoleUser)
	h := live.NewHandler(svc.DB, nil, svc.Log)
	h.KeepAlive = 20 * time.Millisecond

	rec := httptest.NewRecorder()
	reqCtx, stop := context.WithTimeout(ctx, 200*time.Millisecond)
	defer stop()
	req := testutil.AsActor(httptest.NewRequest("GET", "/", nil).WithContext(reqCtx), testutil.Actor(user))
	h.ServeLive(rec, req)

	if !strings.Contains(rec.Body.String(), ": keep-alive") {
		t.Errorf("expected keep-alive comments, got %q", rec.Body.String())
	}
}

func TestServeLive_DemotedViewerStopsSeeingOthersRequests(t *testing.T) {
	svc := testutil.NewServices(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	mgr := svc.Fixtures.CreateManager(ctx, "M001", "陳主管")
	other := svc.Fixtures.CreateUser(ctx, "U002", "李小華", models.RoleUser)
	before := svc.Fixtures.CreateRequest(ctx, models.CollPointRequests, other, models.StatusPending)

	h := live.NewHandler(svc.DB, nil, svc.Log)
	streamCtx, stop := context.WithCancel(ctx)
	defer stop()
	events := openStream(t, streamCtx, h, mgr)
	waitFor(t, events, "snapshot", func(d string) bool { return strings.Contains(d, before.ID) })

	role := models.RoleUser
	if _, err := svc.Users.Update(ctx, mgr.ID, userstore.UserUpdate{Role: &role}); err != nil {
		t.Fatalf("demote: %v", err)
	}
	after := svc.Fixtures.CreateRequest(ctx, models.CollPointRequests, other, models.StatusPending)
	svc.Fixtures.CreateSchedule(ctx, "盤點週", "2026-11-02", "2026-11-06")

	// Every snapshot up to the one carrying the schedule must hide the
	// other user's requests once the demotion is applied.
	deadline := time.After(5 * time.Second)
	demoted := false
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("stream closed")
			}
			if ev.name != "snapshot" {
				continue
			}
			if strings.Contains(ev.data, after.ID) {
				t.Fatalf("demoted viewer received another user's request: %s", ev.data)
			}
			if !strings.Contains(ev.data, before.ID) {
				demoted = true
			}
			if strings.Contains(ev.data, "盤點週") {
				if !demoted || strings.Contains(ev.data, before.ID) {
					t.Fatalf("snapshot after demotion still lists %s", before.ID)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for the post-demotion snapshot")
		}
	}
}

func TestServeLive_EndsWhenAccountGoesAway(t *testing.T) {
	tests := []struct {
		name   string
		online bool
		act    func(ctx context.Context, svc *testutil.Services, uid string) error
		reason string
	}{
		{
			name: "deleted",
			act: func(ctx context.Context, svc *testutil.Services, uid string) error {
				return svc.Users.Delete(ctx, uid)
			},
			reason: "removed",
		},
		{
			name:   "signed out",
			online: true,
			act: func(ctx context.Context, svc *testutil.Services, uid string) error {
				return svc.Users.SetPresence(ctx, uid, false)
			},
			reason: "signed_out",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := testutil.NewServices(t)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			user := svc.Fixtures.CreateUser(ctx, "U001", "王小明", models.RoleUser)
			if tt.online {
				if err := svc.Users.SetPresence(ctx, user.ID, true); err != nil {
					t.Fatalf("SetPresence: %v", err)
				}
			}
			h := live.NewHandler(svc.DB, nil, svc.Log)
			streamCtx, stop := context.WithCancel(ctx)
			defer stop()
			events := openStream(t, streamCtx, h, user)
			waitFor(t, events, "snapshot", func(d string) bool { return strings.Contains(d, user.ID) })

			if err := tt.act(ctx, svc, user.ID); err != nil {
				t.Fatalf("act: %v", err)
			}
			end := waitFor(t, events, "end", func(string) bool { return true })
			if !strings.Contains(end.data, `"`+tt.reason+`"`) {
				t.Errorf("end payload = %s, want reason %s", end.data, tt.reason)
			}

			testutil.Eventually(t, 2*time.Second, func() bool {
				select {
				case _, ok := <-events:
					return !ok
				default:
					return false
				}
			}, "stream still open after end")
			testutil.Eventually(t, 2*time.Second, func() bool { return svc.DB.Watchers() == 0 }, "watch still open after end")
		})
	}
}
