package logout_test

import (
	"net/http"
	"testing"

	"github.com/dalemusser/handspm/internal/app/features/logout"
	"github.com/dalemusser/handspm/internal/app/system/auditlog"
	"github.com/dalemusser/handspm/internal/testutil"
	"github.com/go-chi/chi/v5"
)

func TestServeLogout(t *testing.T) {
	svc := testutil.NewServices(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := svc.Fixtures.CreateUser(ctx, "U001", "王小明", "user")
	if err := svc.Users.SetPresence(ctx, u.ID, true); err != nil {
		t.Fatalf("SetPresence: %v", err)
	}
	h := logout.NewHandler(svc.Users, svc.Audit, testutil.NewSessionManager(t), svc.Log)

	rec := testutil.NewRecorder()
	h.ServeLogout(rec, testutil.AsActor(testutil.NewJSONRequest(t, "POST", "/api/auth/logout", nil), testutil.Actor(u)))
	rec.AssertStatus(t, http.StatusNoContent)

	expired := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == "test-session" && c.MaxAge < 0 {
			expired = true
		}
	}
	if !expired {
		t.Error("expected expired session cookie")
	}

	got, err := svc.Users.Get(ctx, u.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.IsOnline {
		t.Error("user should be offline after logout")
	}
	logs, _ := svc.Syslog.Recent(ctx, 0)
	if len(logs) != 1 || logs[0].Action != auditlog.ActionLogout {
		t.Errorf("expected logout log entry, got %+v", logs)
	}
}

func TestLogout_RequiresSignIn(t *testing.T) {
	svc := testutil.NewServices(t)
	sm := testutil.NewSessionManager(t)
	h := logout.NewHandler(svc.Users, svc.Audit, sm, svc.Log)

	r := chi.NewRouter()
	logout.MountRoutes(r, h, sm)

	rec := testutil.NewRecorder()
	r.ServeHTTP(rec, testutil.NewJSONRequest(t, "POST", "/logout", nil))
	rec.AssertStatus(t, http.StatusUnauthorized)
}
