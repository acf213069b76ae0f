package announcements_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/dalemusser/handspm/internal/app/features/announcements"
	"github.com/dalemusser/handspm/internal/app/notify"
	announcementstore "github.com/dalemusser/handspm/internal/app/store/announcements"
	"github.com/dalemusser/handspm/internal/app/system/auditlog"
	"github.com/dalemusser/handspm/internal/domain/models"
	"github.com/dalemusser/handspm/internal/testutil"
	"github.com/go-chi/chi/v5"
)

func newRouter(t *testing.T) (chi.Router, *testutil.Services) {
	t.Helper()
	svc := testutil.NewServices(t)
	h := announcements.NewHandler(announcementstore.New(svc.DB), svc.Notifier, svc.Log)
	r := chi.NewRouter()
	h.MountRoutes(r, testutil.NewSessionManager(t))
	return r, svc
}

func do(t *testing.T, r chi.Router, as models.User, method, target string, body interface{}) *testutil.ResponseRecorder {
	t.Helper()
	req := testutil.NewJSONRequest(t, method, target, body)
	if as.ID != "" {
		req = testutil.AsActor(req, testutil.Actor(as))
	}
	rec := testutil.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAnnouncements_CreateListDelete(t *testing.T) {
	r, svc := newRouter(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := svc.Fixtures.CreateAdmin(ctx, "A001", "管理員")
	user := svc.Fixtures.CreateUser(ctx, "U001", "王小明", models.RoleUser)

	rec := do(t, r, admin, "POST", "/announcements", map[string]string{
		"content": "<p>週年慶<strong>開跑</strong></p><script>alert(1)</script>",
	})
	rec.AssertStatus(t, http.StatusCreated)
	var a models.Announcement
	rec.DecodeJSON(t, &a)
	if strings.Contains(a.Content, "script") || !strings.Contains(a.Content, "<strong>開跑</strong>") {
		t.Errorf("content not sanitized: %q", a.Content)
	}

	do(t, r, admin, "POST", "/announcements", map[string]string{"content": "<p> </p>"}).AssertStatus(t, http.StatusBadRequest)
	do(t, r, user, "POST", "/announcements", map[string]string{"content": "hi"}).AssertStatus(t, http.StatusForbidden)
	do(t, r, models.User{}, "GET", "/announcements", nil).AssertStatus(t, http.StatusUnauthorized)

	var list []models.Announcement
	rec = do(t, r, user, "GET", "/announcements", nil)
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &list)
	if len(list) != 1 || list[0].CreatorName != "管理員" {
		t.Errorf("unexpected list: %+v", list)
	}

	do(t, r, user, "DELETE", "/announcements/"+a.ID, nil).AssertStatus(t, http.StatusForbidden)
	do(t, r, admin, "DELETE", "/announcements/"+a.ID, nil).AssertStatus(t, http.StatusNoContent)
	do(t, r, admin, "DELETE", "/announcements/"+a.ID, nil).AssertStatus(t, http.StatusNotFound)
}

func TestBroadcast(t *testing.T) {
	r, svc := newRouter(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := svc.Fixtures.CreateAdmin(ctx, "A001", "管理員")
	mgr := svc.Fixtures.CreateManager(ctx, "M001", "陳經理")
	user := svc.Fixtures.CreateUser(ctx, "U001", "王小明", models.RoleUser)

	do(t, r, mgr, "POST", "/broadcast", map[string]string{"message": "x"}).AssertStatus(t, http.StatusForbidden)
	do(t, r, admin, "POST", "/broadcast", map[string]string{"message": "  "}).AssertStatus(t, http.StatusBadRequest)

	rec := do(t, r, admin, "POST", "/broadcast", map[string]string{"message": "今晚盤點"})
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"delivered":3`)

	for _, u := range []models.User{admin, mgr, user} {
		notes := svc.Fixtures.Notifications(ctx, u.ID)
		if len(notes) != 1 || notes[0].Message != notify.BroadcastPrefix+"今晚盤點" {
			t.Errorf("%s notifications: %+v", u.EmployeeID, notes)
		}
	}
	logs, _ := svc.Syslog.Recent(ctx, 0)
	if len(logs) != 1 || logs[0].Action != auditlog.ActionBroadcast {
		t.Errorf("expected broadcast log entry, got %+v", logs)
	}
}
