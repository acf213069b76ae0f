package email_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/dalemusser/handspm/internal/app/features/email"
	"github.com/dalemusser/handspm/internal/app/system/mailer"
	"github.com/dalemusser/handspm/internal/domain/models"
	"github.com/dalemusser/handspm/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type fakeQueue struct {
	full bool
	sent []mailer.Email
}

func (q *fakeQueue) Enqueue(e mailer.Email) bool {
	if q.full {
		return false
	}
	q.sent = append(q.sent, e)
	return true
}

func newRouter(t *testing.T, q email.Queue) chi.Router {
	t.Helper()
	return email.Routes(email.NewHandler(q, "HANDS", zap.NewNop()), testutil.NewSessionManager(t))
}

func send(t *testing.T, r chi.Router, as models.User, body interface{}) *testutil.ResponseRecorder {
	t.Helper()
	req := testutil.AsActor(testutil.NewJSONRequest(t, "POST", "/", body), testutil.Actor(as))
	rec := testutil.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

var manager = models.User{ID: "m1", EmployeeID: "M001", DisplayName: "經理", Role: models.RoleManager}

func TestSend_SanitizesAndQueues(t *testing.T) {
	q := &fakeQueue{}
	r := newRouter(t, q)

	rec := send(t, r, manager, map[string]string{
		"to":      "staff@example.com",
		"subject": "電子券通知",
		"html":    "<p>券號 <strong>ABC123</strong></p><script>alert(1)</script>",
	})
	rec.AssertStatus(t, http.StatusAccepted)

	if len(q.sent) != 1 {
		t.Fatalf("queued %d messages, want 1", len(q.sent))
	}
	got := q.sent[0]
	if got.To != "staff@example.com" || got.Subject != "電子券通知" {
		t.Errorf("unexpected envelope: %+v", got)
	}
	if strings.Contains(got.HTMLBody, "<script") {
		t.Error("script survived sanitizing")
	}
	if !strings.Contains(got.HTMLBody, "ABC123") {
		t.Error("body content missing from layout")
	}
}

func TestSend_Validation(t *testing.T) {
	q := &fakeQueue{}
	r := newRouter(t, q)

	cases := []map[string]string{
		{"to": "not-an-email", "subject": "x", "html": "<p>x</p>"},
		{"to": "a@example.com", "subject": "", "html": "<p>x</p>"},
		{"to": "a@example.com", "subject": "x", "html": "<script>only</script>"},
	}
	for _, c := range cases {
		send(t, r, manager, c).AssertStatus(t, http.StatusBadRequest)
	}
	if len(q.sent) != 0 {
		t.Errorf("invalid requests were queued: %d", len(q.sent))
	}
}

func TestSend_Unavailable(t *testing.T) {
	body := map[string]string{"to": "a@example.com", "subject": "x", "html": "<p>x</p>"}

	send(t, newRouter(t, nil), manager, body).AssertStatus(t, http.StatusServiceUnavailable)

	rec := send(t, newRouter(t, &fakeQueue{full: true}), manager, body)
	rec.AssertStatus(t, http.StatusServiceUnavailable)
	rec.AssertContains(t, "retryable")
}

func TestSend_RequiresPermission(t *testing.T) {
	user := models.User{ID: "u1", EmployeeID: "U001", DisplayName: "員工", Role: models.RoleUser}
	send(t, newRouter(t, &fakeQueue{}), user, map[string]string{}).AssertStatus(t, http.StatusForbidden)
}
