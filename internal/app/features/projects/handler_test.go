package projects_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/dalemusser/handspm/internal/app/features/projects"
	"github.com/dalemusser/handspm/internal/app/notify"
	projectstore "github.com/dalemusser/handspm/internal/app/store/projects"
	"github.com/dalemusser/handspm/internal/app/system/docstore/memstore"
	"github.com/dalemusser/handspm/internal/domain/models"
	"github.com/dalemusser/handspm/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type env struct {
	svc      *testutil.Services
	projects *projectstore.Store
	router   chi.Router
}

func newEnv(t *testing.T) *env {
	t.Helper()
	svc := testutil.NewServices(t)
	store := projectstore.New(svc.DB)
	h := projects.NewHandler(store, svc.Users, svc.Notifier, svc.Audit, svc.Log)
	return &env{svc: svc, projects: store, router: projects.Routes(h, testutil.NewSessionManager(t))}
}

func (e *env) do(t *testing.T, as models.User, method, target string, body interface{}) *testutil.ResponseRecorder {
	t.Helper()
	req := testutil.NewJSONRequest(t, method, target, body)
	if as.ID != "" {
		req = testutil.AsActor(req, testutil.Actor(as))
	}
	rec := testutil.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestCreate_NotifiesAssignee(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	creator := e.svc.Fixtures.CreateUser(ctx, "U001", "王小明", models.RoleUser)
	assignee := e.svc.Fixtures.CreateUser(ctx, "U002", "李小華", models.RoleUser)

	rec := e.do(t, creator, "POST", "/", map[string]string{
		"title":                   "春季檔期",
		"urgency":                 models.UrgencyUrgent,
		"assigned_to_employee_id": "U002",
	})
	rec.AssertStatus(t, http.StatusCreated)

	var p models.Project
	rec.DecodeJSON(t, &p)
	if p.Status != models.ProjectActive || p.AssignedToName != "李小華" || p.CreatedBy != "U001" {
		t.Errorf("unexpected project: %+v", p)
	}

	notes := e.svc.Fixtures.Notifications(ctx, assignee.ID)
	if len(notes) != 1 {
		t.Fatalf("expected 1 notification for assignee, got %d", len(notes))
	}
	if notes[0].Type != models.NotificationAssignment || notes[0].LinkProjectID != p.ID {
		t.Errorf("unexpected notification: %+v", notes[0])
	}
	if notes[0].Message != "王小明 指派了新專案「春季檔期」給您" {
		t.Errorf("message: got %q", notes[0].Message)
	}
}

func TestCreate_Validation(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	creator := e.svc.Fixtures.CreateUser(ctx, "U001", "王小明", models.RoleUser)

	e.do(t, creator, "POST", "/", map[string]string{"title": ""}).AssertStatus(t, http.StatusBadRequest)
	e.do(t, creator, "POST", "/", map[string]string{"title": "x", "assigned_to_employee_id": "NOPE"}).AssertStatus(t, http.StatusBadRequest)
	e.do(t, models.User{}, "POST", "/", map[string]string{"title": "x"}).AssertStatus(t, http.StatusUnauthorized)
}

func TestUpdate_StatusCommentsAndNotifiesCreator(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	creator := e.svc.Fixtures.CreateUser(ctx, "U001", "王小明", models.RoleUser)
	assignee := e.svc.Fixtures.CreateUser(ctx, "U002", "李小華", models.RoleUser)
	p := e.svc.Fixtures.CreateProject(ctx, "春季檔期", creator, assignee, models.ProjectActive)

	rec := e.do(t, assignee, "PATCH", "/"+p.ID, map[string]string{"status": models.ProjectCompleted})
	rec.AssertStatus(t, http.StatusOK)

	comments, err := e.projects.Comments(ctx, p.ID)
	if err != nil {
		t.Fatalf("Comments: %v", err)
	}
	if len(comments) != 1 || comments[0].Type != models.CommentSystem || comments[0].Text != "將狀態更改為: 已完成" {
		t.Errorf("unexpected comments: %+v", comments)
	}

	notes := e.svc.Fixtures.Notifications(ctx, creator.ID)
	if len(notes) != 1 || notes[0].Message != "您的專案「春季檔期」狀態已更新為：已完成" {
		t.Errorf("creator notifications: %+v", notes)
	}
}

func TestUpdate_CreatorChangingStatusIsNotNotified(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	creator := e.svc.Fixtures.CreateUser(ctx, "U001", "王小明", models.RoleUser)
	p := e.svc.Fixtures.CreateProject(ctx, "春季檔期", creator, creator, models.ProjectActive)

	e.do(t, creator, "PATCH", "/"+p.ID, map[string]string{"status": models.ProjectTransferred}).AssertStatus(t, http.StatusOK)
	if notes := e.svc.Fixtures.Notifications(ctx, creator.ID); len(notes) != 0 {
		t.Errorf("creator should not be notified of own change: %+v", notes)
	}
}

func TestUpdate_ReassignNotifiesNewAssignee(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	creator := e.svc.Fixtures.CreateUser(ctx, "U001", "王小明", models.RoleUser)
	first := e.svc.Fixtures.CreateUser(ctx, "U002", "李小華", models.RoleUser)
	second := e.svc.Fixtures.CreateUser(ctx, "U003", "張大同", models.RoleUser)
	p := e.svc.Fixtures.CreateProject(ctx, "春季檔期", creator, first, models.ProjectActive)

	rec := e.do(t, creator, "PATCH", "/"+p.ID, map[string]string{"assigned_to_employee_id": "U003"})
	rec.AssertStatus(t, http.StatusOK)

	var got models.Project
	rec.DecodeJSON(t, &got)
	if got.AssignedToEmployeeID != "U003" || got.AssignedToName != "張大同" {
		t.Errorf("assignee not updated: %+v", got)
	}
	notes := e.svc.Fixtures.Notifications(ctx, second.ID)
	if len(notes) != 1 || notes[0].Message != "王小明 將專案「春季檔期」指派給了您" {
		t.Errorf("new assignee notifications: %+v", notes)
	}
	comments, _ := e.projects.Comments(ctx, p.ID)
	if len(comments) != 1 || comments[0].Text != "將負責人更改為: 張大同" {
		t.Errorf("unexpected comments: %+v", comments)
	}

	e.do(t, creator, "PATCH", "/missing", map[string]string{"status": models.ProjectActive}).AssertStatus(t, http.StatusNotFound)
	e.do(t, creator, "PATCH", "/"+p.ID, map[string]string{"status": "bogus"}).AssertStatus(t, http.StatusBadRequest)
}

func TestDelete_CreatorOrAdmin(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	creator := e.svc.Fixtures.CreateUser(ctx, "U001", "王小明", models.RoleUser)
	other := e.svc.Fixtures.CreateUser(ctx, "U002", "李小華", models.RoleUser)
	admin := e.svc.Fixtures.CreateAdmin(ctx, "A001", "管理員")
	p1 := e.svc.Fixtures.CreateProject(ctx, "一", creator, other, models.ProjectActive)
	p2 := e.svc.Fixtures.CreateProject(ctx, "二", creator, other, models.ProjectActive)

	if _, err := e.projects.AddComment(ctx, models.Comment{ProjectID: p1.ID, Text: "hello"}); err != nil {
		t.Fatalf("AddComment: %v", err)
	}

	e.do(t, other, "DELETE", "/"+p1.ID, nil).AssertStatus(t, http.StatusForbidden)
	e.do(t, creator, "DELETE", "/"+p1.ID, nil).AssertStatus(t, http.StatusNoContent)
	e.do(t, admin, "DELETE", "/"+p2.ID, nil).AssertStatus(t, http.StatusNoContent)
	e.do(t, admin, "DELETE", "/"+p2.ID, nil).AssertStatus(t, http.StatusNotFound)

	if n, _ := e.svc.DB.Count(ctx, models.CollProjectComments, nil); n != 0 {
		t.Errorf("comments should be removed with the project, %d left", n)
	}
}

func TestComments(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := e.svc.Fixtures.CreateUser(ctx, "U001", "王小明", models.RoleUser)
	p := e.svc.Fixtures.CreateProject(ctx, "春季檔期", u, u, models.ProjectActive)

	e.do(t, u, "POST", "/"+p.ID+"/comments", map[string]string{"text": "  已聯絡廠商 "}).AssertStatus(t, http.StatusCreated)
	e.do(t, u, "POST", "/"+p.ID+"/comments", map[string]string{"text": "   "}).AssertStatus(t, http.StatusBadRequest)
	e.do(t, u, "POST", "/missing/comments", map[string]string{"text": "x"}).AssertStatus(t, http.StatusNotFound)

	rec := e.do(t, u, "GET", "/"+p.ID+"/comments", nil)
	rec.AssertStatus(t, http.StatusOK)
	var list []models.Comment
	rec.DecodeJSON(t, &list)
	if len(list) != 1 || list[0].Text != "已聯絡廠商" || list[0].UserName != "王小明" {
		t.Errorf("unexpected comments: %+v", list)
	}
}

func TestChangeComments(t *testing.T) {
	before := models.Project{Status: models.ProjectActive, Urgency: models.UrgencyNormal, AssignedToEmployeeID: "U1", AssignedToName: "甲"}
	after := before
	after.Urgency = models.UrgencyVeryUrgent
	after.AssignedToEmployeeID, after.AssignedToName = "", ""

	got := projects.ChangeComments(before, after)
	want := []string{"將緊急度更改為: 非常緊急", "將負責人更改為: 未指派"}
	if len(got) != len(want) {
		t.Fatalf("ChangeComments = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ChangeComments[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// downNotifications fails every notification write.
type downNotifications struct {
	*memstore.Store
}

func (d downNotifications) Insert(ctx context.Context, coll, id string, data bson.M) error {
	if coll == models.CollNotifications {
		return errors.New("notifications unavailable")
	}
	return d.Store.Insert(ctx, coll, id, data)
}

func TestCreate_NotificationFailureIsLoggedNotFatal(t *testing.T) {
	svc := testutil.NewServices(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)
	notifier := notify.New(downNotifications{svc.DB}, logger, svc.Audit)
	h := projects.NewHandler(projectstore.New(svc.DB), svc.Users, notifier, svc.Audit, logger)
	router := projects.Routes(h, testutil.NewSessionManager(t))

	creator := svc.Fixtures.CreateUser(ctx, "U001", "王小明", models.RoleUser)
	svc.Fixtures.CreateUser(ctx, "U002", "李小華", models.RoleUser)

	req := testutil.NewJSONRequest(t, "POST", "/", map[string]string{
		"title":                   "春季檔期",
		"urgency":                 models.UrgencyNormal,
		"assigned_to_employee_id": "U002",
	})
	rec := testutil.NewRecorder()
	router.ServeHTTP(rec, testutil.AsActor(req, testutil.Actor(creator)))
	rec.AssertStatus(t, http.StatusCreated)

	var p models.Project
	rec.DecodeJSON(t, &p)

	entries := logs.FilterMessage("assignment notification failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one assignment failure log, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["project_id"]; got != p.ID {
		t.Errorf("project_id = %v, want %s", got, p.ID)
	}
}
