package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/handspm/internal/app/system/authz"
	"github.com/dalemusser/handspm/internal/app/system/docstore"
	"github.com/dalemusser/handspm/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// WithChiURLParam adds a chi URL parameter to the request context.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
		r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	}
	rctx.URLParams.Add(key, value)
	return r
}

// Fixtures writes test documents straight into a backend.
type Fixtures struct {
	b docstore.Backend
	t *testing.T
}

// NewFixtures creates fixtures on b.
func NewFixtures(t *testing.T, b docstore.Backend) *Fixtures {
	t.Helper()
	return &Fixtures{b: b, t: t}
}

func (f *Fixtures) put(ctx context.Context, coll, id string, v interface{}) {
	f.t.Helper()
	data, err := docstore.Encode(v)
	if err != nil {
		f.t.Fatalf("encode %s fixture: %v", coll, err)
	}
	if err := f.b.Insert(ctx, coll, id, data); err != nil {
		f.t.Fatalf("insert %s fixture: %v", coll, err)
	}
}

// CreateUser inserts a user with the given employee code and role.
func (f *Fixtures) CreateUser(ctx context.Context, employeeID, name, role string) models.User {
	f.t.Helper()
	u := models.User{
		ID:          uuid.NewString(),
		EmployeeID:  employeeID,
		DisplayName: name,
		Department:  "營運",
		Role:        role,
		CreatedAt:   time.Now().UTC(),
	}
	f.put(ctx, models.CollUsers, u.ID, u)
	return u
}

// CreateAdmin inserts an admin.
func (f *Fixtures) CreateAdmin(ctx context.Context, employeeID, name string) models.User {
	return f.CreateUser(ctx, employeeID, name, models.RoleAdmin)
}

// CreateManager inserts a manager.
func (f *Fixtures) CreateManager(ctx context.Context, employeeID, name string) models.User {
	return f.CreateUser(ctx, employeeID, name, models.RoleManager)
}

// Actor resolves u into an Actor.
func Actor(u models.User) authz.Actor {
	return authz.NewActor(u)
}

// CreateVoucher inserts an unused voucher pool entry.
func (f *Fixtures) CreateVoucher(ctx context.Context, code string) models.VoucherEntry {
	f.t.Helper()
	v := models.VoucherEntry{ID: uuid.NewString(), Code: code, CreatedAt: time.Now().UTC()}
	f.put(ctx, models.CollVoucherPool, v.ID, v)
	return v
}

// CreateRequest inserts a request into coll with the given status.
func (f *Fixtures) CreateRequest(ctx context.Context, coll string, requester models.User, status string) models.Request {
	f.t.Helper()
	r := models.Request{
		ID:            uuid.NewString(),
		RequesterID:   requester.EmployeeID,
		RequesterName: requester.DisplayName,
		Department:    requester.Department,
		Status:        status,
		CreatedAt:     time.Now().UTC(),
	}
	switch coll {
	case models.CollPointRequests:
		r.Points, r.MemberIdentifier = 100, "0912345678"
	case models.CollVoucherRequests:
		r.Reason = models.VoucherReasons[0]
	case models.CollMemberChangeRequests:
		r.CardID, r.ChangeType = "C001", models.MemberChangeTypes[0]
	}
	f.put(ctx, coll, r.ID, r)
	return r
}

// CreateSchedule inserts a schedule.
func (f *Fixtures) CreateSchedule(ctx context.Context, name, start, end string) models.Schedule {
	f.t.Helper()
	s := models.Schedule{ID: uuid.NewString(), Name: name, StartDate: start, EndDate: end, CreatedAt: time.Now().UTC()}
	f.put(ctx, models.CollSchedules, s.ID, s)
	return s
}

// CreateProject inserts a project created by creator and assigned to assignee.
func (f *Fixtures) CreateProject(ctx context.Context, title string, creator, assignee models.User, status string) models.Project {
	f.t.Helper()
	now := time.Now().UTC()
	p := models.Project{
		ID:                   uuid.NewString(),
		Title:                title,
		Status:               status,
		Urgency:              models.UrgencyNormal,
		AssignedToEmployeeID: assignee.EmployeeID,
		AssignedToName:       assignee.DisplayName,
		CreatedBy:            creator.EmployeeID,
		CreatorName:          creator.DisplayName,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	f.put(ctx, models.CollProjects, p.ID, p)
	return p
}

// Notifications returns every notification addressed to uid.
func (f *Fixtures) Notifications(ctx context.Context, uid string) []models.Notification {
	f.t.Helper()
	docs, err := f.b.Find(ctx, models.CollNotifications, bson.M{"target_user_id": uid})
	if err != nil {
		f.t.Fatalf("find notifications: %v", err)
	}
	out, err := docstore.DecodeAll[models.Notification](docs)
	if err != nil {
		f.t.Fatalf("decode notifications: %v", err)
	}
	return out
}
