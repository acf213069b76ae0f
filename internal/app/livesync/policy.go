package livesync

import (
	"sort"
	"time"

	"github.com/dalemusser/handspm/internal/app/system/authz"
	"github.com/dalemusser/handspm/internal/app/system/docstore"
	"github.com/dalemusser/handspm/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Viewer is the signed-in user a session synchronizes for.
type Viewer = authz.Actor

// SortMode orders a synchronized collection.
type SortMode int

const (
	SortNone SortMode = iota
	// SortNewestFirst orders by a timestamp field, newest first.
	SortNewestFirst
	// SortCalendarAscending orders by a YYYY-MM-DD field, earliest first.
	SortCalendarAscending
)

// Policy declares how one logical collection is synchronized.
type Policy struct {
	Name       string
	Collection string
	// Allow gates the whole subscription; nil allows every viewer.
	Allow func(Viewer) bool
	// Visible filters individual documents; nil keeps all.
	Visible   func(Viewer, docstore.Document) bool
	SortField string
	Sort      SortMode
}

// Logical collection names.
const (
	Users                = "users"
	Projects             = "projects"
	Logs                 = "logs"
	Schedules            = "schedules"
	Announcements        = "announcements"
	VoucherPool          = "voucherPool"
	Notifications        = "notifications"
	PointRequests        = "pointRequests"
	VoucherRequests      = "voucherRequests"
	MemberChangeRequests = "memberChangeRequests"
)

func ownRequests(v Viewer, d docstore.Document) bool {
	if v.Perms.CanSeeAllRequests {
		return true
	}
	id, _ := d.Data["requester_id"].(string)
	return id == v.EmployeeID
}

// DefaultPolicies returns the standard policy set.
func DefaultPolicies() []Policy {
	return []Policy{
		{Name: Users, Collection: models.CollUsers},
		{Name: Projects, Collection: models.CollProjects, SortField: "updated_at", Sort: SortNewestFirst},
		{
			Name:       Logs,
			Collection: models.CollLogs,
			Allow:      func(v Viewer) bool { return v.Perms.CanViewLogs },
			SortField:  "timestamp",
			Sort:       SortNewestFirst,
		},
		{Name: Schedules, Collection: models.CollSchedules, SortField: "start_date", Sort: SortCalendarAscending},
		{Name: Announcements, Collection: models.CollAnnouncements, SortField: "created_at", Sort: SortNewestFirst},
		{
			Name:       VoucherPool,
			Collection: models.CollVoucherPool,
			Allow:      func(v Viewer) bool { return v.Perms.CanManageInventory || v.Perms.CanApproveVoucher },
		},
		{
			Name:       Notifications,
			Collection: models.CollNotifications,
			Visible: func(v Viewer, d docstore.Document) bool {
				id, _ := d.Data["target_user_id"].(string)
				return id == v.UID
			},
			SortField: "created_at",
			Sort:      SortNewestFirst,
		},
		{Name: PointRequests, Collection: models.CollPointRequests, Visible: ownRequests, SortField: "created_at", Sort: SortNewestFirst},
		{Name: VoucherRequests, Collection: models.CollVoucherRequests, Visible: ownRequests, SortField: "created_at", Sort: SortNewestFirst},
		{Name: MemberChangeRequests, Collection: models.CollMemberChangeRequests, Visible: ownRequests, SortField: "created_at", Sort: SortNewestFirst},
	}
}

// allowed returns the policies v may subscribe to.
func allowed(policies []Policy, v Viewer) []Policy {
	out := make([]Policy, 0, len(policies))
	for _, p := range policies {
		if p.Allow == nil || p.Allow(v) {
			out = append(out, p)
		}
	}
	return out
}

// collections lists the distinct backing collections of policies.
func collections(policies []Policy) []string {
	seen := make(map[string]bool, len(policies))
	var out []string
	for _, p := range policies {
		if !seen[p.Collection] {
			seen[p.Collection] = true
			out = append(out, p.Collection)
		}
	}
	return out
}

// project filters and sorts docs for v. The result is a new slice.
func (p Policy) project(v Viewer, docs []docstore.Document) []docstore.Document {
	out := make([]docstore.Document, 0, len(docs))
	for _, d := range docs {
		if p.Visible == nil || p.Visible(v, d) {
			out = append(out, d)
		}
	}
	switch p.Sort {
	case SortNewestFirst:
		sort.SliceStable(out, func(i, j int) bool {
			return timeField(out[i], p.SortField).After(timeField(out[j], p.SortField))
		})
	case SortCalendarAscending:
		sort.SliceStable(out, func(i, j int) bool {
			a, _ := out[i].Data[p.SortField].(string)
			b, _ := out[j].Data[p.SortField].(string)
			return a < b
		})
	}
	return out
}

// timeField reads a timestamp; a missing or unknown value is the zero time.
func timeField(d docstore.Document, field string) time.Time {
	switch t := d.Data[field].(type) {
	case primitive.DateTime:
		return t.Time()
	case time.Time:
		return t
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0)
	}
	return time.Time{}
}
