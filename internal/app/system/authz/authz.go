// internal/app/system/authz/authz.go
package authz

import (
	"strings"

	"github.com/dalemusser/handspm/internal/domain/models"
)

// Permissions is the explicit capability set of a role. Every check in the
// application reads one of these flags; nothing compares role strings.
type Permissions struct {
	CanApprovePoint        bool `json:"can_approve_point"`
	CanApproveMemberChange bool `json:"can_approve_member_change"`
	CanApproveVoucher      bool `json:"can_approve_voucher"`
	CanSeeAllRequests      bool `json:"can_see_all_requests"`
	CanManageUsers         bool `json:"can_manage_users"`
	CanManageInventory     bool `json:"can_manage_inventory"`
	CanManageSchedules     bool `json:"can_manage_schedules"`
	CanManageAnnouncements bool `json:"can_manage_announcements"`
	CanBroadcast           bool `json:"can_broadcast"`
	CanMaintain            bool `json:"can_maintain"`
	CanViewLogs            bool `json:"can_view_logs"`
	CanDeleteAnyProject    bool `json:"can_delete_any_project"`
	CanSendEmail           bool `json:"can_send_email"`
}

// Resolve maps a stored role to its permissions. Unknown roles resolve to
// the empty set.
func Resolve(role string) Permissions {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case models.RoleAdmin:
		return Permissions{
			CanApprovePoint:        true,
			CanApproveMemberChange: true,
			CanApproveVoucher:      true,
			CanSeeAllRequests:      true,
			CanManageUsers:         true,
			CanManageInventory:     true,
			CanManageSchedules:     true,
			CanManageAnnouncements: true,
			CanBroadcast:           true,
			CanMaintain:            true,
			CanViewLogs:            true,
			CanDeleteAnyProject:    true,
			CanSendEmail:           true,
		}
	case models.RoleManager:
		return Permissions{
			CanApproveVoucher: true,
			CanSeeAllRequests: true,
			CanSendEmail:      true,
		}
	case models.RoleUser:
		return Permissions{}
	}
	return Permissions{}
}

// Actor is a signed-in identity together with its resolved permissions.
// It is built once from the stored user document and passed down to every
// operation that needs to know who is acting.
type Actor struct {
	UID         string
	EmployeeID  string
	DisplayName string
	Email       string
	Department  string
	Role        string
	Perms       Permissions
}

// NewActor resolves permissions for u.
func NewActor(u models.User) Actor {
	return Actor{
		UID:         u.ID,
		EmployeeID:  u.EmployeeID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Department:  u.Department,
		Role:        u.Role,
		Perms:       Resolve(u.Role),
	}
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return strings.EqualFold(a.Role, models.RoleAdmin) }

// RoleLabel returns the display label for a role.
func RoleLabel(role string) string {
	switch strings.ToLower(role) {
	case models.RoleAdmin:
		return "管理員"
	case models.RoleManager:
		return "主管"
	}
	return "一般"
}
