package authz_test

import (
	"testing"

	"github.com/dalemusser/handspm/internal/app/system/authz"
	"github.com/dalemusser/handspm/internal/domain/models"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		role string
		want authz.Permissions
	}{
		{"user", authz.Permissions{}},
		{"manager", authz.Permissions{CanApproveVoucher: true, CanSeeAllRequests: true, CanSendEmail: true}},
		{"", authz.Permissions{}},
		{"superuser", authz.Permissions{}},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			if got := authz.Resolve(tt.role); got != tt.want {
				t.Errorf("Resolve(%q) = %+v, want %+v", tt.role, got, tt.want)
			}
		})
	}
}

func TestResolve_AdminHasEverything(t *testing.T) {
	p := authz.Resolve("Admin")
	checks := map[string]bool{
		"CanApprovePoint":        p.CanApprovePoint,
		"CanApproveMemberChange": p.CanApproveMemberChange,
		"CanApproveVoucher":      p.CanApproveVoucher,
		"CanSeeAllRequests":      p.CanSeeAllRequests,
		"CanManageUsers":         p.CanManageUsers,
		"CanManageInventory":     p.CanManageInventory,
		"CanManageSchedules":     p.CanManageSchedules,
		"CanManageAnnouncements": p.CanManageAnnouncements,
		"CanBroadcast":           p.CanBroadcast,
		"CanMaintain":            p.CanMaintain,
		"CanViewLogs":            p.CanViewLogs,
		"CanDeleteAnyProject":    p.CanDeleteAnyProject,
		"CanSendEmail":           p.CanSendEmail,
	}
	for name, ok := range checks {
		if !ok {
			t.Errorf("admin lacks %s", name)
		}
	}
}

func TestManagerCannotApprovePoints(t *testing.T) {
	p := authz.Resolve(models.RoleManager)
	if p.CanApprovePoint || p.CanApproveMemberChange {
		t.Error("manager must not approve point or member-change requests")
	}
}

func TestNewActor(t *testing.T) {
	a := authz.NewActor(models.User{ID: "u1", EmployeeID: "E1", DisplayName: "Ann", Role: models.RoleAdmin})
	if a.UID != "u1" || a.EmployeeID != "E1" || !a.Perms.CanMaintain || !a.IsAdmin() {
		t.Errorf("NewActor = %+v", a)
	}
}

func TestRoleLabel(t *testing.T) {
	if authz.RoleLabel("admin") != "管理員" || authz.RoleLabel("user") != "一般" {
		t.Error("unexpected role labels")
	}
}
