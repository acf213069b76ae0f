package workflow

import (
	"github.com/dalemusser/handspm/internal/app/system/authz"
	"github.com/dalemusser/handspm/internal/domain/models"
)

// Kind is one of the three request workflows.
type Kind string

const (
	KindPoint        Kind = "point"
	KindVoucher      Kind = "voucher"
	KindMemberChange Kind = "member_change"
)

// Kinds lists every request kind.
var Kinds = []Kind{KindPoint, KindVoucher, KindMemberChange}

// ParseKind accepts a kind name as used in URLs.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindPoint, KindVoucher, KindMemberChange:
		return Kind(s), true
	}
	return "", false
}

// Collection is where requests of this kind are stored.
func (k Kind) Collection() string {
	switch k {
	case KindPoint:
		return models.CollPointRequests
	case KindVoucher:
		return models.CollVoucherRequests
	case KindMemberChange:
		return models.CollMemberChangeRequests
	}
	return ""
}

// Label is the user-facing name.
func (k Kind) Label() string {
	switch k {
	case KindPoint:
		return "補點"
	case KindVoucher:
		return "電子券"
	case KindMemberChange:
		return "會員異動"
	}
	return string(k)
}

// CanApprove reports whether p may decide requests of this kind.
func (k Kind) CanApprove(p authz.Permissions) bool {
	switch k {
	case KindPoint:
		return p.CanApprovePoint
	case KindVoucher:
		return p.CanApproveVoucher
	case KindMemberChange:
		return p.CanApproveMemberChange
	}
	return false
}

// IsApprover selects who is told about a new request of this kind.
func (k Kind) IsApprover(u models.User) bool {
	return k.CanApprove(authz.Resolve(u.Role))
}
