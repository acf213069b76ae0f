// internal/domain/models/request.go
package models

import "time"

// Request statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// VoucherReasons are the accepted reasons for a voucher request.
var VoucherReasons = []string{"活動結束退換貨補券", "客訴或個案", "其他"}

// MemberChangeTypes are the accepted member-data change types.
var MemberChangeTypes = []string{"變更手機號碼", "變更生日", "刪除會員", "其他"}

// Request is a point top-up, voucher, or member-change request. The kind is
// determined by the collection it lives in; kind-specific fields are empty
// for the other kinds.
type Request struct {
	ID            string `bson:"_id" json:"id"`
	RequesterID   string `bson:"requester_id" json:"requester_id"` // employee id
	RequesterName string `bson:"requester_name" json:"requester_name"`
	Department    string `bson:"department,omitempty" json:"department,omitempty"`
	Status        string `bson:"status" json:"status"`

	// point
	Points           int    `bson:"points,omitempty" json:"points,omitempty"`
	MemberIdentifier string `bson:"member_identifier,omitempty" json:"member_identifier,omitempty"`

	// voucher
	Reason       string `bson:"reason,omitempty" json:"reason,omitempty"`
	AssignedCode string `bson:"assigned_code,omitempty" json:"assigned_code,omitempty"`

	// member_change
	CardID     string `bson:"card_id,omitempty" json:"card_id,omitempty"`
	ChangeType string `bson:"change_type,omitempty" json:"change_type,omitempty"`
	Note       string `bson:"note,omitempty" json:"note,omitempty"`

	ApprovedBy  string     `bson:"approved_by,omitempty" json:"approved_by,omitempty"`
	ApproverID  string     `bson:"approver_id,omitempty" json:"approver_id,omitempty"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// VoucherEntry is one redeemable code in the voucher pool.
type VoucherEntry struct {
	ID                  string    `bson:"_id" json:"id"`
	Code                string    `bson:"code" json:"code"`
	IsUsed              bool      `bson:"is_used" json:"is_used"`
	AssignedToRequestID string    `bson:"assigned_to_request_id,omitempty" json:"assigned_to_request_id,omitempty"`
	CreatedAt           time.Time `bson:"created_at" json:"created_at"`
}
