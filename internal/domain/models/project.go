// internal/domain/models/project.go
package models

import "time"

// Project statuses.
const (
	ProjectUnassigned  = "unassigned"
	ProjectActive      = "active"
	ProjectTransferred = "transferred"
	ProjectCompleted   = "completed"
	ProjectPending     = "pending"
	ProjectClosed      = "closed"
	ProjectApproved    = "approved"
	ProjectRejected    = "rejected"
)

// Urgency levels.
const (
	UrgencyNormal     = "normal"
	UrgencyUrgent     = "urgent"
	UrgencyVeryUrgent = "very_urgent"
)

var projectStatusLabels = map[string]string{
	ProjectUnassigned:  "待分配",
	ProjectActive:      "進行中",
	ProjectTransferred: "轉交給他人",
	ProjectCompleted:   "已完成",
	ProjectPending:     "待核准",
	ProjectClosed:      "已結案",
	ProjectApproved:    "已核准",
	ProjectRejected:    "已駁回",
}

var urgencyLabels = map[string]string{
	UrgencyNormal:     "正常",
	UrgencyUrgent:     "緊急",
	UrgencyVeryUrgent: "非常緊急",
}

// IsValidProjectStatus reports whether s is a known project status.
func IsValidProjectStatus(s string) bool {
	_, ok := projectStatusLabels[s]
	return ok
}

// IsValidUrgency reports whether u is a known urgency level.
func IsValidUrgency(u string) bool {
	_, ok := urgencyLabels[u]
	return ok
}

// ProjectStatusLabel returns the display label for a status.
func ProjectStatusLabel(s string) string {
	if l, ok := projectStatusLabels[s]; ok {
		return l
	}
	return s
}

// UrgencyLabel returns the display label for an urgency level.
func UrgencyLabel(u string) string {
	if l, ok := urgencyLabels[u]; ok {
		return l
	}
	return u
}

// IsCompletedStatus reports whether a project status belongs to the
// completed group. Everything else counts as active.
func IsCompletedStatus(s string) bool {
	switch s {
	case ProjectCompleted, ProjectClosed, ProjectApproved, ProjectRejected:
		return true
	}
	return false
}

// Project is a tracked piece of work.
type Project struct {
	ID                   string    `bson:"_id" json:"id"`
	Title                string    `bson:"title" json:"title"`
	Description          string    `bson:"description" json:"description"`
	Status               string    `bson:"status" json:"status"`
	Urgency              string    `bson:"urgency" json:"urgency"`
	AssignedToEmployeeID string    `bson:"assigned_to_employee_id" json:"assigned_to_employee_id"`
	AssignedToName       string    `bson:"assigned_to_name" json:"assigned_to_name"`
	CreatedBy            string    `bson:"created_by" json:"created_by"` // employee id
	CreatorName          string    `bson:"creator_name" json:"creator_name"`
	CreatedAt            time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt            time.Time `bson:"updated_at" json:"updated_at"`
}

// Comment types.
const (
	CommentSystem = "system"
	CommentUser   = "user"
)

// Comment belongs to exactly one project and is immutable.
type Comment struct {
	ID        string    `bson:"_id" json:"id"`
	ProjectID string    `bson:"project_id" json:"project_id"`
	Text      string    `bson:"text" json:"text"`
	Type      string    `bson:"type" json:"type"`
	UserID    string    `bson:"user_id,omitempty" json:"user_id,omitempty"`
	UserName  string    `bson:"user_name,omitempty" json:"user_name,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
