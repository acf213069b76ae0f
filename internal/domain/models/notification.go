// internal/domain/models/notification.go
package models

import "time"

// Notification types.
const (
	NotificationSystem     = "system"
	NotificationAssignment = "assignment"
)

// Notification is addressed to one user by uid.
type Notification struct {
	ID            string    `bson:"_id" json:"id"`
	TargetUserID  string    `bson:"target_user_id" json:"target_user_id"`
	Type          string    `bson:"type" json:"type"`
	Message       string    `bson:"message" json:"message"`
	LinkProjectID string    `bson:"link_project_id,omitempty" json:"link_project_id,omitempty"`
	Read          bool      `bson:"read" json:"read"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
}
