// internal/domain/models/schedule.go
package models

import "time"

// DateLayout is the calendar-date format used by schedules.
const DateLayout = "2006-01-02"

// Schedule is a promotional activity window. Dates are calendar dates
// (YYYY-MM-DD), inclusive on both ends.
type Schedule struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	StartDate string    `bson:"start_date" json:"start_date"`
	EndDate   string    `bson:"end_date" json:"end_date"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Announcement is shown on the dashboard.
type Announcement struct {
	ID          string    `bson:"_id" json:"id"`
	Content     string    `bson:"content" json:"content"`
	CreatedBy   string    `bson:"created_by" json:"created_by"`
	CreatorName string    `bson:"creator_name" json:"creator_name"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

// LogEntry is an append-only system log record.
type LogEntry struct {
	ID        string    `bson:"_id" json:"id"`
	Action    string    `bson:"action" json:"action"`
	Details   string    `bson:"details" json:"details"`
	UserID    string    `bson:"user_id" json:"user_id"`
	UserName  string    `bson:"user_name" json:"user_name"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}
