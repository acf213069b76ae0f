// internal/domain/models/collections.go
package models

// Collection names in the document store.
const (
	CollUsers                = "users"
	CollCredentials          = "credentials"
	CollProjects             = "projects"
	CollProjectComments      = "project_comments"
	CollPointRequests        = "point_requests"
	CollVoucherRequests      = "voucher_requests"
	CollMemberChangeRequests = "member_change_requests"
	CollVoucherPool          = "voucher_pool"
	CollNotifications        = "notifications"
	CollSchedules            = "schedules"
	CollAnnouncements        = "announcements"
	CollLogs                 = "logs"
)
