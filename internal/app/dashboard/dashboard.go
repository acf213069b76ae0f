// Package dashboard derives the dashboard summary from a live snapshot.
// Everything here is a pure function of its inputs.
package dashboard

import (
	"sort"
	"strings"
	"time"

	"github.com/dalemusser/handspm/internal/app/livesync"
	"github.com/dalemusser/handspm/internal/domain/models"
)

// RecentLogLimit is how many log entries an admin's summary carries.
const RecentLogLimit = 10

// Current returns the first schedule, in the given order, whose inclusive
// date range contains today.
func Current(schedules []models.Schedule, today time.Time) (models.Schedule, bool) {
	d := today.Format(models.DateLayout)
	for _, s := range schedules {
		if s.StartDate <= d && d <= s.EndDate {
			return s, true
		}
	}
	return models.Schedule{}, false
}

// Next returns the schedule with the nearest start date after today.
func Next(schedules []models.Schedule, today time.Time) (models.Schedule, bool) {
	d := today.Format(models.DateLayout)
	var best models.Schedule
	found := false
	for _, s := range schedules {
		if s.StartDate > d && (!found || s.StartDate < best.StartDate) {
			best, found = s, true
		}
	}
	return best, found
}

// DaysUntil counts calendar days from today to date (YYYY-MM-DD). It is
// negative for past dates.
func DaysUntil(date string, today time.Time) (int, error) {
	target, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return 0, err
	}
	y, m, d := today.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(target.Sub(from).Hours() / 24), nil
}

// Emoji picks a decoration for a schedule name.
func Emoji(name string) string {
	switch {
	case name == "":
		return "📅"
	case strings.Contains(name, "春"), strings.Contains(name, "年"):
		return "🧧"
	case strings.Contains(name, "母"):
		return "🌹"
	case strings.Contains(name, "父"):
		return "👔"
	case strings.Contains(name, "聖誕"):
		return "🎄"
	case strings.Contains(name, "夏"):
		return "☀️"
	case strings.Contains(name, "購"):
		return "🛍️"
	}
	return "📅"
}

// ScheduleCountdown is a schedule plus days remaining to its end (current)
// or start (next).
type ScheduleCountdown struct {
	Schedule models.Schedule `json:"schedule"`
	Days     int             `json:"days"`
	Emoji    string          `json:"emoji"`
}

// Summary is the dashboard for one viewer.
type Summary struct {
	Today               string                `json:"today"`
	Current             *ScheduleCountdown    `json:"current,omitempty"`
	Next                *ScheduleCountdown    `json:"next,omitempty"`
	ActiveProjects      int                   `json:"active_projects"`
	CompletedProjects   int                   `json:"completed_projects"`
	MyProjects          int                   `json:"my_projects"`
	UnreadNotifications int                   `json:"unread_notifications"`
	PendingRequests     map[string]int        `json:"pending_requests"`
	Announcements       []models.Announcement `json:"announcements"`
	RecentLogs          []models.LogEntry     `json:"recent_logs,omitempty"`
}

var requestNames = []string{livesync.PointRequests, livesync.VoucherRequests, livesync.MemberChangeRequests}

// Summarize builds v's dashboard from snap.
func Summarize(snap *livesync.Snapshot, v livesync.Viewer, today time.Time) (Summary, error) {
	out := Summary{
		Today:           today.Format(models.DateLayout),
		PendingRequests: make(map[string]int, len(requestNames)),
	}

	schedules, err := livesync.Items[models.Schedule](snap, livesync.Schedules)
	if err != nil {
		return Summary{}, err
	}
	// Synchronized order is by start date; re-sort in case the snapshot
	// came from elsewhere.
	sort.SliceStable(schedules, func(i, j int) bool { return schedules[i].StartDate < schedules[j].StartDate })
	if s, ok := Current(schedules, today); ok {
		days, _ := DaysUntil(s.EndDate, today)
		out.Current = &ScheduleCountdown{Schedule: s, Days: days, Emoji: Emoji(s.Name)}
	}
	if s, ok := Next(schedules, today); ok {
		days, _ := DaysUntil(s.StartDate, today)
		out.Next = &ScheduleCountdown{Schedule: s, Days: days, Emoji: Emoji(s.Name)}
	}

	projects, err := livesync.Items[models.Project](snap, livesync.Projects)
	if err != nil {
		return Summary{}, err
	}
	for _, p := range projects {
		if models.IsCompletedStatus(p.Status) {
			out.CompletedProjects++
		} else {
			out.ActiveProjects++
		}
		if p.AssignedToEmployeeID != "" && p.AssignedToEmployeeID == v.EmployeeID {
			out.MyProjects++
		}
	}

	notes, err := livesync.Items[models.Notification](snap, livesync.Notifications)
	if err != nil {
		return Summary{}, err
	}
	for _, n := range notes {
		if !n.Read && n.TargetUserID == v.UID {
			out.UnreadNotifications++
		}
	}

	for _, name := range requestNames {
		reqs, err := livesync.Items[models.Request](snap, name)
		if err != nil {
			return Summary{}, err
		}
		for _, r := range reqs {
			if r.Status == models.StatusPending {
				out.PendingRequests[name]++
			}
		}
	}

	if out.Announcements, err = livesync.Items[models.Announcement](snap, livesync.Announcements); err != nil {
		return Summary{}, err
	}

	if v.Perms.CanViewLogs {
		logs, err := livesync.Items[models.LogEntry](snap, livesync.Logs)
		if err != nil {
			return Summary{}, err
		}
		if len(logs) > RecentLogLimit {
			logs = logs[:RecentLogLimit]
		}
		out.RecentLogs = logs
	}
	return out, nil
}
