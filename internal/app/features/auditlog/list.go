// internal/app/features/auditlog/list.go
package auditlog

import (
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/handspm/internal/app/features/apierr"
	"github.com/dalemusser/handspm/internal/app/system/paging"
	"github.com/dalemusser/handspm/internal/app/system/timeouts"
	"github.com/dalemusser/handspm/internal/domain/models"
)

type listResponse struct {
	Entries    []models.LogEntry `json:"entries"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	TotalPages int               `json:"total_pages"`
}

// Filter narrows the system log. Zero fields match everything.
type Filter struct {
	Action string
	Start  *time.Time
	End    *time.Time
}

// Match reports whether e passes f.
func (f Filter) Match(e models.LogEntry) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Start != nil && e.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && !e.Timestamp.Before(*f.End) {
		return false
	}
	return true
}

// ServeList handles GET /api/logs with optional action, start_date,
// end_date (YYYY-MM-DD, inclusive) and page query parameters.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "system log list")
	defer cancel()

	q := r.URL.Query()
	filter := Filter{Action: strings.TrimSpace(q.Get("action"))}
	if s := strings.TrimSpace(q.Get("start_date")); s != "" {
		if t, err := time.ParseInLocation(models.DateLayout, s, h.Location); err == nil {
			filter.Start = &t
		}
	}
	if s := strings.TrimSpace(q.Get("end_date")); s != "" {
		if t, err := time.ParseInLocation(models.DateLayout, s, h.Location); err == nil {
			// End of day
			end := t.AddDate(0, 0, 1)
			filter.End = &end
		}
	}
	page := paging.ParsePage(r)

	all, err := h.Logs.Recent(ctx, 0)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	matched := make([]models.LogEntry, 0, len(all))
	for _, e := range all {
		if filter.Match(e) {
			matched = append(matched, e)
		}
	}

	win := paging.Compute(len(matched), page, paging.PageSize)

	apierr.JSON(w, http.StatusOK, listResponse{
		Entries:    paging.Slice(matched, win),
		Total:      len(matched),
		Page:       win.Page,
		TotalPages: win.TotalPages,
	})
}
