// internal/app/features/projects/handler.go
package projects

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dalemusser/handspm/internal/app/features/apierr"
	"github.com/dalemusser/handspm/internal/app/notify"
	projectstore "github.com/dalemusser/handspm/internal/app/store/projects"
	userstore "github.com/dalemusser/handspm/internal/app/store/users"
	"github.com/dalemusser/handspm/internal/app/system/auditlog"
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/authz"
	"github.com/dalemusser/handspm/internal/app/system/inputval"
	"github.com/dalemusser/handspm/internal/app/system/timeouts"
	"github.com/dalemusser/handspm/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves project tracking: the project list, edits and comments.
type Handler struct {
	Projects *projectstore.Store
	Users    *userstore.Store
	Notifier *notify.Notifier
	AuditLog *auditlog.Logger
	Log      *zap.Logger
}

func NewHandler(projects *projectstore.Store, users *userstore.Store, notifier *notify.Notifier, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Projects: projects,
		Users:    users,
		Notifier: notifier,
		AuditLog: audit,
		Log:      logger,
	}
}

// ServeList handles GET /api/projects.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	list, err := h.Projects.List(ctx)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, list)
}

// HandleCreate handles POST /api/projects. The assignee, if any, is
// notified with a link to the project.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	var in projectstore.Input
	if err := apierr.Decode(w, r, &in); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	assignee, err := h.assignee(ctx, in.AssignedToEmployeeID)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	in.AssignedToEmployeeID, in.AssignedToName = assignee.EmployeeID, assignee.DisplayName

	p, err := h.Projects.Create(ctx, in, actor.EmployeeID, actor.DisplayName)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	msg := fmt.Sprintf("%s 指派了新專案「%s」給您", actor.DisplayName, p.Title)
	if err := h.Notifier.Notify(ctx, notify.NewEvent(models.NotificationAssignment, msg, p.ID), assignee.ID); err != nil {
		h.Log.Warn("assignment notification failed",
			zap.String("project_id", p.ID),
			zap.String("uid", assignee.ID),
			zap.Error(err))
	}

	apierr.JSON(w, http.StatusCreated, p)
}

// HandleUpdate handles PATCH /api/projects/{id}. Each changed field leaves
// a system comment; a new assignee and (when someone else made the change)
// the creator are notified.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)
	id := chi.URLParam(r, "id")

	var upd projectstore.Update
	if err := apierr.Decode(w, r, &upd); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	var newAssignee models.User
	if upd.AssignedToEmployeeID != nil {
		a, err := h.assignee(ctx, *upd.AssignedToEmployeeID)
		if err != nil {
			apierr.Write(w, h.Log, err)
			return
		}
		newAssignee = a
		upd.AssignedToEmployeeID, upd.AssignedToName = &a.EmployeeID, &a.DisplayName
	}

	before, after, err := h.Projects.Apply(ctx, id, upd)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	for _, text := range ChangeComments(before, after) {
		if _, err := h.Projects.AddComment(ctx, models.Comment{ProjectID: id, Text: text, Type: models.CommentSystem}); err != nil {
			h.Log.Warn("add system comment", zap.String("project_id", id), zap.Error(err))
		}
	}

	if after.AssignedToEmployeeID != before.AssignedToEmployeeID && newAssignee.ID != "" {
		msg := fmt.Sprintf("%s 將專案「%s」指派給了您", actor.DisplayName, before.Title)
		if err := h.Notifier.Notify(ctx, notify.NewEvent(models.NotificationAssignment, msg, id), newAssignee.ID); err != nil {
			h.Log.Warn("assignment notification failed",
				zap.String("project_id", id),
				zap.String("uid", newAssignee.ID),
				zap.Error(err))
		}
	}
	if after.Status != before.Status && before.CreatedBy != actor.EmployeeID {
		if creator, err := h.Users.GetByEmployeeID(ctx, before.CreatedBy); err == nil {
			msg := fmt.Sprintf("您的專案「%s」狀態已更新為：%s", before.Title, models.ProjectStatusLabel(after.Status))
			if err := h.Notifier.Notify(ctx, notify.NewEvent(models.NotificationSystem, msg, id), creator.ID); err != nil {
				h.Log.Warn("status notification failed",
					zap.String("project_id", id),
					zap.String("uid", creator.ID),
					zap.Error(err))
			}
		}
	}

	apierr.JSON(w, http.StatusOK, after)
}

// ChangeComments describes what changed between two versions of a project.
func ChangeComments(before, after models.Project) []string {
	var out []string
	if after.Status != before.Status {
		out = append(out, "將狀態更改為: "+models.ProjectStatusLabel(after.Status))
	}
	if after.Urgency != before.Urgency {
		out = append(out, "將緊急度更改為: "+models.UrgencyLabel(after.Urgency))
	}
	if after.AssignedToEmployeeID != before.AssignedToEmployeeID {
		name := after.AssignedToName
		if name == "" {
			name = "未指派"
		}
		out = append(out, "將負責人更改為: "+name)
	}
	return out
}

// HandleDelete handles DELETE /api/projects/{id}. Only the creator or a
// user allowed to delete any project may remove it.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	p, err := h.Projects.Get(ctx, id)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	if !CanDelete(*actor, p) {
		apierr.Error(w, http.StatusForbidden, "只有建立者或管理員可以刪除專案")
		return
	}
	if err := h.Projects.Delete(ctx, id); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	h.AuditLog.As(ctx, *actor, auditlog.ActionProjectAdmin, "刪除專案: "+p.Title)
	w.WriteHeader(http.StatusNoContent)
}

// CanDelete reports whether actor may delete p.
func CanDelete(actor authz.Actor, p models.Project) bool {
	return actor.Perms.CanDeleteAnyProject || p.CreatedBy == actor.EmployeeID
}

// ServeComments handles GET /api/projects/{id}/comments.
func (h *Handler) ServeComments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if _, err := h.Projects.Get(ctx, id); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	list, err := h.Projects.Comments(ctx, id)
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, list)
}

type commentRequest struct {
	Text string `json:"text"`
}

// HandleComment handles POST /api/projects/{id}/comments.
func (h *Handler) HandleComment(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)
	id := chi.URLParam(r, "id")

	var in commentRequest
	if err := apierr.Decode(w, r, &in); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if _, err := h.Projects.Get(ctx, id); err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	c, err := h.Projects.AddComment(ctx, models.Comment{
		ProjectID: id,
		Text:      in.Text,
		Type:      models.CommentUser,
		UserID:    actor.UID,
		UserName:  actor.DisplayName,
	})
	if err != nil {
		apierr.Write(w, h.Log, err)
		return
	}
	apierr.JSON(w, http.StatusCreated, c)
}

// assignee resolves an employee code to a user. An empty code means no
// assignee.
func (h *Handler) assignee(ctx context.Context, employeeID string) (models.User, error) {
	if employeeID == "" {
		return models.User{}, nil
	}
	u, err := h.Users.GetByEmployeeID(ctx, employeeID)
	if errors.Is(err, userstore.ErrNotFound) {
		return models.User{}, inputval.New("assigned_to_employee_id", "找不到負責人: %s", employeeID)
	}
	return u, err
}
