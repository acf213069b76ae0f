package projectstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dalemusser/handspm/internal/app/system/docstore"
	"github.com/dalemusser/handspm/internal/app/system/inputval"
	"github.com/dalemusser/handspm/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
)

// ErrNotFound is returned when a project does not exist.
var ErrNotFound = errors.New("project not found")

type Store struct {
	b   docstore.Backend
	now func() time.Time
}

func New(b docstore.Backend) *Store {
	return &Store{b: b, now: func() time.Time { return time.Now().UTC() }}
}

// Input is the create form.
type Input struct {
	Title                string `json:"title" validate:"required,max=100" label:"專案名稱"`
	Description          string `json:"description" validate:"max=2000" label:"說明"`
	Urgency              string `json:"urgency" validate:"omitempty,urgency" label:"緊急程度"`
	AssignedToEmployeeID string `json:"assigned_to_employee_id"`
	AssignedToName       string `json:"assigned_to_name"`
}

// Create inserts a project owned by the creator. A project with an
// assignee starts active; without one it starts unassigned.
func (s *Store) Create(ctx context.Context, in Input, creatorEmployeeID, creatorName string) (models.Project, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := inputval.Validate(in).Err(); err != nil {
		return models.Project{}, err
	}
	if in.Urgency == "" {
		in.Urgency = models.UrgencyNormal
	}
	status := models.ProjectUnassigned
	if in.AssignedToEmployeeID != "" {
		status = models.ProjectActive
	}
	now := s.now()
	p := models.Project{
		Title:                in.Title,
		Description:          in.Description,
		Status:               status,
		Urgency:              in.Urgency,
		AssignedToEmployeeID: in.AssignedToEmployeeID,
		AssignedToName:       in.AssignedToName,
		CreatedBy:            creatorEmployeeID,
		CreatorName:          creatorName,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	data, err := docstore.Encode(p)
	if err != nil {
		return models.Project{}, err
	}
	id, err := s.b.Create(ctx, models.CollProjects, data)
	if err != nil {
		return models.Project{}, fmt.Errorf("create project: %w", err)
	}
	p.ID = id
	return p, nil
}

// Get loads a project.
func (s *Store) Get(ctx context.Context, id string) (models.Project, error) {
	d, err := s.b.Get(ctx, models.CollProjects, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.Project{}, ErrNotFound
	}
	if err != nil {
		return models.Project{}, err
	}
	var p models.Project
	if err := d.Decode(&p); err != nil {
		return models.Project{}, err
	}
	return p, nil
}

// List returns every project, newest first.
func (s *Store) List(ctx context.Context) ([]models.Project, error) {
	docs, err := s.b.Find(ctx, models.CollProjects, nil)
	if err != nil {
		return nil, err
	}
	out, err := docstore.DecodeAll[models.Project](docs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Update is a partial change; nil fields are left alone.
type Update struct {
	Status               *string `json:"status"`
	Urgency              *string `json:"urgency"`
	Title                *string `json:"title"`
	Description          *string `json:"description"`
	AssignedToEmployeeID *string `json:"assigned_to_employee_id"`
	AssignedToName       *string `json:"assigned_to_name"`
}

// Apply writes upd and returns the project before and after.
func (s *Store) Apply(ctx context.Context, id string, upd Update) (before, after models.Project, err error) {
	before, err = s.Get(ctx, id)
	if err != nil {
		return
	}
	set := bson.M{}
	if upd.Status != nil {
		if !models.IsValidProjectStatus(*upd.Status) {
			err = inputval.New("status", "狀態格式不正確")
			return
		}
		set["status"] = *upd.Status
	}
	if upd.Urgency != nil {
		if !models.IsValidUrgency(*upd.Urgency) {
			err = inputval.New("urgency", "緊急程度格式不正確")
			return
		}
		set["urgency"] = *upd.Urgency
	}
	if upd.Title != nil {
		t := strings.TrimSpace(*upd.Title)
		if t == "" {
			err = inputval.New("title", "專案名稱為必填")
			return
		}
		set["title"] = t
	}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.AssignedToEmployeeID != nil {
		set["assigned_to_employee_id"] = *upd.AssignedToEmployeeID
		name := ""
		if upd.AssignedToName != nil {
			name = *upd.AssignedToName
		}
		set["assigned_to_name"] = name
	}
	if len(set) == 0 {
		return before, before, nil
	}
	set["updated_at"] = s.now()
	if err = s.b.Update(ctx, models.CollProjects, id, set); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			err = ErrNotFound
		}
		return
	}
	after, err = s.Get(ctx, id)
	return
}

// Delete removes a project and all of its comments in one batch.
func (s *Store) Delete(ctx context.Context, id string) error {
	comments, err := s.b.Find(ctx, models.CollProjectComments, bson.M{"project_id": id})
	if err != nil {
		return err
	}
	ops := []docstore.Op{{Kind: docstore.OpDelete, Collection: models.CollProjects, ID: id}}
	for _, c := range comments {
		ops = append(ops, docstore.Op{Kind: docstore.OpDelete, Collection: models.CollProjectComments, ID: c.ID})
	}
	err = s.b.Batch(ctx, ops)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// AddComment appends an immutable comment to a project.
func (s *Store) AddComment(ctx context.Context, c models.Comment) (models.Comment, error) {
	c.Text = strings.TrimSpace(c.Text)
	if c.Text == "" {
		return models.Comment{}, inputval.New("text", "留言內容為必填")
	}
	if c.Type == "" {
		c.Type = models.CommentUser
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	data, err := docstore.Encode(c)
	if err != nil {
		return models.Comment{}, err
	}
	id, err := s.b.Create(ctx, models.CollProjectComments, data)
	if err != nil {
		return models.Comment{}, fmt.Errorf("add comment: %w", err)
	}
	c.ID = id
	return c, nil
}

// Comments lists a project's comments oldest first.
func (s *Store) Comments(ctx context.Context, projectID string) ([]models.Comment, error) {
	docs, err := s.b.Find(ctx, models.CollProjectComments, bson.M{"project_id": projectID})
	if err != nil {
		return nil, err
	}
	out, err := docstore.DecodeAll[models.Comment](docs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
