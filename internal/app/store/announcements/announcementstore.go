package announcementstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dalemusser/handspm/internal/app/system/docstore"
	"github.com/dalemusser/handspm/internal/app/system/htmlsanitize"
	"github.com/dalemusser/handspm/internal/app/system/inputval"
	"github.com/dalemusser/handspm/internal/domain/models"
)

var ErrNotFound = errors.New("announcement not found")

type Store struct {
	b   docstore.Backend
	now func() time.Time
}

func New(b docstore.Backend) *Store {
	return &Store{b: b, now: func() time.Time { return time.Now().UTC() }}
}

// Create stores sanitized announcement content.
func (s *Store) Create(ctx context.Context, content, creatorEmployeeID, creatorName string) (models.Announcement, error) {
	content = htmlsanitize.Sanitize(strings.TrimSpace(content))
	if strings.TrimSpace(htmlsanitize.StripTags(content)) == "" {
		return models.Announcement{}, inputval.New("content", "公告內容為必填")
	}
	a := models.Announcement{
		Content:     content,
		CreatedBy:   creatorEmployeeID,
		CreatorName: creatorName,
		CreatedAt:   s.now(),
	}
	data, err := docstore.Encode(a)
	if err != nil {
		return models.Announcement{}, err
	}
	id, err := s.b.Create(ctx, models.CollAnnouncements, data)
	if err != nil {
		return models.Announcement{}, fmt.Errorf("create announcement: %w", err)
	}
	a.ID = id
	return a, nil
}

// List returns announcements newest first.
func (s *Store) List(ctx context.Context) ([]models.Announcement, error) {
	docs, err := s.b.Find(ctx, models.CollAnnouncements, nil)
	if err != nil {
		return nil, err
	}
	out, err := docstore.DecodeAll[models.Announcement](docs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.b.Delete(ctx, models.CollAnnouncements, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
