package schedulestore

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
)

var ErrNotFound = errors.New("schedule not found")

type Store struct {
	b   docstore.Backend
	now func() time.Time
}

func New(b docstore.Backend) *Store {
	return &Store{b: b, now: func() time.Time { return time.Now().UTC() }}
}

type Input struct {
	Name      string `json:"name" validate:"required,max=100" label:"活動名稱"`
	StartDate string `json:"start_date" validate:"required,date" label:"開始日期"`
	EndDate   string `json:"end_date" validate:"required,date" label:"結束日期"`
}

// Create adds a schedule. The window is inclusive and may not overlap any
// existing schedule.
func (s *Store) Create(ctx context.Context, in Input) (models.Schedule, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := inputval.Validate(in).Err(); err != nil {
		return models.Schedule{}, err
	}
	// YYYY-MM-DD compares correctly as a string.
	if in.EndDate < in.StartDate {
		return models.Schedule{}, inputval.New("end_date", "結束日期不可早於開始日期")
	}
	existing, err := s.List(ctx)
	if err != nil {
		return models.Schedule{}, err
	}
	for _, e := range existing {
		if in.StartDate <= e.EndDate && e.StartDate <= in.EndDate {
			return models.Schedule{}, inputval.New("start_date", "活動期間與「%s」重疊", e.Name)
		}
	}

	sc := models.Schedule{
		Name:      in.Name,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		CreatedAt: s.now(),
	}
	data, err := docstore.Encode(sc)
	if err != nil {
		return models.Schedule{}, err
	}
	id, err := s.b.Create(ctx, models.CollSchedules, data)
	if err != nil {
		return models.Schedule{}, fmt.Errorf("create schedule: %w", err)
	}
	sc.ID = id
	return sc, nil
}

// List returns every schedule by start date ascending.
func (s *Store) List(ctx context.Context) ([]models.Schedule, error) {
	docs, err := s.b.Find(ctx, models.CollSchedules, nil)
	if err != nil {
		return nil, err
	}
	out, err := docstore.DecodeAll[models.Schedule](docs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartDate < out[j].StartDate })
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.b.Delete(ctx, models.CollSchedules, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
