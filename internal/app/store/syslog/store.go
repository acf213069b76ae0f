// internal/app/store/syslog/store.go
package syslog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dalemusser/handspm/internal/app/system/docstore"
	"github.com/dalemusser/handspm/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
)

// Store is the append-only system log ("logs" collection).
type Store struct {
	b   docstore.Backend
	now func() time.Time
}

// New returns a log store on b.
func New(b docstore.Backend) *Store {
	return &Store{b: b, now: func() time.Time { return time.Now().UTC() }}
}

// Append writes one entry, stamping the timestamp when unset.
func (s *Store) Append(ctx context.Context, e models.LogEntry) (string, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	data, err := docstore.Encode(e)
	if err != nil {
		return "", err
	}
	id, err := s.b.Create(ctx, models.CollLogs, data)
	if err != nil {
		return "", fmt.Errorf("append log: %w", err)
	}
	return id, nil
}

// Recent returns up to limit entries, newest first. limit <= 0 means all.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.LogEntry, error) {
	docs, err := s.b.Find(ctx, models.CollLogs, bson.M{})
	if err != nil {
		return nil, err
	}
	out, err := docstore.DecodeAll[models.LogEntry](docs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Clear removes every entry and returns how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	n, err := s.b.DeleteWhere(ctx, models.CollLogs, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("clear logs: %w", err)
	}
	return n, nil
}
