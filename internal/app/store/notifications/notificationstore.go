package notificationstore

import (
	"context"
	"errors"
	"sort"

	"github.com/dalemusser/handspm/internal/app/system/docstore"
	"github.com/dalemusser/handspm/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
)

// ErrNotFound is returned when the notification does not exist or is
// addressed to someone else.
var ErrNotFound = errors.New("notification not found")

type Store struct {
	b docstore.Backend
}

func New(b docstore.Backend) *Store {
	return &Store{b: b}
}

// ForUser lists uid's notifications newest first.
func (s *Store) ForUser(ctx context.Context, uid string) ([]models.Notification, error) {
	docs, err := s.b.Find(ctx, models.CollNotifications, bson.M{"target_user_id": uid})
	if err != nil {
		return nil, err
	}
	out, err := docstore.DecodeAll[models.Notification](docs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Unread counts uid's unread notifications.
func (s *Store) Unread(ctx context.Context, uid string) (int64, error) {
	return s.b.Count(ctx, models.CollNotifications, bson.M{"target_user_id": uid, "read": false})
}

// MarkRead flags one of uid's notifications as read.
func (s *Store) MarkRead(ctx context.Context, id, uid string) error {
	err := docstore.UpdateWhere(ctx, s.b, models.CollNotifications, id,
		bson.M{"target_user_id": uid}, bson.M{"read": true})
	if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrConflict) {
		return ErrNotFound
	}
	return err
}

// ClearAll deletes every notification for every user.
func (s *Store) ClearAll(ctx context.Context) (int64, error) {
	return s.b.DeleteWhere(ctx, models.CollNotifications, nil)
}
