package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"campus-attendance/internal/docstore"
	"campus-attendance/internal/model"
	"campus-attendance/internal/store"
)

type NotificationService struct {
	mirror *store.MirrorStore
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewNotificationService(mirror *store.MirrorStore, log logrus.FieldLogger) *NotificationService {
	return &NotificationService{mirror: mirror, log: log, now: time.Now}
}

// Emit stores a new notification, assigning its id and creation time.
func (s *NotificationService) Emit(ctx context.Context, n *model.Notification) error {
	if n.UserID == "" {
		return fmt.Errorf("%w: notification has no recipient", model.ErrInvalidRecord)
	}
	n.ID = uuid.NewString()
	n.CreatedAt = s.now()
	if err := s.mirror.Upsert(ctx, store.CollectionNotifications, n.ID, n); err != nil {
		return fmt.Errorf("emit notification: %w", err)
	}
	s.log.WithFields(logrus.Fields{"user": n.UserID, "title": n.Title}).Debug("notification emitted")
	return nil
}

// ListByUser returns a user's notifications, newest first. Archived ones are included only
// when asked for.
func (s *NotificationService) ListByUser(ctx context.Context, userID string, includeArchived bool) ([]model.Notification, error) {
	all, err := store.QueryByUser[model.Notification](ctx, s.mirror, store.CollectionNotifications, userID)
	if err != nil {
		return nil, fmt.Errorf("notifications of user %s: %w", userID, err)
	}
	list := make([]model.Notification, 0, len(all))
	for _, n := range all {
		if n.Archived && !includeArchived {
			continue
		}
		list = append(list, n)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id string) error {
	return s.update(ctx, id, docstore.Fields{"read": true, "readAt": s.now().UTC()})
}

func (s *NotificationService) Archive(ctx context.Context, id string) error {
	return s.update(ctx, id, docstore.Fields{"archived": true})
}

func (s *NotificationService) Delete(ctx context.Context, id string) error {
	var n model.Notification
	found, err := s.mirror.Get(ctx, store.CollectionNotifications, id, &n)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotificationNotFound
	}
	return s.mirror.Delete(ctx, store.CollectionNotifications, id)
}

func (s *NotificationService) update(ctx context.Context, id string, fields docstore.Fields) error {
	err := s.mirror.Update(ctx, store.CollectionNotifications, id, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotificationNotFound
	}
	return err
}
