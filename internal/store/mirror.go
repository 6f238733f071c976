package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"campus-attendance/internal/docstore"
	"campus-attendance/internal/model"
)

// Flat collections.
const (
	CollectionUsers         = "users"
	CollectionTeachers      = "teachers"
	CollectionLeaveRequests = "leaveRequests"
	CollectionAttendance    = "attendance"
	CollectionNotifications = "notifications"
)

// MirrorStore is the flat, scope-independent view of records keyed by id and queried by user.
// Query results are unordered.
type MirrorStore struct {
	db docstore.Store
}

func NewMirrorStore(db docstore.Store) *MirrorStore {
	return &MirrorStore{db: db}
}

// Upsert merges doc into collection/id.
func (s *MirrorStore) Upsert(ctx context.Context, collection, id string, doc any) error {
	fields, err := docstore.Encode(doc)
	if err != nil {
		return err
	}
	path := docstore.Join(collection, id)
	if err := s.db.Set(ctx, path, fields, true); err != nil {
		return fmt.Errorf("upsert %s: %w", path, err)
	}
	return nil
}

// Update merges fields into an existing document, returning docstore.ErrNotFound if absent.
func (s *MirrorStore) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	path := docstore.Join(collection, id)
	if _, err := s.db.Get(ctx, path); err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	if err := s.db.Set(ctx, path, fields, true); err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	return nil
}

// Get decodes collection/id into out. It returns false when the document does not exist.
func (s *MirrorStore) Get(ctx context.Context, collection, id string, out any) (bool, error) {
	path := docstore.Join(collection, id)
	fields, err := s.db.Get(ctx, path)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", path, err)
	}
	if err := docstore.Decode(fields, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *MirrorStore) Delete(ctx context.Context, collection, id string) error {
	path := docstore.Join(collection, id)
	if err := s.db.Delete(ctx, path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// QueryByUser returns every document of collection owned by userID.
func QueryByUser[T any](ctx context.Context, s *MirrorStore, collection, userID string) ([]T, error) {
	return QueryByField[T](ctx, s, collection, "userId", userID)
}

// QueryByField returns every document of collection whose field equals value.
func QueryByField[T any](ctx context.Context, s *MirrorStore, collection, field string, value any) ([]T, error) {
	return QueryWhere[T](ctx, s, collection, docstore.Filter{Field: field, Value: value})
}

// QueryWhere returns every document of collection matching all equality filters.
func QueryWhere[T any](ctx context.Context, s *MirrorStore, collection string, filters ...docstore.Filter) ([]T, error) {
	docs, err := s.db.Query(ctx, collection, filters...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return docstore.DecodeAll[T](docs)
}

var flatIDReplacer = strings.NewReplacer("/", "-", " ", "-")

// FlatAttendanceID keys the flat attendance mirror so that re-marking the same student,
// subject and day overwrites the previous mark.
func FlatAttendanceID(r *model.AttendanceRecord) string {
	return flatIDReplacer.Replace(model.RecordID(r.RollNumber, r.Date) + "_" + r.Subject)
}
