// Package docstore is a small document-database abstraction over slash-separated paths that
// alternate collection and document ids ("attendance/2nd/sems/3/..."). Backends: Memory,
// Mongo and Firestore.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ErrNotFound is returned by Get when no document exists at the path.
var ErrNotFound = errors.New("document not found")

// ErrInvalidPath is returned for paths that do not name a document (or a collection, for List).
var ErrInvalidPath = errors.New("invalid document path")

// Fields is the stored form of a document: plain Go maps, slices, strings, numbers, bools and
// time.Time values.
type Fields map[string]any

// Document is a stored document and its location.
type Document struct {
	Path   string
	ID     string
	Fields Fields
}

// Filter is an equality condition on a top-level field.
type Filter struct {
	Field string
	Value any
}

type Store interface {
	// Get returns the document at path or ErrNotFound.
	Get(ctx context.Context, path string) (Fields, error)
	// Set writes a document. With merge, fields not present in data are preserved.
	Set(ctx context.Context, path string, data Fields, merge bool) error
	Delete(ctx context.Context, path string) error
	// List returns every document directly inside a collection. A collection that does not
	// exist lists as empty.
	List(ctx context.Context, collection string) ([]Document, error)
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	// Collections returns the ids of subcollections below a document that hold documents.
	Collections(ctx context.Context, document string) ([]string, error)
	Close(ctx context.Context) error
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

func split(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	segs := strings.Split(path, "/")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		}
	}
	return segs, nil
}

func checkDocument(path string) (collection, id string, err error) {
	segs, err := split(path)
	if err != nil {
		return "", "", err
	}
	if len(segs)%2 != 0 {
		return "", "", fmt.Errorf("%w: %q names a collection", ErrInvalidPath, path)
	}
	return Join(segs[:len(segs)-1]...), segs[len(segs)-1], nil
}

func checkCollection(path string) error {
	segs, err := split(path)
	if err != nil {
		return err
	}
	if len(segs)%2 != 1 {
		return fmt.Errorf("%w: %q names a document", ErrInvalidPath, path)
	}
	return nil
}

// Encode converts a bson-tagged struct into Fields. Fields tagged omitempty and left empty are
// absent, which is what gives merge writes their "unspecified fields preserved" behaviour.
func Encode(v any) (Fields, error) {
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var m bson.M
	if err := bson.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return normalizeMap(m), nil
}

// Decode fills the bson-tagged struct v from f.
func Decode(f Fields, v any) error {
	data, err := bson.Marshal(map[string]any(f))
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := bson.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// DecodeAll decodes every document into a T.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := Decode(d.Fields, &v); err != nil {
			return nil, fmt.Errorf("%s: %w", d.Path, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func normalizeMap[M ~map[string]any](m M) Fields {
	out := make(Fields, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func normalize(v any) any {
	switch x := v.(type) {
	case bson.M:
		return map[string]any(normalizeMap(x))
	case map[string]any:
		return map[string]any(normalizeMap(x))
	case Fields:
		return map[string]any(normalizeMap(x))
	case bson.D:
		m := make(map[string]any, len(x))
		for _, e := range x {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.A:
		return normalizeSlice(x)
	case []any:
		return normalizeSlice(x)
	case bson.DateTime:
		return x.Time().UTC()
	case time.Time:
		return x.UTC()
	default:
		return v
	}
}

func normalizeSlice[S ~[]any](s S) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = normalize(v)
	}
	return out
}

// equalValue compares filter values, treating all integer kinds alike. Named string types
// such as status enums compare by their underlying string.
func equalValue(a, b any) bool {
	a, b = plainString(a), plainString(b)
	if ai, ok := asInt64(a); ok {
		bi, ok := asInt64(b)
		return ok && ai == bi
	}
	switch a.(type) {
	case string, bool, float64:
		return a == b
	}
	return false
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	}
	if rv := reflect.ValueOf(v); rv.IsValid() {
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int(), true
		}
	}
	return 0, false
}

func plainString(v any) any {
	if rv := reflect.ValueOf(v); rv.IsValid() && rv.Kind() == reflect.String {
		return rv.String()
	}
	return v
}
