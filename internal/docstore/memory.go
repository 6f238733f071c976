package docstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store. Every read and write copies the document.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]Fields
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]Fields)}
}

func (m *Memory) Get(ctx context.Context, path string) (Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, _, err := checkDocument(path); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return copyFields(f), nil
}

func (m *Memory) Set(ctx context.Context, path string, data Fields, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := checkDocument(path); err != nil {
		return err
	}
	data = copyFields(data)

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.docs[path]; ok && merge {
		for k, v := range data {
			existing[k] = v
		}
		return nil
	}
	m.docs[path] = data
	return nil
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := checkDocument(path); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.docs, path)
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(ctx context.Context, collection string) ([]Document, error) {
	return m.Query(ctx, collection)
}

func (m *Memory) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	prefix := collection + "/"

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Document
	for path, f := range m.docs {
		id, ok := strings.CutPrefix(path, prefix)
		if !ok || strings.Contains(id, "/") || !matches(f, filters) {
			continue
		}
		out = append(out, Document{Path: path, ID: id, Fields: copyFields(f)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Collections(ctx context.Context, document string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, _, err := checkDocument(document); err != nil {
		return nil, err
	}
	prefix := document + "/"

	m.mu.RLock()
	seen := make(map[string]struct{})
	for path := range m.docs {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok {
			continue
		}
		name, _, _ := strings.Cut(rest, "/")
		seen[name] = struct{}{}
	}
	m.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Close(context.Context) error { return nil }

// Len reports how many documents are stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func matches(f Fields, filters []Filter) bool {
	for _, flt := range filters {
		v, ok := f[flt.Field]
		if !ok || !equalValue(normalize(flt.Value), v) {
			return false
		}
	}
	return true
}

func copyFields(f Fields) Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, vv := range x {
			m[k] = copyValue(vv)
		}
		return m
	case Fields:
		return map[string]any(copyFields(x))
	case []any:
		s := make([]any, len(x))
		for i, vv := range x {
			s[i] = copyValue(vv)
		}
		return s
	default:
		return v
	}
}
