package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore maps paths one-to-one onto Firestore collections and documents.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore initialises a Firebase app and opens its Firestore client. An empty
// credentialsFile falls back to application default credentials.
func NewFirestore(ctx context.Context, projectID, credentialsFile string) (*Firestore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("open firestore: %w", err)
	}
	return &Firestore{client: client}, nil
}

func (f *Firestore) doc(path string) (*firestore.DocumentRef, error) {
	if _, _, err := checkDocument(path); err != nil {
		return nil, err
	}
	ref := f.client.Doc(path)
	if ref == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return ref, nil
}

func (f *Firestore) Get(ctx context.Context, path string) (Fields, error) {
	ref, err := f.doc(path)
	if err != nil {
		return nil, err
	}
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	return normalizeMap(snap.Data()), nil
}

func (f *Firestore) Set(ctx context.Context, path string, data Fields, merge bool) error {
	ref, err := f.doc(path)
	if err != nil {
		return err
	}
	m := map[string]any(normalizeMap(data))
	if merge {
		_, err = ref.Set(ctx, m, firestore.MergeAll)
	} else {
		_, err = ref.Set(ctx, m)
	}
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

func (f *Firestore) Delete(ctx context.Context, path string) error {
	ref, err := f.doc(path)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (f *Firestore) List(ctx context.Context, collection string) ([]Document, error) {
	return f.Query(ctx, collection)
}

func (f *Firestore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	col := f.client.Collection(collection)
	if col == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, collection)
	}
	q := col.Query
	for _, flt := range filters {
		q = q.Where(flt.Field, "==", flt.Value)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()
	var out []Document
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, err)
		}
		out = append(out, Document{
			Path:   collection + "/" + snap.Ref.ID,
			ID:     snap.Ref.ID,
			Fields: normalizeMap(snap.Data()),
		})
	}
	return out, nil
}

func (f *Firestore) Collections(ctx context.Context, document string) ([]string, error) {
	ref, err := f.doc(document)
	if err != nil {
		return nil, err
	}
	iter := ref.Collections(ctx)
	var out []string
	for {
		col, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list collections of %s: %w", document, err)
		}
		out = append(out, col.ID)
	}
	sort.Strings(out)
	return out, nil
}

func (f *Firestore) Close(context.Context) error {
	return f.client.Close()
}
