package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

type MongoDB struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoDB(uri, database string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return &MongoDB{
		client: client,
		db:     client.Database(database),
	}, nil
}

func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Mongo stores every path under the MongoDB collection named by its first segment.
// Each document is {_id: <full path>, parent: <collection path>, data: {...}}.
type Mongo struct {
	db *MongoDB
}

// mongoDoc is the stored envelope of a document.
type mongoDoc struct {
	ID     string `bson:"_id"`
	Parent string `bson:"parent"`
	Data   bson.M `bson:"data"`
}

// NewMongo creates the indexes for the given root collections.
func NewMongo(ctx context.Context, db *MongoDB, roots ...string) (*Mongo, error) {
	for _, root := range roots {
		if _, err := db.Collection(root).Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "parent", Value: 1}}},
			{Keys: bson.D{{Key: "parent", Value: 1}, {Key: "data.userId", Value: 1}}},
			{Keys: bson.D{{Key: "parent", Value: 1}, {Key: "data.status", Value: 1}}},
		}); err != nil {
			return nil, fmt.Errorf("create %s indexes: %w", root, err)
		}
	}
	return &Mongo{db: db}, nil
}

func (m *Mongo) coll(path string) *mongo.Collection {
	root, _, _ := strings.Cut(path, "/")
	return m.db.Collection(root)
}

func (m *Mongo) Get(ctx context.Context, path string) (Fields, error) {
	if _, _, err := checkDocument(path); err != nil {
		return nil, err
	}
	var doc mongoDoc
	err := m.coll(path).FindOne(ctx, bson.M{"_id": path}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", path, err)
	}
	return normalizeMap(doc.Data), nil
}

func (m *Mongo) Set(ctx context.Context, path string, data Fields, merge bool) error {
	parent, _, err := checkDocument(path)
	if err != nil {
		return err
	}
	coll := m.coll(path)

	if !merge {
		doc := bson.M{"_id": path, "parent": parent, "data": map[string]any(data)}
		if _, err := coll.ReplaceOne(ctx, bson.M{"_id": path}, doc, options.Replace().SetUpsert(true)); err != nil {
			return fmt.Errorf("replace %s: %w", path, err)
		}
		return nil
	}

	set := bson.M{"parent": parent}
	for k, v := range data {
		set["data."+k] = v
	}
	if _, err := coll.UpdateOne(ctx, bson.M{"_id": path}, bson.M{"$set": set}, options.UpdateOne().SetUpsert(true)); err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	return nil
}

func (m *Mongo) Delete(ctx context.Context, path string) error {
	if _, _, err := checkDocument(path); err != nil {
		return err
	}
	if _, err := m.coll(path).DeleteOne(ctx, bson.M{"_id": path}); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (m *Mongo) List(ctx context.Context, collection string) ([]Document, error) {
	return m.Query(ctx, collection)
}

func (m *Mongo) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	filter := bson.M{"parent": collection}
	for _, f := range filters {
		filter["data."+f.Field] = f.Value
	}

	cursor, err := m.coll(collection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	var docs []mongoDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}

	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, Document{
			Path:   d.ID,
			ID:     strings.TrimPrefix(d.ID, collection+"/"),
			Fields: normalizeMap(d.Data),
		})
	}
	return out, nil
}

// Collections lists subcollections from the distinct parents of the documents below document.
func (m *Mongo) Collections(ctx context.Context, document string) ([]string, error) {
	if _, _, err := checkDocument(document); err != nil {
		return nil, err
	}
	prefix := document + "/"
	filter := bson.M{"parent": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}

	var parents []string
	if err := m.coll(document).Distinct(ctx, "parent", filter).Decode(&parents); err != nil {
		return nil, fmt.Errorf("distinct parents below %s: %w", document, err)
	}

	seen := make(map[string]struct{})
	for _, p := range parents {
		name, _, _ := strings.Cut(strings.TrimPrefix(p, prefix), "/")
		seen[name] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.db.Close(ctx)
}
