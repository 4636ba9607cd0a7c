package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arzan03/mediadrop/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	bindingsCollection = "media_bindings"
	ttlIndexName       = "created_at_ttl"

	// indexOptionsConflict is returned when an index with the same name
	// exists with different options, e.g. after a TTL change.
	indexOptionsConflict = 85
	indexNotFound        = 27
	namespaceNotFound    = 26
)

// Mongo stores bindings in a collection with a unique index on code and,
// when ttl > 0, a TTL index on created_at so expired records are reaped by
// the server.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewMongo(ctx context.Context, client *mongo.Client, database string, ttl time.Duration) (*Mongo, error) {
	m := &Mongo{
		client: client,
		coll:   client.Database(database).Collection(bindingsCollection),
	}
	if err := m.ensureIndexes(ctx, ttl); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context, ttl time.Duration) error {
	_, err := m.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "code", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("code_unique"),
	})
	if err != nil {
		return fmt.Errorf("create code index: %w", err)
	}

	if ttl <= 0 {
		// Without a TTL, an index left by an earlier configuration would
		// keep reaping records.
		_, err = m.coll.Indexes().DropOne(ctx, ttlIndexName)
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && (cmdErr.Code == indexNotFound || cmdErr.Code == namespaceNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("drop ttl index: %w", err)
		}
		slog.Info("dropped ttl index")
		return nil
	}

	ttlIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "created_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(ttl / time.Second)).SetName(ttlIndexName),
	}
	_, err = m.coll.Indexes().CreateOne(ctx, ttlIndex)
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == indexOptionsConflict {
		slog.Info("recreating ttl index", "expire_after", ttl)
		if _, err = m.coll.Indexes().DropOne(ctx, ttlIndexName); err != nil {
			return fmt.Errorf("drop ttl index: %w", err)
		}
		_, err = m.coll.Indexes().CreateOne(ctx, ttlIndex)
	}
	if err != nil {
		return fmt.Errorf("create ttl index: %w", err)
	}
	return nil
}

func (m *Mongo) Create(ctx context.Context, b *models.MediaBinding) error {
	_, err := m.coll.InsertOne(ctx, b)
	if mongo.IsDuplicateKeyError(err) {
		return ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("insert binding: %w", err)
	}
	return nil
}

func (m *Mongo) Get(ctx context.Context, code string) (*models.MediaBinding, error) {
	var b models.MediaBinding
	err := m.coll.FindOne(ctx, bson.M{"code": code}).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find binding: %w", err)
	}
	return &b, nil
}

func (m *Mongo) Delete(ctx context.Context, code string) (bool, error) {
	res, err := m.coll.DeleteOne(ctx, bson.M{"code": code})
	if err != nil {
		return false, fmt.Errorf("delete binding: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (m *Mongo) DeleteIfCreatedAt(ctx context.Context, code string, createdAt time.Time) (bool, error) {
	res, err := m.coll.DeleteOne(ctx, bson.M{"code": code, "created_at": createdAt.UTC()})
	if err != nil {
		return false, fmt.Errorf("delete binding: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (m *Mongo) List(ctx context.Context, limit int, createdAfter time.Time) ([]*models.MediaBinding, error) {
	filter := bson.M{}
	if !createdAfter.IsZero() {
		filter["created_at"] = bson.M{"$gt": createdAfter}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*models.MediaBinding
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode bindings: %w", err)
	}
	return out, nil
}

func (m *Mongo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := m.coll.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lte": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("sweep bindings: %w", err)
	}
	return res.DeletedCount, nil
}

func (m *Mongo) Clear(ctx context.Context) error {
	if _, err := m.coll.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("clear bindings: %w", err)
	}
	return nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
