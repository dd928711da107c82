package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/ponytojas/go-cr310-ingest/config"
	"github.com/ponytojas/go-cr310-ingest/internal/ingest"
	"github.com/ponytojas/go-cr310-ingest/internal/models"
)

// MongoStore persists readings in a MongoDB collection guarded by a unique
// (equipo, timestamp) index.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
	logger     *zap.Logger
}

var _ ingest.Store = (*MongoStore)(nil)

// readingDocument keeps the ObjectID, whose ordering gives insertion order
// for equal timestamps. ObjectIDs are generated by the client, so that order
// holds within one process; across several writers it follows each writer's
// clock and counter rather than the server's commit order.
type readingDocument struct {
	ObjectID       bson.ObjectID `bson:"_id"`
	models.Reading `bson:",inline"`
}

// ConnectMongo connects to the configured deployment and pings the primary.
func ConnectMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Timeout > 0 {
		opts.SetServerSelectionTimeout(cfg.Timeout)
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// NewMongoStore opens the collection and makes sure its indexes exist.
func NewMongoStore(ctx context.Context, client *mongo.Client, cfg config.MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	collection := client.Database(cfg.Database).Collection(cfg.Collection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "equipo", Value: 1}, {Key: "timestamp", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("equipo_timestamp_unique"),
		},
		{
			Keys:    bson.D{{Key: "timestamp_dt", Value: -1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("timestamp_dt_desc"),
		},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	logger.Info("Connected to MongoDB",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection))

	return &MongoStore{client: client, collection: collection, timeout: cfg.Timeout, logger: logger}, nil
}

func (m *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.timeout)
}

// Insert relies on the unique index; the losing writer gets a duplicate key
// error from the server.
func (m *MongoStore) Insert(ctx context.Context, r *models.Reading) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	res, err := m.collection.InsertOne(ctx, readingDocument{ObjectID: bson.NewObjectID(), Reading: *r})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &models.DuplicateError{EquipmentID: r.EquipmentID, Timestamp: r.Timestamp}
		}
		return &models.UnavailableError{Op: "insert", Err: err}
	}
	m.logger.Debug("Reading inserted", zap.Any("object_id", res.InsertedID))
	return nil
}

// Query returns the filtered page, newest first, ties by ObjectID, which is
// insertion order for readings written by the same process.
func (m *MongoStore) Query(ctx context.Context, f models.QueryFilter) (*models.Page, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	filter := buildMongoFilter(f)

	total, err := m.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, &models.UnavailableError{Op: "count", Err: err}
	}

	limit := f.Limit
	if limit <= 0 {
		limit = models.DefaultLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp_dt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(f.Offset)).
		SetLimit(int64(limit))

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, &models.UnavailableError{Op: "query", Err: err}
	}
	defer cursor.Close(ctx)

	var docs []readingDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, &models.UnavailableError{Op: "decode", Err: err}
	}

	page := &models.Page{Readings: make([]models.Reading, 0, len(docs)), Total: total}
	for _, doc := range docs {
		r := doc.Reading
		r.TimestampAt = r.TimestampAt.UTC()
		r.IngestedAt = r.IngestedAt.UTC()
		page.Readings = append(page.Readings, r)
	}
	return page, nil
}

func buildMongoFilter(f models.QueryFilter) bson.D {
	filter := bson.D{}
	if f.EquipmentID != "" {
		filter = append(filter, bson.E{Key: "equipo", Value: f.EquipmentID})
	}
	window := bson.D{}
	if f.Start != nil {
		window = append(window, bson.E{Key: "$gte", Value: *f.Start})
	}
	if f.End != nil {
		window = append(window, bson.E{Key: "$lt", Value: *f.End})
	}
	if len(window) > 0 {
		filter = append(filter, bson.E{Key: "timestamp_dt", Value: window})
	}
	return filter
}

// Ping checks the primary is reachable.
func (m *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return &models.UnavailableError{Op: "ping", Err: err}
	}
	return nil
}

// Close disconnects the client.
func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
