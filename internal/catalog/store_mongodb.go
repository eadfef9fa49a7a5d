package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type mongoModelDocument struct {
	ID         string `bson:"_id"`
	CreatedAt  int64  `bson:"created_at"`
	UpdatedAt  int64  `bson:"updated_at"`
	Vendor     string `bson:"vendor"`
	PriceModel string `bson:"price_model"`
	Data       []byte `bson:"data"`
}

// MongoDBStore stores models in MongoDB.
type MongoDBStore struct {
	collection *mongo.Collection
}

// NewMongoDBStore creates collection indexes if needed.
func NewMongoDBStore(ctx context.Context, database *mongo.Database) (*MongoDBStore, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}

	coll := database.Collection("models")
	indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "vendor", Value: 1}}},
	}
	if _, err := coll.Indexes().CreateMany(indexCtx, indexes); err != nil {
		return nil, fmt.Errorf("create models indexes: %w", err)
	}

	return &MongoDBStore{collection: coll}, nil
}

// Create inserts a new model.
func (s *MongoDBStore) Create(ctx context.Context, m *Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	stampCreate(m, time.Now())

	payload, err := serializeModel(m)
	if err != nil {
		return err
	}

	doc := mongoModelDocument{
		ID:         m.ID,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
		Vendor:     m.Vendor,
		PriceModel: m.PriceModel,
		Data:       payload,
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, m.ID)
		}
		return fmt.Errorf("insert model: %w", err)
	}
	return nil
}

// Get returns a model by id.
func (s *MongoDBStore) Get(ctx context.Context, id string) (*Model, error) {
	var doc mongoModelDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query model: %w", err)
	}

	m, err := deserializeModel(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return m, nil
}

// List returns models ordered by created_at desc, id desc.
func (s *MongoDBStore) List(ctx context.Context, limit int, after string) ([]*Model, error) {
	limit = normalizeLimit(limit)
	filter := bson.M{}

	if after != "" {
		var cursorDoc mongoModelDocument
		err := s.collection.FindOne(ctx, bson.M{"_id": after}).Decode(&cursorDoc)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("query after cursor: %w", err)
		}
		filter = bson.M{
			"$or": bson.A{
				bson.M{"created_at": bson.M{"$lt": cursorDoc.CreatedAt}},
				bson.M{
					"created_at": cursorDoc.CreatedAt,
					"_id":        bson.M{"$lt": cursorDoc.ID},
				},
			},
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer cursor.Close(ctx)

	items := make([]*Model, 0, limit)
	for cursor.Next(ctx) {
		var doc mongoModelDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode model document: %w", err)
		}
		m, err := deserializeModel(doc.Data)
		if err != nil {
			return nil, fmt.Errorf("decode model payload: %w", err)
		}
		items = append(items, m)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate models cursor: %w", err)
	}
	return items, nil
}

// Update replaces a stored model and refreshes its updated_at.
func (s *MongoDBStore) Update(ctx context.Context, m *Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	m.UpdatedAt = time.Now().Unix()

	payload, err := serializeModel(m)
	if err != nil {
		return err
	}

	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": m.ID},
		bson.M{"$set": bson.M{
			"updated_at":  m.UpdatedAt,
			"vendor":      m.Vendor,
			"price_model": m.PriceModel,
			"data":        payload,
		}},
	)
	if err != nil {
		return fmt.Errorf("update model: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Close is a no-op; Mongo client lifecycle is managed by the storage layer.
func (s *MongoDBStore) Close() error {
	return nil
}
