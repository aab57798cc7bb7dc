package apikey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore persists API keys in a MongoDB collection.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore wraps the given collection and ensures a unique index on
// the key hash, the hot lookup path of every API-key request.
func NewMongoStore(ctx context.Context, db *mongo.Database, collection string) (*MongoStore, error) {
	coll := db.Collection(collection)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "key_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("apikey: create indexes: %w", err)
	}
	return &MongoStore{coll: coll}, nil
}

func (s *MongoStore) Save(ctx context.Context, key *APIKey) error {
	if _, err := s.coll.InsertOne(ctx, key); err != nil {
		return fmt.Errorf("apikey: save: %w", err)
	}
	return nil
}

func (s *MongoStore) ByHash(ctx context.Context, keyHash string) (*APIKey, error) {
	var k APIKey
	if err := s.coll.FindOne(ctx, bson.M{"key_hash": keyHash}).Decode(&k); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("apikey: find by hash: %w", err)
	}
	return &k, nil
}

func (s *MongoStore) ByKeyID(ctx context.Context, keyID string) (*APIKey, error) {
	var k APIKey
	if err := s.coll.FindOne(ctx, bson.M{"_id": keyID}).Decode(&k); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("apikey: find by id: %w", err)
	}
	return &k, nil
}

func (s *MongoStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]APIKey, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("apikey: list: %w", err)
	}
	defer cur.Close(ctx)

	var out []APIKey
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("apikey: decode list: %w", err)
	}
	return out, nil
}

func (s *MongoStore) Revoke(ctx context.Context, keyID string) error {
	update := bson.M{"$set": bson.M{"is_active": false}}

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": keyID}, update)
	if err != nil {
		return fmt.Errorf("apikey: revoke: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) RecordUsage(ctx context.Context, keyID string, at time.Time) error {
	update := bson.M{
		"$inc": bson.M{"usage_count": 1},
		"$set": bson.M{"last_used_at": at},
	}

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": keyID}, update)
	if err != nil {
		return fmt.Errorf("apikey: record usage: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
