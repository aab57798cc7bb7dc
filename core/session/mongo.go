package session

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

// MongoStore persists sessions in a MongoDB collection. Validity conditions
// (is_active, expires_at) are evaluated inside the query filters so that
// concurrent revocation and touch operations cannot resurrect a session.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore wraps the given collection and ensures its indexes:
// a unique index on token and a TTL index on expires_at so MongoDB
// hard-deletes expired records without an application sweeper.
func NewMongoStore(ctx context.Context, db *mongo.Database, collection string) (*MongoStore, error) {
	coll := db.Collection(collection)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("session: create indexes: %w", err)
	}
	return &MongoStore{coll: coll}, nil
}

func (s *MongoStore) Save(ctx context.Context, sess *Session) error {
	if _, err := s.coll.InsertOne(ctx, sess); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

func (s *MongoStore) FindActive(ctx context.Context, token string) (*Session, error) {
	filter := bson.M{"token": token, "is_active": true}

	var sess Session
	if err := s.coll.FindOne(ctx, filter).Decode(&sess); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: find: %w", err)
	}
	return &sess, nil
}

func (s *MongoStore) Touch(ctx context.Context, token string, at time.Time) error {
	filter := bson.M{
		"token":      token,
		"is_active":  true,
		"expires_at": bson.M{"$gt": at},
	}
	update := bson.M{"$set": bson.M{"last_active": at}}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("session: touch: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Revoke(ctx context.Context, token string) error {
	update := bson.M{"$set": bson.M{"is_active": false}}

	res, err := s.coll.UpdateOne(ctx, bson.M{"token": token}, update)
	if err != nil {
		return fmt.Errorf("session: revoke: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	filter := bson.M{"user_id": userID, "is_active": true}
	update := bson.M{"$set": bson.M{"is_active": false}}

	res, err := s.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("session: revoke all: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]Session, error) {
	filter := bson.M{"user_id": userID, "is_active": true}

	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "last_active", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	defer cur.Close(ctx)

	var out []Session
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("session: decode list: %w", err)
	}
	return out, nil
}

func (s *MongoStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	if err != nil {
		return 0, fmt.Errorf("session: delete expired: %w", err)
	}
	return res.DeletedCount, nil
}
