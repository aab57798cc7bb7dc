package media

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

// MongoPlaylistStore persists playlists in MongoDB.
type MongoPlaylistStore struct {
	coll *mongo.Collection
}

// NewMongoPlaylistStore wraps the playlists collection.
func NewMongoPlaylistStore(ctx context.Context, db *mongo.Database) (*MongoPlaylistStore, error) {
	coll := db.Collection("playlists")

	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return nil, fmt.Errorf("media: create playlist indexes: %w", err)
	}
	return &MongoPlaylistStore{coll: coll}, nil
}

func (s *MongoPlaylistStore) Save(ctx context.Context, p *Playlist) error {
	if _, err := s.coll.InsertOne(ctx, p); err != nil {
		return fmt.Errorf("media: save playlist: %w", err)
	}
	return nil
}

func (s *MongoPlaylistStore) ByID(ctx context.Context, id uuid.UUID) (*Playlist, error) {
	var p Playlist
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPlaylistNotFound
		}
		return nil, fmt.Errorf("media: find playlist: %w", err)
	}
	return &p, nil
}

func (s *MongoPlaylistStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]Playlist, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("media: list playlists: %w", err)
	}
	defer cur.Close(ctx)

	var out []Playlist
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("media: decode playlists: %w", err)
	}
	return out, nil
}

func (s *MongoPlaylistStore) Update(ctx context.Context, p *Playlist) error {
	update := bson.M{"$set": bson.M{
		"name":       p.Name,
		"track_ids":  p.TrackIDs,
		"is_public":  p.IsPublic,
		"updated_at": time.Now().UTC(),
	}}

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": p.ID}, update)
	if err != nil {
		return fmt.Errorf("media: update playlist: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrPlaylistNotFound
	}
	return nil
}

func (s *MongoPlaylistStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("media: delete playlist: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrPlaylistNotFound
	}
	return nil
}

// MongoTrackStore persists track metadata in MongoDB.
type MongoTrackStore struct {
	coll *mongo.Collection
}

// NewMongoTrackStore wraps the tracks collection.
func NewMongoTrackStore(ctx context.Context, db *mongo.Database) (*MongoTrackStore, error) {
	coll := db.Collection("tracks")

	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return nil, fmt.Errorf("media: create track indexes: %w", err)
	}
	return &MongoTrackStore{coll: coll}, nil
}

func (s *MongoTrackStore) Save(ctx context.Context, t *Track) error {
	if _, err := s.coll.InsertOne(ctx, t); err != nil {
		return fmt.Errorf("media: save track: %w", err)
	}
	return nil
}

func (s *MongoTrackStore) ByID(ctx context.Context, id uuid.UUID) (*Track, error) {
	var t Track
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTrackNotFound
		}
		return nil, fmt.Errorf("media: find track: %w", err)
	}
	return &t, nil
}

func (s *MongoTrackStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]Track, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("media: list tracks: %w", err)
	}
	defer cur.Close(ctx)

	var out []Track
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("media: decode tracks: %w", err)
	}
	return out, nil
}

func (s *MongoTrackStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("media: delete track: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrTrackNotFound
	}
	return nil
}
