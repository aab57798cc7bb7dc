package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore persists users and credentials in separate collections.
type MongoStore struct {
	users *mongo.Collection
	creds *mongo.Collection
}

// NewMongoStore wraps the given collections and ensures unique indexes on
// username and email. Username lookups are case-insensitive via a collated
// index, matching the in-memory store.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	users := db.Collection("users")
	creds := db.Collection("credentials")

	caseInsensitive := options.Collation{Locale: "en", Strength: 2}
	_, err := users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(&caseInsensitive),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(&caseInsensitive),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("user: create indexes: %w", err)
	}
	return &MongoStore{users: users, creds: creds}, nil
}

func (s *MongoStore) Create(ctx context.Context, u *User, cred *Credential) error {
	if _, err := s.users.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("user: insert: %w", err)
	}
	if _, err := s.creds.InsertOne(ctx, cred); err != nil {
		return fmt.Errorf("user: insert credential: %w", err)
	}
	return nil
}

func (s *MongoStore) ByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("user: find by id: %w", err)
	}
	return &u, nil
}

func (s *MongoStore) ByUsername(ctx context.Context, username string) (*User, error) {
	caseInsensitive := options.Collation{Locale: "en", Strength: 2}
	opts := options.FindOne().SetCollation(&caseInsensitive)

	var u User
	err := s.users.FindOne(ctx, bson.M{"username": strings.TrimSpace(username)}, opts).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("user: find by username: %w", err)
	}
	return &u, nil
}

func (s *MongoStore) Credential(ctx context.Context, userID uuid.UUID) (*Credential, error) {
	var c Credential
	if err := s.creds.FindOne(ctx, bson.M{"_id": userID}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("user: find credential: %w", err)
	}
	return &c, nil
}

func (s *MongoStore) UpdateCredential(ctx context.Context, cred *Credential) error {
	update := bson.M{"$set": bson.M{
		"password_hash":         cred.PasswordHash,
		"totp_secret_encrypted": cred.TOTPSecretEncrypted,
		"updated_at":            time.Now().UTC(),
	}}

	res, err := s.creds.UpdateOne(ctx, bson.M{"_id": cred.UserID}, update)
	if err != nil {
		return fmt.Errorf("user: update credential: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrCredentialNotFound
	}
	return nil
}
