package twofactor

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

// MongoStore persists security profiles as single documents, one per user.
// Single-use code consumption relies on MongoDB's single-document atomicity:
// the used=false condition and the flip to used=true happen in one UpdateOne,
// so concurrent consumers cannot both match.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore wraps the given collection.
func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	return &MongoStore{coll: db.Collection(collection)}
}

func (s *MongoStore) Profile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	var p Profile
	if err := s.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("twofactor: find profile: %w", err)
	}
	return &p, nil
}

func (s *MongoStore) Ensure(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	filter := bson.M{"_id": userID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"backup_codes":    []BackupCode{},
			"temp_codes":      []TempCode{},
			"trusted_devices": []TrustedDevice{},
			"updated_at":      time.Now().UTC(),
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var p Profile
	if err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&p); err != nil {
		return nil, fmt.Errorf("twofactor: ensure profile: %w", err)
	}
	return &p, nil
}

func (s *MongoStore) ReplaceBackupCodes(ctx context.Context, userID uuid.UUID, codes []string) error {
	backup := make([]BackupCode, len(codes))
	for i, code := range codes {
		backup[i] = BackupCode{Code: code}
	}

	filter := bson.M{"_id": userID}
	update := bson.M{"$set": bson.M{
		"backup_codes": backup,
		"updated_at":   time.Now().UTC(),
	}}

	if _, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true)); err != nil {
		return fmt.Errorf("twofactor: replace backup codes: %w", err)
	}
	return nil
}

func (s *MongoStore) ConsumeBackupCode(ctx context.Context, userID uuid.UUID, code string, at time.Time) error {
	filter := bson.M{
		"_id": userID,
		"backup_codes": bson.M{"$elemMatch": bson.M{
			"code": code,
			"used": false,
		}},
	}
	update := bson.M{"$set": bson.M{
		"backup_codes.$.used":    true,
		"backup_codes.$.used_at": at,
		"updated_at":             at,
	}}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("twofactor: consume backup code: %w", err)
	}
	if res.ModifiedCount == 0 {
		return ErrInvalidCode
	}
	return nil
}

func (s *MongoStore) AddTempCode(ctx context.Context, userID uuid.UUID, code TempCode) error {
	filter := bson.M{"_id": userID}
	update := bson.M{
		"$push": bson.M{"temp_codes": code},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}

	if _, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true)); err != nil {
		return fmt.Errorf("twofactor: add temp code: %w", err)
	}
	return nil
}

func (s *MongoStore) ConsumeTempCode(ctx context.Context, userID uuid.UUID, code string, at time.Time) error {
	filter := bson.M{
		"_id": userID,
		"temp_codes": bson.M{"$elemMatch": bson.M{
			"code":       code,
			"used":       false,
			"expires_at": bson.M{"$gt": at},
		}},
	}
	update := bson.M{"$set": bson.M{
		"temp_codes.$.used": true,
		"updated_at":        at,
	}}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("twofactor: consume temp code: %w", err)
	}
	if res.ModifiedCount == 0 {
		return ErrInvalidCode
	}
	return nil
}

func (s *MongoStore) TrustedDevice(ctx context.Context, userID uuid.UUID, fingerprint string) (*TrustedDevice, error) {
	filter := bson.M{
		"_id":                         userID,
		"trusted_devices.fingerprint": fingerprint,
	}
	opts := options.FindOne().SetProjection(bson.M{
		"trusted_devices.$": 1,
	})

	var doc struct {
		TrustedDevices []TrustedDevice `bson:"trusted_devices"`
	}
	if err := s.coll.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("twofactor: find trusted device: %w", err)
	}
	if len(doc.TrustedDevices) == 0 {
		return nil, ErrDeviceNotFound
	}
	d := doc.TrustedDevices[0]
	return &d, nil
}

func (s *MongoStore) TrustedDeviceByToken(ctx context.Context, userID uuid.UUID, token string) (*TrustedDevice, error) {
	filter := bson.M{
		"_id":                          userID,
		"trusted_devices.device_token": token,
	}
	opts := options.FindOne().SetProjection(bson.M{
		"trusted_devices.$": 1,
	})

	var doc struct {
		TrustedDevices []TrustedDevice `bson:"trusted_devices"`
	}
	if err := s.coll.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("twofactor: find device by token: %w", err)
	}
	if len(doc.TrustedDevices) == 0 {
		return nil, ErrDeviceNotFound
	}
	d := doc.TrustedDevices[0]
	return &d, nil
}

func (s *MongoStore) AddTrustedDevice(ctx context.Context, userID uuid.UUID, device TrustedDevice) error {
	// Drop any stale record with the same fingerprint first so the
	// device list never holds duplicates. The pull and push are separate
	// commands, not one atomic update: between them a concurrent reader
	// can miss the device and a login falls back to the second factor,
	// which is safe. The worst interleaving costs one extra code prompt.
	pull := bson.M{"$pull": bson.M{"trusted_devices": bson.M{"fingerprint": device.Fingerprint}}}
	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": userID}, pull); err != nil {
		return fmt.Errorf("twofactor: replace trusted device: %w", err)
	}

	push := bson.M{
		"$push": bson.M{"trusted_devices": device},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": userID}, push, options.UpdateOne().SetUpsert(true)); err != nil {
		return fmt.Errorf("twofactor: add trusted device: %w", err)
	}
	return nil
}

func (s *MongoStore) TouchTrustedDevice(ctx context.Context, userID uuid.UUID, fingerprint string, at time.Time) error {
	filter := bson.M{
		"_id":                         userID,
		"trusted_devices.fingerprint": fingerprint,
	}
	update := bson.M{"$set": bson.M{"trusted_devices.$.last_used_at": at}}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("twofactor: touch trusted device: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (s *MongoStore) RemoveTrustedDevice(ctx context.Context, userID uuid.UUID, fingerprint string) error {
	filter := bson.M{"_id": userID}
	update := bson.M{
		"$pull": bson.M{"trusted_devices": bson.M{"fingerprint": fingerprint}},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("twofactor: remove trusted device: %w", err)
	}
	if res.ModifiedCount == 0 {
		return ErrDeviceNotFound
	}
	return nil
}
