// Package media holds the streaming catalog: tracks stored in S3 and the
// playlists that organize them. It is the resource layer the auth gate
// protects; ownership checks run against the UserID on each record.
package media

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrPlaylistNotFound is returned when no playlist matches the lookup.
	ErrPlaylistNotFound = errors.New("playlist not found")
	// ErrTrackNotFound is returned when no track matches the lookup.
	ErrTrackNotFound = errors.New("track not found")
)

// Track is an uploaded audio file. StorageKey locates the object in the
// media bucket; playback goes through short-lived presigned URLs, the
// bucket itself is private.
type Track struct {
	ID          uuid.UUID     `bson:"_id" json:"id"`
	UserID      uuid.UUID     `bson:"user_id" json:"userId"`
	Title       string        `bson:"title" json:"title"`
	Artist      string        `bson:"artist" json:"artist"`
	Album       string        `bson:"album,omitempty" json:"album,omitempty"`
	Duration    time.Duration `bson:"duration" json:"duration"`
	StorageKey  string        `bson:"storage_key" json:"-"`
	ContentType string        `bson:"content_type" json:"contentType"`
	SizeBytes   int64         `bson:"size_bytes" json:"sizeBytes"`
	CreatedAt   time.Time     `bson:"created_at" json:"createdAt"`
}

// Playlist is an ordered collection of track references.
type Playlist struct {
	ID        uuid.UUID   `bson:"_id" json:"id"`
	UserID    uuid.UUID   `bson:"user_id" json:"userId"`
	Name      string      `bson:"name" json:"name"`
	TrackIDs  []uuid.UUID `bson:"track_ids" json:"trackIds"`
	IsPublic  bool        `bson:"is_public" json:"isPublic"`
	CreatedAt time.Time   `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time   `bson:"updated_at" json:"updatedAt"`
}
