package media

import (
	"context"

	"github.com/google/uuid"
)

// PlaylistStore persists playlists.
type PlaylistStore interface {
	Save(ctx context.Context, p *Playlist) error
	ByID(ctx context.Context, id uuid.UUID) (*Playlist, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Playlist, error)
	Update(ctx context.Context, p *Playlist) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// TrackStore persists track metadata. The audio bytes live in object
// storage, keyed by Track.StorageKey.
type TrackStore interface {
	Save(ctx context.Context, t *Track) error
	ByID(ctx context.Context, id uuid.UUID) (*Track, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Track, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
