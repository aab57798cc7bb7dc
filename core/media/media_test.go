package media_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/melodix/core/media"
)

func TestMemoryPlaylistStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := media.NewMemoryPlaylistStore()
	userID := uuid.New()

	p := &media.Playlist{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      "commute",
		TrackIDs:  []uuid.UUID{uuid.New(), uuid.New()},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Save(ctx, p))

	got, err := store.ByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "commute", got.Name)
	assert.Len(t, got.TrackIDs, 2)

	got.Name = "commute v2"
	require.NoError(t, store.Update(ctx, got))

	listed, err := store.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "commute v2", listed[0].Name)

	other, err := store.ListByUser(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, store.Delete(ctx, p.ID))
	_, err = store.ByID(ctx, p.ID)
	assert.ErrorIs(t, err, media.ErrPlaylistNotFound)
}

func TestMemoryTrackStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := media.NewMemoryTrackStore()
	userID := uuid.New()

	tr := &media.Track{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       "Night Drive",
		Artist:      "Nova",
		Duration:    3 * time.Minute,
		StorageKey:  "tracks/abc",
		ContentType: "audio/mpeg",
		SizeBytes:   1024,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.Save(ctx, tr))

	got, err := store.ByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "tracks/abc", got.StorageKey)

	listed, err := store.ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	require.NoError(t, store.Delete(ctx, tr.ID))
	_, err = store.ByID(ctx, tr.ID)
	assert.ErrorIs(t, err, media.ErrTrackNotFound)

	assert.ErrorIs(t, store.Delete(ctx, tr.ID), media.ErrTrackNotFound)
}
