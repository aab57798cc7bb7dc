package media

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryPlaylistStore is an in-memory PlaylistStore.
type MemoryPlaylistStore struct {
	mu        sync.RWMutex
	playlists map[uuid.UUID]*Playlist
}

// NewMemoryPlaylistStore creates an empty in-memory playlist store.
func NewMemoryPlaylistStore() *MemoryPlaylistStore {
	return &MemoryPlaylistStore{playlists: make(map[uuid.UUID]*Playlist)}
}

func (s *MemoryPlaylistStore) Save(_ context.Context, p *Playlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.playlists[p.ID] = &cp
	return nil
}

func (s *MemoryPlaylistStore) ByID(_ context.Context, id uuid.UUID) (*Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.playlists[id]
	if !ok {
		return nil, ErrPlaylistNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryPlaylistStore) ListByUser(_ context.Context, userID uuid.UUID) ([]Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Playlist
	for _, p := range s.playlists {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryPlaylistStore) Update(_ context.Context, p *Playlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.playlists[p.ID]; !ok {
		return ErrPlaylistNotFound
	}
	cp := *p
	cp.UpdatedAt = time.Now().UTC()
	s.playlists[p.ID] = &cp
	return nil
}

func (s *MemoryPlaylistStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.playlists[id]; !ok {
		return ErrPlaylistNotFound
	}
	delete(s.playlists, id)
	return nil
}

// MemoryTrackStore is an in-memory TrackStore.
type MemoryTrackStore struct {
	mu     sync.RWMutex
	tracks map[uuid.UUID]*Track
}

// NewMemoryTrackStore creates an empty in-memory track store.
func NewMemoryTrackStore() *MemoryTrackStore {
	return &MemoryTrackStore{tracks: make(map[uuid.UUID]*Track)}
}

func (s *MemoryTrackStore) Save(_ context.Context, t *Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	s.tracks[t.ID] = &cp
	return nil
}

func (s *MemoryTrackStore) ByID(_ context.Context, id uuid.UUID) (*Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tracks[id]
	if !ok {
		return nil, ErrTrackNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryTrackStore) ListByUser(_ context.Context, userID uuid.UUID) ([]Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Track
	for _, t := range s.tracks {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryTrackStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tracks[id]; !ok {
		return ErrTrackNotFound
	}
	delete(s.tracks, id)
	return nil
}
