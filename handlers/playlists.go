package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/melodix/core/media"
	"github.com/dmitrymomot/melodix/handlers/respond"
	"github.com/dmitrymomot/melodix/middleware"
)

// Playlists serves playlist CRUD. Reads are allowed for the owner or for
// public playlists; writes require ownership.
type Playlists struct {
	store  media.PlaylistStore
	logger *slog.Logger
}

func NewPlaylists(store media.PlaylistStore, logger *slog.Logger) *Playlists {
	if logger == nil {
		logger = slog.Default()
	}
	return &Playlists{store: store, logger: logger}
}

func (h *Playlists) Routes(r chi.Router) {
	r.Post("/playlists", h.create)
	r.Get("/playlists", h.list)
	r.Get("/playlists/{playlistID}", h.get)
	r.Put("/playlists/{playlistID}", h.update)
	r.Delete("/playlists/{playlistID}", h.delete)
}

func (h *Playlists) create(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if !p.HasPermission("playlists", "write") {
		respond.Forbidden(w)
		return
	}

	var body struct {
		Name     string      `json:"name"`
		TrackIDs []uuid.UUID `json:"trackIds"`
		IsPublic bool        `json:"isPublic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.BadRequest(w, "invalid request body")
		return
	}
	if body.Name == "" {
		respond.BadRequest(w, "name is required")
		return
	}

	now := time.Now().UTC()
	playlist := media.Playlist{
		ID:        uuid.New(),
		UserID:    p.UserID,
		Name:      body.Name,
		TrackIDs:  body.TrackIDs,
		IsPublic:  body.IsPublic,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.Save(r.Context(), &playlist); err != nil {
		h.logger.ErrorContext(r.Context(), "playlist save failed", slog.Any("error", err))
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusCreated, playlist)
}

func (h *Playlists) list(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if !p.HasPermission("playlists", "read") {
		respond.Forbidden(w)
		return
	}

	playlists, err := h.store.ListByUser(r.Context(), p.UserID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "playlist list failed", slog.Any("error", err))
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"playlists": playlists})
}

func (h *Playlists) get(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if !p.HasPermission("playlists", "read") {
		respond.Forbidden(w)
		return
	}

	playlist, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if !playlist.IsPublic && !p.Owns(playlist.UserID) {
		respond.Forbidden(w)
		return
	}
	respond.JSON(w, http.StatusOK, playlist)
}

func (h *Playlists) update(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if !p.HasPermission("playlists", "write") {
		respond.Forbidden(w)
		return
	}

	playlist, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if !p.Owns(playlist.UserID) {
		respond.Forbidden(w)
		return
	}

	var body struct {
		Name     *string      `json:"name"`
		TrackIDs *[]uuid.UUID `json:"trackIds"`
		IsPublic *bool        `json:"isPublic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.BadRequest(w, "invalid request body")
		return
	}
	if body.Name != nil {
		if *body.Name == "" {
			respond.BadRequest(w, "name cannot be empty")
			return
		}
		playlist.Name = *body.Name
	}
	if body.TrackIDs != nil {
		playlist.TrackIDs = *body.TrackIDs
	}
	if body.IsPublic != nil {
		playlist.IsPublic = *body.IsPublic
	}
	playlist.UpdatedAt = time.Now().UTC()

	if err := h.store.Update(r.Context(), playlist); err != nil {
		h.logger.ErrorContext(r.Context(), "playlist update failed", slog.Any("error", err))
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, playlist)
}

func (h *Playlists) delete(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if !p.HasPermission("playlists", "write") {
		respond.Forbidden(w)
		return
	}

	playlist, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if !p.Owns(playlist.UserID) {
		respond.Forbidden(w)
		return
	}

	if err := h.store.Delete(r.Context(), playlist.ID); err != nil {
		h.logger.ErrorContext(r.Context(), "playlist delete failed", slog.Any("error", err))
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"message": "playlist deleted"})
}

func (h *Playlists) lookup(w http.ResponseWriter, r *http.Request) (*media.Playlist, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "playlistID"))
	if err != nil {
		respond.BadRequest(w, "invalid playlist id")
		return nil, false
	}
	playlist, err := h.store.ByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, media.ErrPlaylistNotFound) {
			respond.NotFound(w)
			return nil, false
		}
		h.logger.ErrorContext(r.Context(), "playlist lookup failed", slog.Any("error", err))
		respond.Internal(w)
		return nil, false
	}
	return playlist, true
}
