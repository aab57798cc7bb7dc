package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/melodix/core/media"
	"github.com/dmitrymomot/melodix/handlers/respond"
	"github.com/dmitrymomot/melodix/middleware"
)

// maxUploadBytes caps a single track upload.
const maxUploadBytes = 200 << 20

// ObjectStore is the slice of the media bucket the track handlers need.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) error
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string) (string, time.Duration, error)
}

// Tracks serves track upload, metadata, and playback. Audio never streams
// through this process; playback hands out a short-lived presigned URL to
// the private bucket.
type Tracks struct {
	store   media.TrackStore
	objects ObjectStore
	logger  *slog.Logger
}

func NewTracks(store media.TrackStore, objects ObjectStore, logger *slog.Logger) *Tracks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracks{store: store, objects: objects, logger: logger}
}

func (h *Tracks) Routes(r chi.Router) {
	r.Post("/tracks", h.upload)
	r.Get("/tracks", h.list)
	r.Get("/tracks/{trackID}", h.get)
	r.Get("/tracks/{trackID}/stream", h.stream)
	r.Delete("/tracks/{trackID}", h.delete)
}

func (h *Tracks) upload(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if !p.HasPermission("tracks", "write") {
		respond.Forbidden(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respond.BadRequest(w, "expected multipart form upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respond.BadRequest(w, "file field is required")
		return
	}
	defer file.Close()

	title := r.FormValue("title")
	if title == "" {
		respond.BadRequest(w, "title is required")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var duration time.Duration
	if v := r.FormValue("durationSeconds"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil || secs < 0 {
			respond.BadRequest(w, "invalid durationSeconds")
			return
		}
		duration = time.Duration(secs * float64(time.Second))
	}

	track := media.Track{
		ID:          uuid.New(),
		UserID:      p.UserID,
		Title:       title,
		Artist:      r.FormValue("artist"),
		Album:       r.FormValue("album"),
		Duration:    duration,
		StorageKey:  fmt.Sprintf("tracks/%s/%s", p.UserID, uuid.New()),
		ContentType: contentType,
		SizeBytes:   header.Size,
		CreatedAt:   time.Now().UTC(),
	}

	if err := h.objects.Upload(r.Context(), track.StorageKey, contentType, file); err != nil {
		h.logger.ErrorContext(r.Context(), "track upload failed", slog.Any("error", err))
		respond.Internal(w)
		return
	}
	if err := h.store.Save(r.Context(), &track); err != nil {
		// Roll back the orphaned object so the bucket stays in sync.
		if derr := h.objects.Delete(r.Context(), track.StorageKey); derr != nil {
			h.logger.ErrorContext(r.Context(), "orphaned object cleanup failed",
				slog.String("storage_key", track.StorageKey), slog.Any("error", derr))
		}
		h.logger.ErrorContext(r.Context(), "track save failed", slog.Any("error", err))
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusCreated, track)
}

func (h *Tracks) list(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if !p.HasPermission("tracks", "read") {
		respond.Forbidden(w)
		return
	}

	tracks, err := h.store.ListByUser(r.Context(), p.UserID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "track list failed", slog.Any("error", err))
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"tracks": tracks})
}

func (h *Tracks) get(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if !p.HasPermission("tracks", "read") {
		respond.Forbidden(w)
		return
	}

	track, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if !p.Owns(track.UserID) {
		respond.Forbidden(w)
		return
	}
	respond.JSON(w, http.StatusOK, track)
}

func (h *Tracks) stream(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if !p.HasPermission("tracks", "read") {
		respond.Forbidden(w)
		return
	}

	track, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if !p.Owns(track.UserID) {
		respond.Forbidden(w)
		return
	}

	url, ttl, err := h.objects.PresignGet(r.Context(), track.StorageKey)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "presign failed",
			slog.String("storage_key", track.StorageKey), slog.Any("error", err))
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"url":       url,
		"expiresIn": int(ttl.Seconds()),
	})
}

func (h *Tracks) delete(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if !p.HasPermission("tracks", "write") {
		respond.Forbidden(w)
		return
	}

	track, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if !p.Owns(track.UserID) {
		respond.Forbidden(w)
		return
	}

	if err := h.store.Delete(r.Context(), track.ID); err != nil {
		h.logger.ErrorContext(r.Context(), "track delete failed", slog.Any("error", err))
		respond.Internal(w)
		return
	}
	if err := h.objects.Delete(r.Context(), track.StorageKey); err != nil {
		h.logger.ErrorContext(r.Context(), "object delete failed",
			slog.String("storage_key", track.StorageKey), slog.Any("error", err))
	}
	respond.JSON(w, http.StatusOK, map[string]string{"message": "track deleted"})
}

func (h *Tracks) lookup(w http.ResponseWriter, r *http.Request) (*media.Track, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "trackID"))
	if err != nil {
		respond.BadRequest(w, "invalid track id")
		return nil, false
	}
	track, err := h.store.ByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, media.ErrTrackNotFound) {
			respond.NotFound(w)
			return nil, false
		}
		h.logger.ErrorContext(r.Context(), "track lookup failed", slog.Any("error", err))
		respond.Internal(w)
		return nil, false
	}
	return track, true
}
