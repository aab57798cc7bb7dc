package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/melodix/core/apikey"
	"github.com/dmitrymomot/melodix/core/auth"
	"github.com/dmitrymomot/melodix/handlers/respond"
	"github.com/dmitrymomot/melodix/middleware"
)

// APIKeys serves key issuance and lifecycle. All routes sit behind the
// gate; issuance additionally requires a session so a stolen key cannot
// mint further keys.
type APIKeys struct {
	svc    *apikey.Service
	logger *slog.Logger
}

func NewAPIKeys(svc *apikey.Service, logger *slog.Logger) *APIKeys {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIKeys{svc: svc, logger: logger}
}

func (h *APIKeys) Routes(r chi.Router) {
	r.Post("/apikeys", h.create)
	r.Get("/apikeys", h.list)
	r.Delete("/apikeys/{keyID}", h.revoke)
}

type apiKeyPayload struct {
	KeyID       string     `json:"keyId"`
	Name        string     `json:"name"`
	CreatedBy   string     `json:"createdBy"`
	Role        auth.Role  `json:"role"`
	Environment string     `json:"environment"`
	Permissions []string   `json:"permissions"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
	UsageCount  int64      `json:"usageCount"`
}

func keyPayload(k apikey.APIKey) apiKeyPayload {
	return apiKeyPayload{
		KeyID:       k.KeyID,
		Name:        k.Name,
		CreatedBy:   k.CreatedBy.String(),
		Role:        k.Role,
		Environment: string(k.Environment),
		Permissions: k.Permissions,
		IsActive:    k.IsActive,
		CreatedAt:   k.CreatedAt,
		ExpiresAt:   k.ExpiresAt,
		LastUsedAt:  k.LastUsedAt,
		UsageCount:  k.UsageCount,
	}
}

func (h *APIKeys) create(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if p.AuthKind != auth.AuthKindSession {
		respond.Forbidden(w)
		return
	}

	var body struct {
		Name        string     `json:"name"`
		Role        auth.Role  `json:"role"`
		Permissions []string   `json:"permissions"`
		AllowedIPs  []string   `json:"allowedIps"`
		ExpiresAt   *time.Time `json:"expiresAt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.BadRequest(w, "invalid request body")
		return
	}
	if body.Name == "" {
		respond.BadRequest(w, "name is required")
		return
	}
	// Only admins may mint keys above the user role.
	if body.Role != "" && body.Role != auth.RoleUser && !p.IsAdmin() {
		respond.Forbidden(w)
		return
	}

	key, plaintext, err := h.svc.Create(r.Context(), p.UserID, apikey.CreateParams{
		Name:        body.Name,
		Role:        body.Role,
		Permissions: body.Permissions,
		AllowedIPs:  body.AllowedIPs,
		ExpiresAt:   body.ExpiresAt,
		CreatedBy:   p.UserID,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "api key creation failed", slog.Any("error", err))
		respond.Internal(w)
		return
	}

	// The plaintext key appears in this response and nowhere else; only
	// its hash is stored.
	respond.JSON(w, http.StatusCreated, map[string]any{
		"key":    keyPayload(*key),
		"apiKey": plaintext,
	})
}

func (h *APIKeys) list(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())

	keys, err := h.svc.List(r.Context(), p.UserID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "api key list failed", slog.Any("error", err))
		respond.Internal(w)
		return
	}

	out := make([]apiKeyPayload, 0, len(keys))
	for _, k := range keys {
		out = append(out, keyPayload(k))
	}
	respond.JSON(w, http.StatusOK, map[string]any{"keys": out})
}

func (h *APIKeys) revoke(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())

	keyID := chi.URLParam(r, "keyID")
	key, err := h.svc.Get(r.Context(), keyID)
	if err != nil {
		if errors.Is(err, apikey.ErrNotFound) {
			respond.NotFound(w)
			return
		}
		h.logger.ErrorContext(r.Context(), "api key lookup failed", slog.Any("error", err))
		respond.Internal(w)
		return
	}
	if !p.Owns(key.UserID) {
		respond.Forbidden(w)
		return
	}

	if err := h.svc.Revoke(r.Context(), keyID); err != nil {
		h.logger.ErrorContext(r.Context(), "api key revoke failed", slog.Any("error", err))
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"message": "key revoked"})
}
