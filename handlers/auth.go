// Package handlers exposes the HTTP surface: authentication and
// credential lifecycle, API key management, and the playlist/track
// catalog guarded by the gate.
package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/melodix/core/auth"
	"github.com/dmitrymomot/melodix/core/cookie"
	"github.com/dmitrymomot/melodix/core/device"
	"github.com/dmitrymomot/melodix/core/session"
	"github.com/dmitrymomot/melodix/core/twofactor"
	"github.com/dmitrymomot/melodix/core/user"
	"github.com/dmitrymomot/melodix/handlers/respond"
	"github.com/dmitrymomot/melodix/middleware"
	"github.com/dmitrymomot/melodix/pkg/clientip"
	"github.com/dmitrymomot/melodix/pkg/fingerprint"
)

// Auth serves registration, the two-step login flow, and the credential
// lifecycle endpoints.
type Auth struct {
	svc      *auth.Service
	twofa    *twofactor.Service
	registry *device.Registry
	sessions *session.Manager
	users    user.Store
	cookies  *cookie.Manager
	logger   *slog.Logger
}

// NewAuth wires the auth handlers.
func NewAuth(
	svc *auth.Service,
	twofa *twofactor.Service,
	registry *device.Registry,
	sessions *session.Manager,
	users user.Store,
	cookies *cookie.Manager,
	logger *slog.Logger,
) *Auth {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auth{
		svc:      svc,
		twofa:    twofa,
		registry: registry,
		sessions: sessions,
		users:    users,
		cookies:  cookies,
		logger:   logger,
	}
}

// PublicRoutes are mounted outside the gate.
func (h *Auth) PublicRoutes(r chi.Router) {
	r.Post("/auth/register", h.register)
	r.Post("/auth/login", h.loginStep1)
	r.Post("/auth/login/verify", h.loginStep2)
	r.Post("/auth/temp-code", h.mintTempCode)
}

// ProtectedRoutes are mounted behind the gate.
func (h *Auth) ProtectedRoutes(r chi.Router) {
	r.Post("/auth/logout", h.logout)
	r.Get("/auth/sessions", h.listSessions)
	r.Delete("/auth/sessions", h.revokeAllSessions)
	r.Get("/auth/devices", h.listDevices)
	r.Delete("/auth/devices/{fingerprint}", h.revokeDevice)
	r.Post("/auth/totp/enroll", h.enrollTOTP)
	r.Post("/auth/backup-codes/regenerate", h.regenerateBackupCodes)
}

// loginStepResponse is the wire shape of both login steps.
type loginStepResponse struct {
	Success          bool               `json:"success"`
	RequiresStep2    bool               `json:"requiresStep2"`
	StepToken        string             `json:"stepToken,omitempty"`
	AvailableMethods []twofactor.Method `json:"availableMethods,omitempty"`
	ExpiresIn        int                `json:"expiresIn,omitempty"`
	DeviceToken      string             `json:"deviceToken,omitempty"`
	User             *userPayload       `json:"user,omitempty"`
	Error            string             `json:"error,omitempty"`
}

type userPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"isAdmin"`
}

func (h *Auth) deviceInfo(r *http.Request) session.DeviceInfo {
	return session.DeviceInfo{
		UserAgent: r.UserAgent(),
		IP:        clientip.GetIP(r),
	}
}

func (h *Auth) register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username    string `json:"username"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		Fingerprint string `json:"fingerprint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.BadRequest(w, "invalid request body")
		return
	}
	if body.Username == "" || body.Email == "" || len(body.Password) < 8 {
		respond.BadRequest(w, "username, email and a password of at least 8 characters are required")
		return
	}

	result, err := h.svc.Register(r.Context(), auth.RegisterParams{
		Username:    body.Username,
		Email:       body.Email,
		Password:    body.Password,
		Fingerprint: fingerprint.Resolve(body.Fingerprint, r),
		Device:      h.deviceInfo(r),
	})
	if err != nil {
		if errors.Is(err, user.ErrAlreadyExists) {
			respond.Conflict(w, "username or email already taken")
			return
		}
		h.logger.ErrorContext(r.Context(), "registration failed", slog.Any("error", err))
		respond.Internal(w)
		return
	}

	respond.JSON(w, http.StatusCreated, map[string]any{
		"user": userPayload{
			ID:       result.User.ID.String(),
			Username: result.User.Username,
			IsAdmin:  result.User.IsAdmin,
		},
		"deviceToken": result.DeviceToken,
	})
}

func (h *Auth) loginStep1(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username    string `json:"username"`
		Password    string `json:"password"`
		Fingerprint string `json:"fingerprint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.BadRequest(w, "invalid request body")
		return
	}

	result, err := h.svc.LoginStep1(r.Context(), auth.Step1Params{
		Username:    body.Username,
		Password:    body.Password,
		Fingerprint: fingerprint.Resolve(body.Fingerprint, r),
		Device:      h.deviceInfo(r),
	})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeLoginJSON(w, http.StatusUnauthorized, loginStepResponse{Error: "invalid credentials"})
			return
		}
		h.logger.ErrorContext(r.Context(), "login step 1 failed", slog.Any("error", err))
		respond.Internal(w)
		return
	}

	if result.RequiresStep2 {
		writeLoginJSON(w, http.StatusOK, loginStepResponse{
			Success:          true,
			RequiresStep2:    true,
			StepToken:        result.StepToken,
			AvailableMethods: result.AvailableMethods,
			ExpiresIn:        result.ExpiresIn,
		})
		return
	}

	h.setSessionCookie(w, result.Session.Token)
	writeLoginJSON(w, http.StatusOK, loginStepResponse{
		Success: true,
		User: &userPayload{
			ID:      result.Session.UserID.String(),
			IsAdmin: result.Session.IsAdmin,
		},
	})
}

func (h *Auth) loginStep2(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StepToken string           `json:"stepToken"`
		Method    twofactor.Method `json:"method"`
		Code      string           `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.BadRequest(w, "invalid request body")
		return
	}

	result, err := h.svc.LoginStep2(r.Context(), auth.Step2Params{
		StepToken: body.StepToken,
		Method:    body.Method,
		Code:      body.Code,
		Device:    h.deviceInfo(r),
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrStepTokenNotFound):
			// Forces a restart at step 1.
			writeLoginJSON(w, http.StatusUnauthorized, loginStepResponse{Error: "login session expired"})
		case errors.Is(err, auth.ErrInvalidFactor):
			// The same step token is returned so the caller can retry
			// without redoing the password step. Its TTL is not extended.
			writeLoginJSON(w, http.StatusUnauthorized, loginStepResponse{
				RequiresStep2: true,
				StepToken:     body.StepToken,
				Error:         "invalid verification code",
			})
		default:
			h.logger.ErrorContext(r.Context(), "login step 2 failed", slog.Any("error", err))
			respond.Internal(w)
		}
		return
	}

	h.setSessionCookie(w, result.Session.Token)
	writeLoginJSON(w, http.StatusOK, loginStepResponse{
		Success:     true,
		DeviceToken: result.DeviceToken,
		User: &userPayload{
			ID:      result.Session.UserID.String(),
			IsAdmin: result.Session.IsAdmin,
		},
	})
}

// mintTempCode lets a locked-out user with a trusted device request a
// one-time code by email. Possession is proven by the device token handed
// out when the device was trusted. Failures are uniform 401s.
func (h *Auth) mintTempCode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username    string `json:"username"`
		DeviceToken string `json:"deviceToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.BadRequest(w, "invalid request body")
		return
	}

	u, err := h.users.ByUsername(r.Context(), body.Username)
	if err != nil {
		respond.Unauthenticated(w)
		return
	}
	if _, err := h.registry.VerifyToken(r.Context(), u.ID, body.DeviceToken); err != nil {
		respond.Unauthenticated(w)
		return
	}

	if err := h.twofa.MintTempCode(r.Context(), u.ID); err != nil {
		h.logger.ErrorContext(r.Context(), "temp code mint failed", slog.Any("error", err))
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"message": "code sent"})
}

func (h *Auth) logout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := middleware.SessionFromContext(r.Context()); ok {
		if err := h.svc.Logout(r.Context(), sess.Token); err != nil {
			h.logger.ErrorContext(r.Context(), "logout failed", slog.Any("error", err))
		}
	}
	h.clearSessionCookie(w)
	respond.JSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Auth) listSessions(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())

	sessions, err := h.sessions.List(r.Context(), p.UserID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "session list failed", slog.Any("error", err))
		respond.Internal(w)
		return
	}

	type sessionPayload struct {
		Device     string `json:"device"`
		IP         string `json:"ip"`
		CreatedAt  string `json:"createdAt"`
		LastActive string `json:"lastActive"`
		Current    bool   `json:"current"`
	}
	current, _ := middleware.SessionFromContext(r.Context())

	out := make([]sessionPayload, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionPayload{
			Device:     s.Device(),
			IP:         s.DeviceInfo.IP,
			CreatedAt:  s.CreatedAt.Format(http.TimeFormat),
			LastActive: s.LastActive.Format(http.TimeFormat),
			Current:    current != nil && current.Token == s.Token,
		})
	}
	respond.JSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (h *Auth) revokeAllSessions(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())

	n, err := h.sessions.RevokeAll(r.Context(), p.UserID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "session revoke-all failed", slog.Any("error", err))
		respond.Internal(w)
		return
	}
	h.clearSessionCookie(w)
	respond.JSON(w, http.StatusOK, map[string]int64{"revoked": n})
}

func (h *Auth) listDevices(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())

	devices, err := h.registry.List(r.Context(), p.UserID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "device list failed", slog.Any("error", err))
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (h *Auth) revokeDevice(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())

	fp := chi.URLParam(r, "fingerprint")
	if err := h.registry.Revoke(r.Context(), p.UserID, fp); err != nil {
		if errors.Is(err, device.ErrNotTrusted) {
			respond.NotFound(w)
			return
		}
		h.logger.ErrorContext(r.Context(), "device revoke failed", slog.Any("error", err))
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"message": "device revoked"})
}

// enrollTOTP requires an authenticated session, never device trust alone.
func (h *Auth) enrollTOTP(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok || p.AuthKind != auth.AuthKindSession {
		respond.Forbidden(w)
		return
	}

	enrollment, err := h.twofa.EnrollTOTP(r.Context(), p.UserID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "totp enrollment failed", slog.Any("error", err))
		respond.Internal(w)
		return
	}

	respond.JSON(w, http.StatusOK, map[string]any{
		"secret":          enrollment.Secret,
		"provisioningUri": enrollment.ProvisioningURI,
		"qrCodePng":       base64.StdEncoding.EncodeToString(enrollment.QRCodePNG),
		"backupCodes":     enrollment.BackupCodes,
	})
}

func (h *Auth) regenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok || p.AuthKind != auth.AuthKindSession {
		respond.Forbidden(w)
		return
	}

	codes, err := h.twofa.RegenerateBackupCodes(r.Context(), p.UserID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "backup code regeneration failed", slog.Any("error", err))
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"backupCodes": codes})
}

func (h *Auth) setSessionCookie(w http.ResponseWriter, token string) {
	if h.cookies == nil {
		return
	}
	h.cookies.SetSigned(w, middleware.SessionCookieName, token,
		cookie.WithHTTPOnly(true),
		cookie.WithSameSite(http.SameSiteLaxMode),
	)
}

func (h *Auth) clearSessionCookie(w http.ResponseWriter) {
	if h.cookies == nil {
		return
	}
	h.cookies.Delete(w, middleware.SessionCookieName)
}

func writeLoginJSON(w http.ResponseWriter, status int, resp loginStepResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
