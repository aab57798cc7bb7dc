package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmitrymomot/melodix/core/apikey"
	"github.com/dmitrymomot/melodix/core/auth"
	"github.com/dmitrymomot/melodix/core/cookie"
	"github.com/dmitrymomot/melodix/core/session"
	"github.com/dmitrymomot/melodix/handlers/respond"
	"github.com/dmitrymomot/melodix/pkg/clientip"
)

const (
	// SessionCookieName is the browser session cookie.
	SessionCookieName = "melodix_session"
	// SessionTokenHeader carries a session token for non-browser clients.
	SessionTokenHeader = "X-Session-Token"
	// APIKeyHeader is the only place an API key is accepted from. Keys are
	// never read from query parameters, which leak into logs and referrers.
	APIKeyHeader = "X-API-Key"
)

// Gate resolves every request's principal exactly once, before any
// response is written. Session credentials take precedence over API keys:
// once a session authenticates the request, a later role-check failure is
// final and never retried under API key authority.
type Gate struct {
	sessions *session.Manager
	keys     *apikey.Service
	cookies  *cookie.Manager
	logger   *slog.Logger
}

// NewGate wires the gate.
func NewGate(sessions *session.Manager, keys *apikey.Service, cookies *cookie.Manager, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{sessions: sessions, keys: keys, cookies: cookies, logger: logger}
}

// Authenticate is the unified gate middleware. Requests that resolve no
// credential are rejected with a uniform 401; the response never reveals
// which mechanism was attempted or why it failed.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := g.sessionToken(r); token != "" {
			sess, err := g.sessions.Resolve(r.Context(), token)
			if err == nil {
				g.renewCookie(w, sess.Token)

				p := auth.Principal{
					UserID:   sess.UserID,
					Role:     sessionRole(sess),
					AuthKind: auth.AuthKindSession,
				}
				ctx := withSession(withPrincipal(r.Context(), p), sess)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			if !errors.Is(err, session.ErrNotFound) && !errors.Is(err, session.ErrExpired) {
				g.logger.ErrorContext(r.Context(), "session resolution failed", slog.Any("error", err))
				respond.Internal(w)
				return
			}
			// A dead session falls through to API key resolution; the
			// stale cookie is cleared so the browser stops sending it.
			g.clearCookie(w, r)
		}

		raw := r.Header.Get(APIKeyHeader)
		if raw == "" {
			respond.Unauthenticated(w)
			return
		}

		key, err := g.keys.Authenticate(r.Context(), raw, clientip.GetIP(r))
		if err != nil {
			var rle *apikey.RateLimitError
			switch {
			case errors.As(err, &rle):
				respond.RateLimited(w, rle.ResetSeconds)
			case errors.Is(err, apikey.ErrMalformedKey),
				errors.Is(err, apikey.ErrNotFound),
				errors.Is(err, apikey.ErrKeyRevoked),
				errors.Is(err, apikey.ErrKeyExpired),
				errors.Is(err, apikey.ErrIPNotAllowed):
				respond.Unauthenticated(w)
			default:
				g.logger.ErrorContext(r.Context(), "api key resolution failed", slog.Any("error", err))
				respond.Internal(w)
			}
			return
		}

		p := auth.Principal{
			UserID:      key.UserID,
			Role:        key.Role,
			AuthKind:    auth.AuthKindAPIKey,
			KeyID:       key.KeyID,
			Permissions: key.Permissions,
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

// sessionToken extracts the candidate session token. Precedence: signed
// cookie, unsigned cookie, custom header, bearer authorization.
func (g *Gate) sessionToken(r *http.Request) string {
	if g.cookies != nil {
		if v, err := g.cookies.GetSigned(r, SessionCookieName); err == nil && v != "" {
			return v
		}
		if v, err := g.cookies.Get(r, SessionCookieName); err == nil && v != "" {
			return v
		}
	}
	if v := r.Header.Get(SessionTokenHeader); v != "" {
		return v
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		candidate := strings.TrimPrefix(h, "Bearer ")
		// Bearer values are only session candidates when they carry the
		// session prefix; API keys have their own header.
		if strings.HasPrefix(candidate, session.TokenPrefix) {
			return candidate
		}
	}
	return ""
}

func (g *Gate) renewCookie(w http.ResponseWriter, token string) {
	if g.cookies == nil {
		return
	}
	g.cookies.SetSigned(w, SessionCookieName, token,
		cookie.WithHTTPOnly(true),
		cookie.WithSameSite(http.SameSiteLaxMode),
	)
}

func (g *Gate) clearCookie(w http.ResponseWriter, r *http.Request) {
	if g.cookies == nil {
		return
	}
	if _, err := r.Cookie(SessionCookieName); err == nil {
		g.cookies.Delete(w, SessionCookieName)
	}
}

func sessionRole(s *session.Session) auth.Role {
	if s.IsAdmin {
		return auth.RoleAdmin
	}
	return auth.RoleUser
}
