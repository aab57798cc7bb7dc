package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/melodix/handlers/respond"
)

// RequireAuth rejects requests the gate did not resolve a principal for.
// Use it on routers mounted without the gate, or as an explicit marker on
// protected subtrees.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			respond.Unauthenticated(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects non-admin principals. Session or API key makes no
// difference; only the resolved role counts.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			respond.Unauthenticated(w)
			return
		}
		if !p.IsAdmin() {
			respond.Forbidden(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireOwnership guards routes carrying a user ID path parameter: the
// principal must own that user's resources. Admins pass unconditionally.
func RequireOwnership(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				respond.Unauthenticated(w)
				return
			}

			target, err := uuid.Parse(chi.URLParam(r, param))
			if err != nil {
				respond.BadRequest(w, "invalid resource id")
				return
			}
			if !p.Owns(target) {
				respond.Forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission enforces resource.action membership for API key
// principals. Session principals carry full user authority and pass.
func RequirePermission(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				respond.Unauthenticated(w)
				return
			}
			if !p.HasPermission(resource, action) {
				respond.Forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
