// Package middleware holds the HTTP authentication gate and the guard
// chain built on top of it: principal resolution, role and ownership
// checks, request IDs, and request logging.
package middleware

import (
	"context"

	"github.com/dmitrymomot/melodix/core/auth"
	"github.com/dmitrymomot/melodix/core/session"
)

type contextKey int

const (
	principalKey contextKey = iota
	sessionKey
	requestIDKey
	principalTraceKey
)

// principalTrace is a mutable slot Logging seeds into the context before
// the gate runs. Context values added downstream are invisible to outer
// middleware, so the gate reports the resolved principal back through it.
type principalTrace struct {
	principal auth.Principal
	resolved  bool
}

func withPrincipalTrace(ctx context.Context, t *principalTrace) context.Context {
	return context.WithValue(ctx, principalTraceKey, t)
}

// PrincipalFromContext returns the authenticated principal, if the gate
// resolved one.
func PrincipalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(auth.Principal)
	return p, ok
}

// SessionFromContext returns the resolved session for session-authenticated
// requests. API key principals have no session.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*session.Session)
	return s, ok
}

// RequestIDFromContext returns the request ID assigned by RequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

func withPrincipal(ctx context.Context, p auth.Principal) context.Context {
	if t, ok := ctx.Value(principalTraceKey).(*principalTrace); ok {
		t.principal = p
		t.resolved = true
	}
	return context.WithValue(ctx, principalKey, p)
}

func withSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
