package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/melodix/core/apikey"
	"github.com/dmitrymomot/melodix/core/auth"
	"github.com/dmitrymomot/melodix/core/session"
	"github.com/dmitrymomot/melodix/middleware"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// protectedRouter mounts the full gate + guard chain the way the server does.
func protectedRouter(t *testing.T) (*chi.Mux, *gateFixture) {
	t.Helper()

	f := newGateFixture(t)

	r := chi.NewRouter()
	r.Use(f.gate.Authenticate)
	r.With(middleware.RequireAdmin).Get("/admin", okHandler)
	r.With(middleware.RequireOwnership("userID")).Get("/users/{userID}/playlists", okHandler)
	r.With(middleware.RequirePermission("playlists", "write")).Post("/playlists", okHandler)
	return r, f
}

func TestRequireAdminForbidsUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, f := protectedRouter(t)

	userSess, err := f.sessions.Create(ctx, uuid.New(), false, session.DeviceInfo{})
	require.NoError(t, err)
	adminSess, err := f.sessions.Create(ctx, uuid.New(), true, session.DeviceInfo{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(middleware.SessionTokenHeader, userSess.Token)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(middleware.SessionTokenHeader, adminSess.Token)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequireOwnership(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, f := protectedRouter(t)
	owner := uuid.New()
	other := uuid.New()

	sess, err := f.sessions.Create(ctx, owner, false, session.DeviceInfo{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/users/"+owner.String()+"/playlists", nil)
	req.Header.Set(middleware.SessionTokenHeader, sess.Token)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/users/"+other.String()+"/playlists", nil)
	req.Header.Set(middleware.SessionTokenHeader, sess.Token)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/users/not-a-uuid/playlists", nil)
	req.Header.Set(middleware.SessionTokenHeader, sess.Token)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRequireOwnershipAdminBypass(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, f := protectedRouter(t)

	adminSess, err := f.sessions.Create(ctx, uuid.New(), true, session.DeviceInfo{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/users/"+uuid.NewString()+"/playlists", nil)
	req.Header.Set(middleware.SessionTokenHeader, adminSess.Token)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequirePermission(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, f := protectedRouter(t)

	// Service keys lack playlists.write.
	_, serviceKey, err := f.keys.Create(ctx, uuid.New(), apikey.CreateParams{Role: auth.RoleService})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/playlists", nil)
	req.Header.Set(middleware.APIKeyHeader, serviceKey)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	_, userKey, err := f.keys.Create(ctx, uuid.New(), apikey.CreateParams{})
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodPost, "/playlists", nil)
	req.Header.Set(middleware.APIKeyHeader, userKey)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	// Session principals carry full user authority.
	sess, err := f.sessions.Create(ctx, uuid.New(), false, session.DeviceInfo{})
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodPost, "/playlists", nil)
	req.Header.Set(middleware.SessionTokenHeader, sess.Token)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequireAuthWithoutGate(t *testing.T) {
	t.Parallel()

	h := middleware.RequireAuth(http.HandlerFunc(okHandler))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequestIDAssignedAndEchoed(t *testing.T) {
	t.Parallel()

	var seen string
	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := middleware.RequestIDFromContext(r.Context())
		require.True(t, ok)
		seen = id
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get(middleware.RequestIDHeader))

	// Incoming IDs survive the hop.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "upstream-id")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "upstream-id", rr.Header().Get(middleware.RequestIDHeader))
}

func TestSessionCookieRenewedOnSuccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newGateFixture(t)

	sess, err := f.sessions.Create(ctx, uuid.New(), false, session.DeviceInfo{})
	require.NoError(t, err)

	h := f.gate.Authenticate(principalEcho())
	req := httptest.NewRequest(http.MethodGet, "/playlists", nil)
	req.Header.Set(middleware.SessionTokenHeader, sess.Token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var renewed *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			renewed = c
		}
	}
	require.NotNil(t, renewed, "successful session auth renews the cookie")
	assert.True(t, renewed.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, renewed.SameSite)
}
