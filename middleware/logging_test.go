package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/melodix/core/session"
	"github.com/dmitrymomot/melodix/middleware"
)

// logRecord decodes the single JSON record emitted for a request.
func logRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	return rec
}

func TestLoggingIncludesResolvedPrincipal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newGateFixture(t)

	sess, err := f.sessions.Create(ctx, uuid.New(), false, session.DeviceInfo{})
	require.NoError(t, err)

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	// Logging wraps the gate, the way the server mounts them.
	h := middleware.Logging(log)(f.gate.Authenticate(principalEcho()))

	req := httptest.NewRequest(http.MethodGet, "/playlists", nil)
	req.Header.Set(middleware.SessionTokenHeader, sess.Token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	rec := logRecord(t, &buf)
	assert.Equal(t, sess.UserID.String(), rec["user_id"])
	assert.Equal(t, "session", rec["auth_kind"])
	assert.Equal(t, "/playlists", rec["path"])
	assert.EqualValues(t, http.StatusOK, rec["status"])
}

func TestLoggingOmitsPrincipalWhenUnauthenticated(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := middleware.Logging(log)(f.gate.Authenticate(principalEcho()))

	req := httptest.NewRequest(http.MethodGet, "/playlists", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rec := logRecord(t, &buf)
	assert.NotContains(t, rec, "user_id")
	assert.NotContains(t, rec, "auth_kind")
}
