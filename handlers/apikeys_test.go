package handlers_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/melodix/core/session"
	"github.com/dmitrymomot/melodix/middleware"
)

func (f *webFixture) sessionFor(t *testing.T, username string, isAdmin bool) string {
	t.Helper()

	ctx := context.Background()
	u, err := f.users.ByUsername(ctx, username)
	require.NoError(t, err)
	sess, err := f.sessions.Create(ctx, u.ID, isAdmin, session.DeviceInfo{})
	require.NoError(t, err)
	return sess.Token
}

func withSession(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set(middleware.SessionTokenHeader, token)
	}
}

func TestAPIKeyPlaintextShownOnce(t *testing.T) {
	t.Parallel()

	f := newWebFixture(t)
	f.registerNova(t, "v1:home")
	token := f.sessionFor(t, "nova", false)

	rr := f.do(t, http.MethodPost, "/apikeys", map[string]any{"name": "scrobbler"}, withSession(token))
	require.Equal(t, http.StatusCreated, rr.Code)

	data := decode(t, rr)["data"].(map[string]any)
	plaintext, _ := data["apiKey"].(string)
	require.NotEmpty(t, plaintext)
	assert.Regexp(t, `^mlx_test_[a-f0-9]{64}$`, plaintext)

	// The list never exposes the secret again, only metadata.
	rr = f.do(t, http.MethodGet, "/apikeys", nil, withSession(token))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), plaintext)

	keys := decode(t, rr)["data"].(map[string]any)["keys"].([]any)
	require.Len(t, keys, 1)
	assert.Equal(t, "scrobbler", keys[0].(map[string]any)["name"])
}

func TestAPIKeyElevatedRoleNeedsAdmin(t *testing.T) {
	t.Parallel()

	f := newWebFixture(t)
	f.registerNova(t, "v1:home")
	userToken := f.sessionFor(t, "nova", false)
	adminToken := f.sessionFor(t, "nova", true)

	rr := f.do(t, http.MethodPost, "/apikeys", map[string]any{
		"name": "backdoor",
		"role": "admin",
	}, withSession(userToken))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, http.MethodPost, "/apikeys", map[string]any{
		"name": "ops",
		"role": "admin",
	}, withSession(adminToken))
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestAPIKeyCannotMintKeys(t *testing.T) {
	t.Parallel()

	f := newWebFixture(t)
	f.registerNova(t, "v1:home")
	token := f.sessionFor(t, "nova", false)

	rr := f.do(t, http.MethodPost, "/apikeys", map[string]any{"name": "first"}, withSession(token))
	require.Equal(t, http.StatusCreated, rr.Code)
	plaintext := decode(t, rr)["data"].(map[string]any)["apiKey"].(string)

	rr = f.do(t, http.MethodPost, "/apikeys", map[string]any{"name": "second"}, func(r *http.Request) {
		r.Header.Set(middleware.APIKeyHeader, plaintext)
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestAPIKeyRevokeRequiresOwnership(t *testing.T) {
	t.Parallel()

	f := newWebFixture(t)
	f.registerNova(t, "v1:home")
	novaToken := f.sessionFor(t, "nova", false)

	other := f.do(t, http.MethodPost, "/auth/register", map[string]string{
		"username":    "rival",
		"email":       "rival@example.com",
		"password":    "AnotherHorse1",
		"fingerprint": "v1:rival",
	})
	require.Equal(t, http.StatusCreated, other.Code)
	rivalToken := f.sessionFor(t, "rival", false)

	rr := f.do(t, http.MethodPost, "/apikeys", map[string]any{"name": "mine"}, withSession(novaToken))
	require.Equal(t, http.StatusCreated, rr.Code)
	keyID := decode(t, rr)["data"].(map[string]any)["key"].(map[string]any)["keyId"].(string)

	rr = f.do(t, http.MethodDelete, "/apikeys/"+keyID, nil, withSession(rivalToken))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, http.MethodDelete, "/apikeys/"+keyID, nil, withSession(novaToken))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodDelete, "/apikeys/unknown1", nil, withSession(novaToken))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
