package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/melodix/core/apikey"
	"github.com/dmitrymomot/melodix/core/auth"
	"github.com/dmitrymomot/melodix/core/cookie"
	"github.com/dmitrymomot/melodix/core/device"
	"github.com/dmitrymomot/melodix/core/media"
	"github.com/dmitrymomot/melodix/core/session"
	"github.com/dmitrymomot/melodix/core/twofactor"
	"github.com/dmitrymomot/melodix/core/user"
	"github.com/dmitrymomot/melodix/handlers"
	"github.com/dmitrymomot/melodix/middleware"
	"github.com/dmitrymomot/melodix/pkg/ratelimiter"
	"github.com/dmitrymomot/melodix/pkg/secrets"
	"github.com/dmitrymomot/melodix/pkg/totp"
)

type captureSender struct {
	mu    sync.Mutex
	codes []string
}

func (c *captureSender) SendTempCode(_ context.Context, _, code string, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes = append(c.codes, code)
	return nil
}

func (c *captureSender) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.codes) == 0 {
		return ""
	}
	return c.codes[len(c.codes)-1]
}

type webFixture struct {
	router   chi.Router
	sessions *session.Manager
	users    *user.MemoryStore
	profiles *twofactor.MemoryStore
	keys     *apikey.Service
	sender   *captureSender
}

func newWebFixture(t *testing.T) *webFixture {
	t.Helper()

	encKey, err := secrets.GenerateKey()
	require.NoError(t, err)
	cookies, err := cookie.New([]string{"0123456789abcdef0123456789abcdef"})
	require.NoError(t, err)

	users := user.NewMemoryStore()
	profiles := twofactor.NewMemoryStore()
	verifier := twofactor.NewVerifier(profiles, users, encKey)
	registry := device.NewRegistry(profiles)
	sessions := session.NewManager(session.NewMemoryStore(), session.Config{TTL: time.Hour})
	steps := auth.NewMemoryStepTokenStore()
	sender := &captureSender{}

	authSvc := auth.NewService(users, profiles, verifier, registry, sessions, steps, nil, auth.Config{})
	twofaSvc := twofactor.NewService(profiles, users, sender, encKey, twofactor.Config{})
	keySvc := apikey.NewService(apikey.NewMemoryStore(), ratelimiter.NewMemoryStore(), nil, apikey.Config{Environment: apikey.EnvTest})

	authHandlers := handlers.NewAuth(authSvc, twofaSvc, registry, sessions, users, cookies, nil)
	keyHandlers := handlers.NewAPIKeys(keySvc, nil)
	playlistHandlers := handlers.NewPlaylists(media.NewMemoryPlaylistStore(), nil)

	gate := middleware.NewGate(sessions, keySvc, cookies, nil)

	r := chi.NewRouter()
	r.Group(authHandlers.PublicRoutes)
	r.Group(func(pr chi.Router) {
		pr.Use(gate.Authenticate)
		authHandlers.ProtectedRoutes(pr)
		keyHandlers.Routes(pr)
		playlistHandlers.Routes(pr)
	})

	return &webFixture{
		router:   r,
		sessions: sessions,
		users:    users,
		profiles: profiles,
		keys:     keySvc,
		sender:   sender,
	}
}

func (f *webFixture) do(t *testing.T, method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

// registerNova creates the user over HTTP and returns the device token
// handed out for the registration fingerprint.
func (f *webFixture) registerNova(t *testing.T, fingerprint string) string {
	t.Helper()

	rr := f.do(t, http.MethodPost, "/auth/register", map[string]string{
		"username":    "nova",
		"email":       "nova@example.com",
		"password":    "CorrectHorse1",
		"fingerprint": fingerprint,
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	body := decode(t, rr)
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	token, _ := data["deviceToken"].(string)
	require.NotEmpty(t, token)
	return token
}

// enrollNova enables TOTP through the enrollment endpoint and returns the
// seed plus backup codes.
func (f *webFixture) enrollNova(t *testing.T) (secret string, backupCodes []string) {
	t.Helper()

	ctx := context.Background()
	u, err := f.users.ByUsername(ctx, "nova")
	require.NoError(t, err)
	sess, err := f.sessions.Create(ctx, u.ID, false, session.DeviceInfo{})
	require.NoError(t, err)

	rr := f.do(t, http.MethodPost, "/auth/totp/enroll", nil, func(r *http.Request) {
		r.Header.Set(middleware.SessionTokenHeader, sess.Token)
	})
	require.Equal(t, http.StatusOK, rr.Code)

	data := decode(t, rr)["data"].(map[string]any)
	secret, _ = data["secret"].(string)
	require.NotEmpty(t, secret)
	for _, c := range data["backupCodes"].([]any) {
		backupCodes = append(backupCodes, c.(string))
	}
	require.Len(t, backupCodes, 10)
	return secret, backupCodes
}

func TestRegisterThenTrustedLogin(t *testing.T) {
	t.Parallel()

	f := newWebFixture(t)
	f.registerNova(t, "v1:home")

	rr := f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username":    "nova",
		"password":    "CorrectHorse1",
		"fingerprint": "v1:home",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	body := decode(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["requiresStep2"])
	assert.Nil(t, body["stepToken"])

	var sessionCookie bool
	for _, c := range rr.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			sessionCookie = true
			assert.True(t, c.HttpOnly)
			assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
		}
	}
	assert.True(t, sessionCookie, "trusted login must set the session cookie")
}

func TestLoginFromNewDeviceRequiresSecondFactor(t *testing.T) {
	t.Parallel()

	f := newWebFixture(t)
	f.registerNova(t, "v1:home")
	secret, _ := f.enrollNova(t)

	rr := f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username":    "nova",
		"password":    "CorrectHorse1",
		"fingerprint": "v1:laptop",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	body := decode(t, rr)
	require.Equal(t, true, body["requiresStep2"])
	stepToken, _ := body["stepToken"].(string)
	require.NotEmpty(t, stepToken)
	assert.EqualValues(t, 300, body["expiresIn"])
	assert.Contains(t, body["availableMethods"], "totp")
	assert.Empty(t, rr.Result().Cookies())

	// A wrong code keeps the step token alive and echoes it back.
	rr = f.do(t, http.MethodPost, "/auth/login/verify", map[string]string{
		"stepToken": stepToken,
		"method":    "totp",
		"code":      "000000",
	})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	retry := decode(t, rr)
	assert.Equal(t, stepToken, retry["stepToken"])

	code, err := totp.CodeAt(secret, time.Now())
	require.NoError(t, err)
	rr = f.do(t, http.MethodPost, "/auth/login/verify", map[string]string{
		"stepToken": stepToken,
		"method":    "totp",
		"code":      code,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	done := decode(t, rr)
	assert.Equal(t, true, done["success"])
	assert.NotEmpty(t, done["deviceToken"])

	var sessionCookie bool
	for _, c := range rr.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			sessionCookie = true
		}
	}
	assert.True(t, sessionCookie)

	// The consumed step token cannot complete a second login.
	rr = f.do(t, http.MethodPost, "/auth/login/verify", map[string]string{
		"stepToken": stepToken,
		"method":    "totp",
		"code":      code,
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLoginUniformInvalidCredentials(t *testing.T) {
	t.Parallel()

	f := newWebFixture(t)
	f.registerNova(t, "v1:home")

	wrongPassword := f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username": "nova",
		"password": "WrongHorse1",
	})
	unknownUser := f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username": "ghost",
		"password": "WrongHorse1",
	})

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownUser.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownUser.Body.String())
}

func TestTempCodeRecoveryFlow(t *testing.T) {
	t.Parallel()

	f := newWebFixture(t)
	deviceToken := f.registerNova(t, "v1:home")
	f.enrollNova(t)

	// A bad device token is rejected without detail.
	rr := f.do(t, http.MethodPost, "/auth/temp-code", map[string]string{
		"username":    "nova",
		"deviceToken": "bogus",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(t, http.MethodPost, "/auth/temp-code", map[string]string{
		"username":    "nova",
		"deviceToken": deviceToken,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	code := f.sender.last()
	require.Len(t, code, 8)

	step1 := f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username":    "nova",
		"password":    "CorrectHorse1",
		"fingerprint": "v1:phone",
	})
	require.Equal(t, http.StatusOK, step1.Code)
	stepToken := decode(t, step1)["stepToken"].(string)

	rr = f.do(t, http.MethodPost, "/auth/login/verify", map[string]string{
		"stepToken": stepToken,
		"method":    "temp",
		"code":      code,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	// Single use: the same code is spent.
	step1 = f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username":    "nova",
		"password":    "CorrectHorse1",
		"fingerprint": "v1:tablet",
	})
	stepToken = decode(t, step1)["stepToken"].(string)
	rr = f.do(t, http.MethodPost, "/auth/login/verify", map[string]string{
		"stepToken": stepToken,
		"method":    "temp",
		"code":      code,
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogoutRevokesSessionAndClearsCookie(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newWebFixture(t)
	f.registerNova(t, "v1:home")

	u, err := f.users.ByUsername(ctx, "nova")
	require.NoError(t, err)
	sess, err := f.sessions.Create(ctx, u.ID, false, session.DeviceInfo{})
	require.NoError(t, err)

	rr := f.do(t, http.MethodPost, "/auth/logout", nil, func(r *http.Request) {
		r.Header.Set(middleware.SessionTokenHeader, sess.Token)
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var cleared bool
	for _, c := range rr.Result().Cookies() {
		if c.Name == middleware.SessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "logout must expire the session cookie")

	_, err = f.sessions.Resolve(ctx, sess.Token)
	assert.Error(t, err)
}

func TestSessionListMarksCurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newWebFixture(t)
	f.registerNova(t, "v1:home")

	u, err := f.users.ByUsername(ctx, "nova")
	require.NoError(t, err)
	first, err := f.sessions.Create(ctx, u.ID, false, session.DeviceInfo{UserAgent: "Mozilla/5.0", IP: "203.0.113.7"})
	require.NoError(t, err)
	_, err = f.sessions.Create(ctx, u.ID, false, session.DeviceInfo{UserAgent: "curl/8.0", IP: "198.51.100.2"})
	require.NoError(t, err)

	rr := f.do(t, http.MethodGet, "/auth/sessions", nil, func(r *http.Request) {
		r.Header.Set(middleware.SessionTokenHeader, first.Token)
	})
	require.Equal(t, http.StatusOK, rr.Code)

	data := decode(t, rr)["data"].(map[string]any)
	sessions := data["sessions"].([]any)
	require.Len(t, sessions, 2)

	var current int
	for _, s := range sessions {
		if s.(map[string]any)["current"] == true {
			current++
		}
	}
	assert.Equal(t, 1, current)
}
