package apikey_test

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/melodix/core/apikey"
	"github.com/dmitrymomot/melodix/core/auth"
)

func TestGenerateFormat(t *testing.T) {
	t.Parallel()

	gen, err := apikey.Generate(apikey.EnvLive)
	require.NoError(t, err)

	assert.True(t, apikey.WellFormed(gen.FullKey))
	assert.Len(t, gen.KeyID, apikey.KeyIDLen)
	assert.Len(t, gen.KeyHash, 64)
	assert.Equal(t, gen.KeyID, apikey.KeyIDFromPlaintext(gen.FullKey))

	testKey, err := apikey.Generate(apikey.EnvTest)
	require.NoError(t, err)
	assert.Contains(t, testKey.FullKey, "mlx_test_")
}

func TestWellFormed(t *testing.T) {
	t.Parallel()

	hex64 := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

	cases := []struct {
		name string
		key  string
		want bool
	}{
		{"live key", "mlx_live_" + hex64, true},
		{"test key", "mlx_test_" + hex64, true},
		{"empty", "", false},
		{"wrong prefix", "sk_live_" + hex64, false},
		{"unknown env", "mlx_prod_" + hex64, false},
		{"short secret", "mlx_live_" + hex64[:63], false},
		{"uppercase hex", "mlx_live_" + "ABCDEF6789abcdef0123456789abcdef0123456789abcdef0123456789abcdef", false},
		{"non-hex secret", "mlx_live_" + "zzzz56789abcdef0123456789abcdef0123456789abcdef0123456789abcdef0", false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, apikey.WellFormed(tc.key))
		})
	}
}

func TestHashKeyDeterministic(t *testing.T) {
	t.Parallel()

	seen := make(map[string]string)
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("mlx_live_%064x", i)
		h := apikey.HashKey(key)

		assert.Equal(t, h, apikey.HashKey(key), "hashing is deterministic")
		prev, dup := seen[h]
		require.False(t, dup, "hash collision between %q and %q", prev, key)
		seen[h] = key
	}
}

func TestCanAccessOwnership(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	other := uuid.New()

	userKey := apikey.APIKey{
		UserID:      owner,
		Role:        auth.RoleUser,
		Permissions: apikey.DefaultPermissions(auth.RoleUser),
	}

	// Row-level ownership for user-role keys.
	assert.True(t, userKey.CanAccess("playlists", "write", owner))
	assert.False(t, userKey.CanAccess("playlists", "write", other))

	// Missing permission fails regardless of ownership.
	assert.False(t, userKey.CanAccess("users", "write", owner))

	adminKey := apikey.APIKey{
		UserID:      owner,
		Role:        auth.RoleAdmin,
		Permissions: apikey.DefaultPermissions(auth.RoleAdmin),
	}
	assert.True(t, adminKey.CanAccess("playlists", "write", other), "admin bypasses ownership")

	serviceKey := apikey.APIKey{
		UserID:      owner,
		Role:        auth.RoleService,
		Permissions: apikey.DefaultPermissions(auth.RoleService),
	}
	assert.True(t, serviceKey.CanAccess("playlists", "read", owner))
	assert.False(t, serviceKey.CanAccess("playlists", "write", owner), "service keys are read-mostly")
	assert.False(t, serviceKey.CanAccess("playlists", "read", other))
}

func TestIPAllowed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		allowed []string
		ip      string
		want    bool
	}{
		{"empty list allows all", nil, "203.0.113.7", true},
		{"wildcard", []string{"*"}, "198.51.100.1", true},
		{"exact match", []string{"203.0.113.7"}, "203.0.113.7", true},
		{"exact mismatch", []string{"203.0.113.7"}, "203.0.113.8", false},
		{"cidr match", []string{"10.0.0.0/8"}, "10.20.30.40", true},
		{"cidr mismatch", []string{"10.0.0.0/8"}, "192.168.1.1", false},
		{"mixed list", []string{"192.168.1.1", "10.0.0.0/8"}, "10.1.2.3", true},
		{"invalid cidr entry skipped", []string{"10.0.0.0/99", "203.0.113.7"}, "203.0.113.7", true},
		{"unparsable ip never matches cidr", []string{"10.0.0.0/8"}, "not-an-ip", false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, apikey.IPAllowed(tc.allowed, tc.ip))
		})
	}
}
