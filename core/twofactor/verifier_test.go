package twofactor_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/melodix/core/twofactor"
	"github.com/dmitrymomot/melodix/core/user"
	"github.com/dmitrymomot/melodix/pkg/secrets"
	"github.com/dmitrymomot/melodix/pkg/totp"
)

func setupUser(t *testing.T, users *user.MemoryStore, encKey []byte) (uuid.UUID, string) {
	t.Helper()

	ctx := context.Background()
	id := uuid.New()

	secret, err := totp.GenerateSecret()
	require.NoError(t, err)
	encrypted, err := totp.EncryptSecret(secret, encKey)
	require.NoError(t, err)

	u := &user.User{ID: id, Username: "alice", Email: "alice@example.com"}
	cred := &user.Credential{UserID: id, PasswordHash: "x", TOTPSecretEncrypted: encrypted}
	require.NoError(t, users.Create(ctx, u, cred))
	return id, secret
}

func TestVerifyTOTP(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	encKey, err := secrets.GenerateKey()
	require.NoError(t, err)

	users := user.NewMemoryStore()
	profiles := twofactor.NewMemoryStore()
	userID, secret := setupUser(t, users, encKey)

	v := twofactor.NewVerifier(profiles, users, encKey)

	code, err := totp.CodeAt(secret, time.Now())
	require.NoError(t, err)

	method, err := v.Verify(ctx, userID, twofactor.MethodTOTP, code)
	require.NoError(t, err)
	assert.Equal(t, twofactor.MethodTOTP, method)

	_, err = v.Verify(ctx, userID, twofactor.MethodTOTP, "000000")
	assert.ErrorIs(t, err, twofactor.ErrInvalidCode)
}

func TestVerifyBackupCodeSingleUse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	encKey, err := secrets.GenerateKey()
	require.NoError(t, err)

	users := user.NewMemoryStore()
	profiles := twofactor.NewMemoryStore()
	userID, _ := setupUser(t, users, encKey)

	require.NoError(t, profiles.ReplaceBackupCodes(ctx, userID, []string{"AAAA-BBBB", "CCCC-DDDD"}))

	v := twofactor.NewVerifier(profiles, users, encKey)

	method, err := v.Verify(ctx, userID, twofactor.MethodBackupCode, "aaaa-bbbb")
	require.NoError(t, err, "lowercase input is accepted")
	assert.Equal(t, twofactor.MethodBackupCode, method)

	// Second use of the same code must fail.
	_, err = v.Verify(ctx, userID, twofactor.MethodBackupCode, "AAAA-BBBB")
	assert.ErrorIs(t, err, twofactor.ErrInvalidCode)

	// The other code is still live.
	_, err = v.Verify(ctx, userID, twofactor.MethodBackupCode, "CCCC-DDDD")
	assert.NoError(t, err)
}

func TestVerifyTempCodeExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	encKey, err := secrets.GenerateKey()
	require.NoError(t, err)

	users := user.NewMemoryStore()
	profiles := twofactor.NewMemoryStore()
	userID, _ := setupUser(t, users, encKey)

	require.NoError(t, profiles.AddTempCode(ctx, userID, twofactor.TempCode{
		Code:      "11112222",
		ExpiresAt: time.Now().Add(-time.Second),
	}))
	require.NoError(t, profiles.AddTempCode(ctx, userID, twofactor.TempCode{
		Code:      "33334444",
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}))

	v := twofactor.NewVerifier(profiles, users, encKey)

	// Expired-but-unused behaves exactly like not-found.
	_, err = v.Verify(ctx, userID, twofactor.MethodTempCode, "11112222")
	assert.ErrorIs(t, err, twofactor.ErrInvalidCode)

	method, err := v.Verify(ctx, userID, twofactor.MethodTempCode, "33334444")
	require.NoError(t, err)
	assert.Equal(t, twofactor.MethodTempCode, method)
}

func TestVerifyMethodFallback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	encKey, err := secrets.GenerateKey()
	require.NoError(t, err)

	users := user.NewMemoryStore()
	profiles := twofactor.NewMemoryStore()
	userID, _ := setupUser(t, users, encKey)

	require.NoError(t, profiles.ReplaceBackupCodes(ctx, userID, []string{"EEEE-FFFF"}))

	v := twofactor.NewVerifier(profiles, users, encKey)

	method, err := v.Verify(ctx, userID, "", "EEEE-FFFF")
	require.NoError(t, err)
	assert.Equal(t, twofactor.MethodBackupCode, method)

	_, err = v.Verify(ctx, userID, "", "")
	assert.ErrorIs(t, err, twofactor.ErrInvalidCode)
}

func TestConcurrentBackupCodeConsumption(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	profiles := twofactor.NewMemoryStore()
	userID := uuid.New()

	require.NoError(t, profiles.ReplaceBackupCodes(ctx, userID, []string{"RACE-CODE"}))

	const workers = 50
	var successes atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if err := profiles.ConsumeBackupCode(ctx, userID, "RACE-CODE", time.Now()); err == nil {
				successes.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), successes.Load(), "a backup code is usable exactly once under concurrency")
}

func TestAvailableMethods(t *testing.T) {
	t.Parallel()

	now := time.Now()
	p := twofactor.Profile{
		BackupCodes: []twofactor.BackupCode{{Code: "A", Used: true}, {Code: "B"}},
		TempCodes: []twofactor.TempCode{
			{Code: "1", ExpiresAt: now.Add(-time.Minute)},
			{Code: "2", ExpiresAt: now.Add(time.Minute), Used: true},
		},
	}

	methods := p.AvailableMethods(true, now)
	assert.Equal(t, []twofactor.Method{twofactor.MethodTOTP, twofactor.MethodBackupCode}, methods)

	methods = p.AvailableMethods(false, now)
	assert.Equal(t, []twofactor.Method{twofactor.MethodBackupCode}, methods)
}

// Clients match on these exact strings; they are part of the wire contract.
func TestMethodWireValues(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "totp", string(twofactor.MethodTOTP))
	assert.Equal(t, "backup", string(twofactor.MethodBackupCode))
	assert.Equal(t, "temp", string(twofactor.MethodTempCode))

	p := twofactor.Profile{
		BackupCodes: []twofactor.BackupCode{{Code: "B"}},
		TempCodes:   []twofactor.TempCode{{Code: "1", ExpiresAt: time.Now().Add(time.Minute)}},
	}
	assert.Contains(t, p.AvailableMethods(true, time.Now()), twofactor.Method("backup"))
	assert.Contains(t, p.AvailableMethods(true, time.Now()), twofactor.Method("temp"))
}
