package logger_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/melodix/core/logger"
)

func TestErrorAttr(t *testing.T) {
	t.Parallel()

	attr := logger.Error(errors.New("boom"))
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, "boom", attr.Value.String())

	empty := logger.Error(nil)
	assert.True(t, empty.Equal(slog.Attr{}))
}

func TestEmptyAttrSkipsBlankValues(t *testing.T) {
	t.Parallel()

	assert.True(t, logger.UserID("").Equal(slog.Attr{}))
	assert.True(t, logger.RequestID("").Equal(slog.Attr{}))
	assert.True(t, logger.KeyID("").Equal(slog.Attr{}))
	assert.True(t, logger.IP("").Equal(slog.Attr{}))

	attr := logger.KeyID("a1b2c3d4")
	require.Equal(t, "key_id", attr.Key)
	assert.Equal(t, "a1b2c3d4", attr.Value.String())
}

func TestRequestAttrs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "method", logger.Method("GET").Key)
	assert.Equal(t, "path", logger.Path("/auth/login").Key)
	assert.Equal(t, int64(401), logger.Status(401).Value.Int64())
	assert.Equal(t, "auth_kind", logger.AuthKind("api_key").Key)
}
