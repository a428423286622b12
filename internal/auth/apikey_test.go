package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAPIKey_Success(t *testing.T) {
	hash, err := HashAPIKey("a-sufficiently-long-api-key")

	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "a-sufficiently-long-api-key", hash)
}

func TestHashAPIKey_TooShort(t *testing.T) {
	hash, err := HashAPIKey("short")

	assert.ErrorIs(t, err, ErrAPIKeyTooShort)
	assert.Empty(t, hash)
}

func TestCheckAPIKey(t *testing.T) {
	key := "a-sufficiently-long-api-key"
	hash, err := HashAPIKey(key)
	require.NoError(t, err)

	assert.True(t, CheckAPIKey(key, hash))
	assert.False(t, CheckAPIKey("a-different-api-key-entirely", hash))
	assert.False(t, CheckAPIKey(key, "not-a-bcrypt-hash"))
}

func TestHashAPIKey_DistinctHashes(t *testing.T) {
	// bcrypt salts, so hashing the same key twice must not collide.
	first, err := HashAPIKey("a-sufficiently-long-api-key")
	require.NoError(t, err)
	second, err := HashAPIKey("a-sufficiently-long-api-key")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}
