package auth_test

import (
	"testing"

	"github.com/ruangobrol/backend/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	tok, err := auth.NewToken("secret", 42, 60)
	require.NoError(t, err)

	claims, err := auth.ParseToken("secret", tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserId)
	assert.Equal(t, "ruangobrol", claims.Issuer)
}

func TestTokenWrongSecret(t *testing.T) {
	tok, err := auth.NewToken("secret", 42, 60)
	require.NoError(t, err)

	_, err = auth.ParseToken("other", tok)
	assert.Error(t, err)
}

func TestTokenExpired(t *testing.T) {
	tok, err := auth.NewToken("secret", 42, -1)
	require.NoError(t, err)

	_, err = auth.ParseToken("secret", tok)
	assert.Error(t, err)
}

func TestTokenGarbage(t *testing.T) {
	_, err := auth.ParseToken("secret", "not-a-token")
	assert.Error(t, err)
}
