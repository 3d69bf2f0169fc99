package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndAuthenticateJWT(t *testing.T) {
	require.NoError(t, Init())

	userID := uuid.NewString()
	token, err := CreateJWT(userID)
	require.NoError(t, err)

	sub, err := AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, userID, sub)
}

func TestAuthenticateJWTRejectsGarbage(t *testing.T) {
	require.NoError(t, Init())

	_, err := AuthenticateJWT("not-a-token")
	assert.Error(t, err)
}

func TestAuthenticateJWTRejectsForeignSignature(t *testing.T) {
	require.NoError(t, Init())
	token, err := CreateJWT(uuid.NewString())
	require.NoError(t, err)

	// Rotating the secret invalidates previously issued sessions.
	t.Setenv("AUTH_SECRET", "a-completely-different-secret")
	require.NoError(t, Init())

	_, err = AuthenticateJWT(token)
	assert.Error(t, err)
}

func TestTokenExpireTimeParsing(t *testing.T) {
	t.Setenv("TOKEN_EXPIRE_TIME", "24h")
	require.NoError(t, Init())
	assert.Equal(t, 86400, TokenExpireSec)

	t.Setenv("TOKEN_EXPIRE_TIME", "never")
	require.NoError(t, Init())
	assert.Equal(t, 0, TokenExpireSec)

	t.Setenv("TOKEN_EXPIRE_TIME", "soon")
	assert.Error(t, Init())
}
