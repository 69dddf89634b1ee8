package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fuel-engine/auth"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := auth.NewTokenIssuer("test-secret")

	token, err := issuer.Issue("user-1", "ivanov", "role-driver", "mobile")
	require.NoError(t, err)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "ivanov", claims.Login)
	assert.Equal(t, "role-driver", claims.RoleID)
	assert.Equal(t, "mobile", claims.Client)
}

func TestParse_RejectsWrongSecret(t *testing.T) {
	token, err := auth.NewTokenIssuer("secret-a").Issue("user-1", "ivanov", "r", "")
	require.NoError(t, err)

	_, err = auth.NewTokenIssuer("secret-b").Parse(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParse_RejectsExpiredToken(t *testing.T) {
	issuer := auth.NewTokenIssuer("test-secret")
	issuer.TTL = time.Nanosecond

	token, err := issuer.Issue("user-1", "ivanov", "r", "")
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParse_RejectsGarbage(t *testing.T) {
	_, err := auth.NewTokenIssuer("test-secret").Parse("not.a.token")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.True(t, auth.CheckPassword(hash, "correct horse"))
	assert.False(t, auth.CheckPassword(hash, "wrong horse"))
	assert.False(t, auth.CheckPassword("", "anything"))
}
