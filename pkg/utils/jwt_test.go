package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("secret", 42, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken("secret", token)
	require.NoError(t, err)

	id, err := claims.UserIDInt()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("secret", 42, time.Hour)
	require.NoError(t, err)

	_, err = ValidateToken("other", token)
	assert.Error(t, err)
}

func TestTokenRejectsExpired(t *testing.T) {
	token, err := GenerateToken("secret", 42, -time.Minute)
	require.NoError(t, err)

	_, err = ValidateToken("secret", token)
	assert.Error(t, err)
}
