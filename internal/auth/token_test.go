// ABOUTME: Tests for JWT minting and verification
// ABOUTME: Wrong secrets, expiry, and garbage tokens must all fail closed

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndVerify(t *testing.T) {
	a := New([]byte("test-secret"))

	token, err := a.Mint("user-1", time.Hour)
	require.NoError(t, err)

	userID, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestVerify_WrongSecret(t *testing.T) {
	token, err := New([]byte("secret-a")).Mint("user-1", time.Hour)
	require.NoError(t, err)

	_, err = New([]byte("secret-b")).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Expired(t *testing.T) {
	a := New([]byte("test-secret"))

	token, err := a.Mint("user-1", -time.Minute)
	require.NoError(t, err)

	_, err = a.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerify_Garbage(t *testing.T) {
	a := New([]byte("test-secret"))

	_, err := a.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
