package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	SetSecret("test-secret")

	token, err := GenerateToken("alice", []string{"Sales User"}, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, []string{"Sales User"}, claims.Roles)
}

func TestValidateTokenRejects(t *testing.T) {
	SetSecret("test-secret")

	expired, err := GenerateToken("alice", nil, -time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken(expired)
	assert.Error(t, err)

	SetSecret("other")
	valid, err := GenerateToken("bob", nil, time.Hour)
	require.NoError(t, err)
	SetSecret("test-secret")
	_, err = ValidateToken(valid)
	assert.Error(t, err)

	_, err = ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "sales-team-2026", Slugify("  Sales Team / 2026 "))
	assert.Equal(t, "", Slugify("!!!"))
}
