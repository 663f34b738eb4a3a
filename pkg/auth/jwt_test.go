package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/models"
)

func TestMintVerifyRoundTrip(t *testing.T) {
	svc := NewService("test-secret", time.Hour)
	want := Identity{UserID: "user-1", Username: "jsmith", Role: models.RoleEngineer}

	raw, err := svc.Mint(want)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	got, err := svc.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.False(t, got.IsAdmin())
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	raw, err := NewService("secret-a", time.Hour).Mint(Identity{UserID: "u", Role: models.RoleAdmin})
	require.NoError(t, err)

	_, err = NewService("secret-b", time.Hour).Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc := NewService("test-secret", -time.Minute)
	raw, err := svc.Mint(Identity{UserID: "u", Role: models.RoleEngineer})
	require.NoError(t, err)

	_, err = svc.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := NewService("test-secret", time.Hour)
	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		_, err := svc.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken, raw)
	}
}

func TestVerifyRejectsMissingRole(t *testing.T) {
	svc := NewService("test-secret", time.Hour)
	raw, err := svc.Mint(Identity{UserID: "u"})
	require.NoError(t, err)

	_, err = svc.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIsAdmin(t *testing.T) {
	assert.True(t, Identity{Role: models.RoleAdmin}.IsAdmin())
	assert.False(t, Identity{Role: models.RoleEngineer}.IsAdmin())
}
