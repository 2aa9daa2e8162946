package auth

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithClaims_RoundTrip(t *testing.T) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user_2abc"}}
	ctx := WithClaims(context.Background(), claims, "raw-token")

	got, ok := GetClaims(ctx)
	require.True(t, ok)
	assert.Same(t, claims, got)

	token, ok := GetToken(ctx)
	require.True(t, ok)
	assert.Equal(t, "raw-token", token)

	assert.Equal(t, "user_2abc", GetDoctorID(ctx))
}

func TestGetClaims_NotFound(t *testing.T) {
	_, ok := GetClaims(context.Background())
	assert.False(t, ok)

	_, ok = GetToken(context.Background())
	assert.False(t, ok)
}

func TestGetClaims_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), ClaimsKey, "not-claims")
	_, ok := GetClaims(ctx)
	assert.False(t, ok)
}

func TestGetDoctorID_Anonymous(t *testing.T) {
	assert.Empty(t, GetDoctorID(context.Background()))

	ctx := context.WithValue(context.Background(), ClaimsKey, (*Claims)(nil))
	assert.Empty(t, GetDoctorID(ctx))
}
