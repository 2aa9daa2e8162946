package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockJWKSClient is a mock implementation of JWKSClientInterface for testing.
type mockJWKSClient struct {
	claims *Claims
	err    error

	capturedToken string
}

func (m *mockJWKSClient) ValidateToken(tokenString string) (*Claims, error) {
	m.capturedToken = tokenString
	if m.err != nil {
		return nil, m.err
	}
	return m.claims, nil
}

func (m *mockJWKSClient) Close() {}

func TestAuthService_ValidateRequest_AuthHeader(t *testing.T) {
	jwks := &mockJWKSClient{claims: doctorClaims("user_2abc")}
	svc := NewAuthService(jwks, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
	req.Header.Set("Authorization", "Bearer header-token")

	claims, token, err := svc.ValidateRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "user_2abc", claims.Subject)
	assert.Equal(t, "header-token", token)
	assert.Equal(t, "header-token", jwks.capturedToken)
}

func TestAuthService_ValidateRequest_Cookie(t *testing.T) {
	jwks := &mockJWKSClient{claims: doctorClaims("user_2abc")}
	svc := NewAuthService(jwks, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "cookie-token"})

	_, token, err := svc.ValidateRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "cookie-token", token)
}

func TestAuthService_ValidateRequest_HeaderTakesPrecedence(t *testing.T) {
	jwks := &mockJWKSClient{claims: doctorClaims("user_2abc")}
	svc := NewAuthService(jwks, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "cookie-token"})

	_, token, err := svc.ValidateRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "header-token", token)
}

func TestAuthService_ValidateRequest_MissingAuth(t *testing.T) {
	svc := NewAuthService(&mockJWKSClient{}, zap.NewNop())

	_, _, err := svc.ValidateRequest(httptest.NewRequest(http.MethodGet, "/api/patients", nil))
	assert.ErrorIs(t, err, ErrMissingAuthorization)
}

func TestAuthService_ValidateRequest_InvalidAuthFormat(t *testing.T) {
	svc := NewAuthService(&mockJWKSClient{}, zap.NewNop())

	for _, header := range []string{"Basic dXNlcjpwYXNz", "Bearer", "Bearer a b", "bearer token"} {
		req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
		req.Header.Set("Authorization", header)

		_, _, err := svc.ValidateRequest(req)
		assert.ErrorIs(t, err, ErrInvalidAuthFormat, header)
	}
}

func TestAuthService_ValidateRequest_TokenValidationError(t *testing.T) {
	validationErr := errors.New("token expired")
	svc := NewAuthService(&mockJWKSClient{err: validationErr}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
	req.Header.Set("Authorization", "Bearer expired")

	_, _, err := svc.ValidateRequest(req)
	assert.ErrorIs(t, err, validationErr)
}

func TestAuthService_ValidateRequest_MissingSubject(t *testing.T) {
	svc := NewAuthService(&mockJWKSClient{claims: &Claims{}}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
	req.Header.Set("Authorization", "Bearer anonymous")

	_, _, err := svc.ValidateRequest(req)
	assert.ErrorIs(t, err, ErrMissingSubject)
}
