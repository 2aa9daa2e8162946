package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockAuthService is a mock implementation of AuthService for testing.
type mockAuthService struct {
	claims      *Claims
	token       string
	validateErr error
}

func (m *mockAuthService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	if m.validateErr != nil {
		return nil, "", m.validateErr
	}
	return m.claims, m.token, nil
}

func doctorClaims(sub string) *Claims {
	return &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: sub}}
}

// captureDoctor records the doctor id seen by the wrapped handler.
func captureDoctor(called *bool, doctor *string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*called = true
		*doctor = GetDoctorID(r.Context())
		w.WriteHeader(http.StatusOK)
	}
}

func TestMiddleware_RequireAuth_Success(t *testing.T) {
	svc := &mockAuthService{claims: doctorClaims("user_2abc"), token: "tok"}
	m := NewMiddleware(svc, true, zap.NewNop())

	var called bool
	var doctor string
	rec := httptest.NewRecorder()
	m.Protect(captureDoctor(&called, &doctor))(rec, httptest.NewRequest(http.MethodGet, "/api/patients", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
	assert.Equal(t, "user_2abc", doctor)
}

func TestMiddleware_RequireAuth_Unauthorized(t *testing.T) {
	svc := &mockAuthService{validateErr: ErrMissingAuthorization}
	m := NewMiddleware(svc, true, zap.NewNop())

	var called bool
	var doctor string
	rec := httptest.NewRecorder()
	m.Protect(captureDoctor(&called, &doctor))(rec, httptest.NewRequest(http.MethodGet, "/api/patients", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "unauthorized", body["error"])
}

func TestMiddleware_OptionalAuth_Anonymous(t *testing.T) {
	svc := &mockAuthService{validateErr: ErrMissingAuthorization}
	m := NewMiddleware(svc, false, zap.NewNop())

	var called bool
	doctor := "unset"
	rec := httptest.NewRecorder()
	m.Protect(captureDoctor(&called, &doctor))(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
	assert.Empty(t, doctor)
}

func TestMiddleware_OptionalAuth_AttachesClaims(t *testing.T) {
	svc := &mockAuthService{claims: doctorClaims("user_9xyz"), token: "tok"}
	m := NewMiddleware(svc, false, zap.NewNop())

	var called bool
	var doctor string
	rec := httptest.NewRecorder()
	m.Protect(captureDoctor(&called, &doctor))(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	assert.True(t, called)
	assert.Equal(t, "user_9xyz", doctor)
}
