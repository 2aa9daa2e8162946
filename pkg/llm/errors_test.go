package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-rx/pkg/apperrors"
)

// TestError_Error_WithStatusCodeAndModel tests Error.Error() includes status code, model, and endpoint
func TestError_Error_WithStatusCodeAndModel(t *testing.T) {
	err := &Error{
		Type:       ErrorTypeEndpoint,
		Message:    "server error",
		StatusCode: 503,
		Model:      "gemini-2.5-pro",
		Endpoint:   "https://generativelanguage.googleapis.com/v1beta/openai",
	}

	result := err.Error()
	if !strings.Contains(result, "HTTP 503") {
		t.Errorf("expected error message to contain 'HTTP 503', got: %s", result)
	}
	if !strings.Contains(result, "model=gemini-2.5-pro") {
		t.Errorf("expected error message to contain model, got: %s", result)
	}
	// Endpoint is redacted to host only
	if !strings.Contains(result, "endpoint=generativelanguage.googleapis.com") {
		t.Errorf("expected error message to contain endpoint host, got: %s", result)
	}
	if strings.Contains(result, "/v1beta") {
		t.Errorf("endpoint should be redacted to host only, got: %s", result)
	}
}

// TestError_Error_MinimalContext tests Error.Error() without optional fields
func TestError_Error_MinimalContext(t *testing.T) {
	err := &Error{
		Type:    ErrorTypeAuth,
		Message: "authentication failed",
	}

	result := err.Error()
	expected := "auth authentication failed"
	if result != expected {
		t.Errorf("expected %q, got %q", expected, result)
	}
}

func TestError_Kinds(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	upstream := NewError(ErrorTypeEndpoint, "connection failed", true, cause)
	assert.ErrorIs(t, upstream, apperrors.ErrUpstream)
	assert.ErrorIs(t, upstream, cause)
	assert.Equal(t, apperrors.ErrUpstream, apperrors.KindOf(upstream))

	config := NewConfigError("vision API key is not configured")
	assert.ErrorIs(t, config, apperrors.ErrConfiguration)
	assert.NotErrorIs(t, config, apperrors.ErrUpstream)

	malformed := NewMalformedError("reply is not valid JSON", cause)
	assert.ErrorIs(t, malformed, apperrors.ErrMalformedResponse)
	assert.NotErrorIs(t, malformed, apperrors.ErrUpstream)

	// A zero-value kind defaults to upstream
	assert.ErrorIs(t, &Error{Type: ErrorTypeUnknown}, apperrors.ErrUpstream)
}

// TestClassifyError_ExtractsStatusCode tests ClassifyError extracts status codes
func TestClassifyError_ExtractsStatusCode(t *testing.T) {
	tests := []struct {
		name               string
		inputError         error
		expectedStatusCode int
		expectedType       ErrorType
		retryable          bool
	}{
		{
			name:               "503 service unavailable",
			inputError:         errors.New("HTTP 503 Service Unavailable"),
			expectedStatusCode: 503,
			expectedType:       ErrorTypeEndpoint,
			retryable:          true,
		},
		{
			name:               "429 rate limit",
			inputError:         errors.New("HTTP 429 Too Many Requests"),
			expectedStatusCode: 429,
			expectedType:       ErrorTypeRateLimited,
			retryable:          true,
		},
		{
			name:               "401 unauthorized",
			inputError:         errors.New("HTTP 401 Unauthorized"),
			expectedStatusCode: 401,
			expectedType:       ErrorTypeAuth,
		},
		{
			name:               "404 not found",
			inputError:         errors.New("HTTP 404 Not Found"),
			expectedStatusCode: 404,
			expectedType:       ErrorTypeEndpoint,
		},
		{
			name:         "anthropic authentication error",
			inputError:   errors.New("anthropic api error type: authentication_error, message: invalid x-api-key"),
			expectedType: ErrorTypeAuth,
		},
		{
			name:         "model does not exist",
			inputError:   errors.New("The model `gemini-9` does not exist"),
			expectedType: ErrorTypeModel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ClassifyError(tt.inputError)
			if result.StatusCode != tt.expectedStatusCode {
				t.Errorf("expected status code %d, got %d", tt.expectedStatusCode, result.StatusCode)
			}
			if result.Type != tt.expectedType {
				t.Errorf("expected type %s, got %s", tt.expectedType, result.Type)
			}
			if result.IsRetryable() != tt.retryable {
				t.Errorf("expected retryable=%v, got %v", tt.retryable, result.IsRetryable())
			}
			if !errors.Is(result, apperrors.ErrUpstream) {
				t.Errorf("classified errors must be upstream errors")
			}
		})
	}
}

func TestClassifyError_DeadlineExceeded(t *testing.T) {
	err := fmt.Errorf("post chat/completions: %w", context.DeadlineExceeded)
	result := ClassifyError(err)

	assert.Equal(t, ErrorTypeTimeout, result.Type)
	assert.ErrorIs(t, result, context.DeadlineExceeded)
	assert.ErrorIs(t, result, apperrors.ErrUpstream)
}

func TestClassifyError_PassesThroughStructured(t *testing.T) {
	original := NewMalformedError("reply is not valid JSON", nil)
	assert.Same(t, original, ClassifyError(fmt.Errorf("wrapped: %w", original)))
	assert.Nil(t, ClassifyError(nil))
}
