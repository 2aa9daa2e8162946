// Package llm provides clients for multimodal vision models.
package llm

import (
	"context"
)

// VisionClient sends one image with an instruction to a vision model and
// returns the decoded JSON reply as a generic value.
// Implementations are stateless and safe for concurrent use.
type VisionClient interface {
	// Analyze fails with apperrors.ErrConfiguration when no credential is set,
	// apperrors.ErrUpstream when the call fails or the reply carries no text,
	// and apperrors.ErrMalformedResponse when the text is not JSON.
	Analyze(ctx context.Context, instruction, imageBase64, mediaType string) (any, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// Ensure implementations satisfy VisionClient at compile time.
var (
	_ VisionClient = (*OpenAIVisionClient)(nil)
	_ VisionClient = (*AnthropicVisionClient)(nil)
	_ VisionClient = (*GuardedVisionClient)(nil)
	_ VisionClient = (*MockVisionClient)(nil)
)
