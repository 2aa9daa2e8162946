package llm

import (
	"context"
	"sync"
)

// MockVisionClient is a configurable mock for testing vision functionality.
// Set AnalyzeFunc to control behavior in tests.
type MockVisionClient struct {
	// AnalyzeFunc is called when Analyze is invoked.
	// If nil, returns nil result and nil error.
	AnalyzeFunc func(ctx context.Context, instruction, imageBase64, mediaType string) (any, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	// Endpoint is returned by GetEndpoint. Defaults to "http://mock-endpoint".
	Endpoint string

	mu    sync.Mutex
	calls []MockAnalyzeCall
}

// MockAnalyzeCall records a call to Analyze.
type MockAnalyzeCall struct {
	Instruction string
	ImageBase64 string
	MediaType   string
}

// NewMockVisionClient returns a mock that always replies with result.
func NewMockVisionClient(result any) *MockVisionClient {
	return &MockVisionClient{
		AnalyzeFunc: func(context.Context, string, string, string) (any, error) {
			return result, nil
		},
	}
}

// Analyze implements VisionClient.
func (m *MockVisionClient) Analyze(ctx context.Context, instruction, imageBase64, mediaType string) (any, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockAnalyzeCall{
		Instruction: instruction,
		ImageBase64: imageBase64,
		MediaType:   mediaType,
	})
	m.mu.Unlock()

	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, instruction, imageBase64, mediaType)
	}
	return nil, nil
}

// AnalyzeCalls returns how many times Analyze was invoked.
func (m *MockVisionClient) AnalyzeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of the recorded calls.
func (m *MockVisionClient) Calls() []MockAnalyzeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockAnalyzeCall(nil), m.calls...)
}

// GetModel implements VisionClient.
func (m *MockVisionClient) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// GetEndpoint implements VisionClient.
func (m *MockVisionClient) GetEndpoint() string {
	if m.Endpoint == "" {
		return "http://mock-endpoint"
	}
	return m.Endpoint
}
