package llm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/apperrors"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, resetAfter time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: threshold, ResetAfter: resetAfter})
	cb.now = clock.Now
	return cb, clock
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb, _ := newTestBreaker(5, 30*time.Second)

	if cb.State() != CircuitClosed {
		t.Errorf("expected initial state to be CircuitClosed, got %v", cb.State())
	}
	if cb.ConsecutiveFailures() != 0 {
		t.Errorf("expected initial consecutive failures to be 0, got %d", cb.ConsecutiveFailures())
	}
	if err := cb.Allow(); err != nil {
		t.Errorf("expected no error for closed circuit, got %v", err)
	}
}

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}

	if cb.State() != CircuitOpen {
		t.Errorf("expected state to be CircuitOpen after 3 failures, got %v", cb.State())
	}
	err := cb.Allow()
	if err == nil {
		t.Fatal("expected error for open circuit, got nil")
	}
	if !strings.Contains(err.Error(), "circuit breaker open") {
		t.Errorf("expected error to mention circuit breaker open, got: %v", err)
	}
}

func TestCircuitBreaker_HalfOpenAfterReset(t *testing.T) {
	cb, clock := newTestBreaker(1, 30*time.Second)
	cb.RecordFailure()
	require.Equal(t, CircuitOpen, cb.State())

	clock.Advance(31 * time.Second)

	require.NoError(t, cb.Allow(), "first request after reset window is the probe")
	assert.Equal(t, CircuitHalfOpen, cb.State())
	assert.Error(t, cb.Allow(), "only one probe may be in flight")

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	clock.Advance(31 * time.Second)
	require.NoError(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.ConsecutiveFailures())
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 1, cb.ConsecutiveFailures())
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	for i := 0; i < DefaultCircuitBreakerConfig().Threshold-1; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, CircuitClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestGuardedVisionClient_FailsFastWhenOpen(t *testing.T) {
	inner := &MockVisionClient{
		AnalyzeFunc: func(context.Context, string, string, string) (any, error) {
			return nil, NewError(ErrorTypeEndpoint, "server error", true, nil)
		},
	}
	cb, _ := newTestBreaker(2, time.Minute)
	guarded := NewGuardedVisionClient(inner, cb, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := guarded.Analyze(context.Background(), "p", "img", "image/png")
		require.ErrorIs(t, err, apperrors.ErrUpstream)
	}
	require.Equal(t, 2, inner.AnalyzeCalls())

	_, err := guarded.Analyze(context.Background(), "p", "img", "image/png")
	require.ErrorIs(t, err, apperrors.ErrUpstream)
	assert.Equal(t, ErrorTypeCircuit, GetErrorType(err))
	assert.Equal(t, 2, inner.AnalyzeCalls(), "open circuit must not reach the provider")
}

func TestGuardedVisionClient_MalformedDoesNotTrip(t *testing.T) {
	inner := &MockVisionClient{
		AnalyzeFunc: func(context.Context, string, string, string) (any, error) {
			return nil, NewMalformedError("reply is not valid JSON", nil)
		},
	}
	cb, _ := newTestBreaker(1, time.Minute)
	guarded := NewGuardedVisionClient(inner, cb, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := guarded.Analyze(context.Background(), "p", "img", "image/png")
		require.ErrorIs(t, err, apperrors.ErrMalformedResponse)
	}
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 3, inner.AnalyzeCalls())
}

func TestGuardedVisionClient_CanceledDoesNotTrip(t *testing.T) {
	inner := &MockVisionClient{
		AnalyzeFunc: func(ctx context.Context, _, _, _ string) (any, error) {
			return nil, ClassifyError(ctx.Err())
		},
	}
	cb, _ := newTestBreaker(1, time.Minute)
	guarded := NewGuardedVisionClient(inner, cb, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 3; i++ {
		_, err := guarded.Analyze(ctx, "p", "img", "image/png")
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.ConsecutiveFailures())
	assert.Equal(t, 3, inner.AnalyzeCalls())
}

func TestGuardedVisionClient_CanceledHalfOpenCallReopens(t *testing.T) {
	canceled := true
	inner := &MockVisionClient{
		AnalyzeFunc: func(context.Context, string, string, string) (any, error) {
			if canceled {
				return nil, ClassifyError(context.Canceled)
			}
			return map[string]any{"riskLevel": "Low", "extractedDrugs": []any{}}, nil
		},
	}
	cb, clock := newTestBreaker(1, time.Minute)
	cb.RecordFailure()
	require.Equal(t, CircuitOpen, cb.State())
	clock.Advance(2 * time.Minute)
	guarded := NewGuardedVisionClient(inner, cb, zap.NewNop())

	_, err := guarded.Analyze(context.Background(), "p", "img", "image/png")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, 1, cb.ConsecutiveFailures())

	canceled = false
	_, err = guarded.Analyze(context.Background(), "p", "img", "image/png")
	require.NoError(t, err)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestGuardedVisionClient_PassesResultThrough(t *testing.T) {
	want := map[string]any{"riskLevel": "Low", "extractedDrugs": []any{}}
	inner := NewMockVisionClient(want)
	guarded := NewGuardedVisionClient(inner, NewCircuitBreaker(DefaultCircuitBreakerConfig()), zap.NewNop())

	got, err := guarded.Analyze(context.Background(), "p", "img", "image/png")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "mock-model", guarded.GetModel())
}
