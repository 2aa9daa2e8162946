package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := Wrap(ErrUpstream, "vision call failed", cause)

	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrStorage)
	assert.Equal(t, "upstream error: vision call failed: connection reset by peer", err.Error())
}

func TestWrap_DoesNotStackKinds(t *testing.T) {
	inner := NotFound("patient", "pat_1")
	err := Wrap(ErrStorage, "lookup", inner)

	assert.Same(t, inner, err)
	assert.Equal(t, ErrNotFound, KindOf(err))
}

func TestWrap_NilCause(t *testing.T) {
	err := Wrap(ErrInvalidAnalysis, "missing risk level", nil)

	assert.ErrorIs(t, err, ErrInvalidAnalysis)
	assert.Equal(t, "invalid analysis response: missing risk level", err.Error())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"plain error", errors.New("boom"), nil},
		{"kind directly", ErrUnreadableImage, ErrUnreadableImage},
		{"wrapped with fmt", fmt.Errorf("ingest: %w", New(ErrValidation, "fullName is required")), ErrValidation},
		{"storage helper", Storage("insert prescription", errors.New("deadlock")), ErrStorage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, `patient "pat_9"`, Message(NotFound("patient", "pat_9")))
	assert.Equal(t, "boom", Message(errors.New("boom")))
	assert.Equal(t, "", Message(nil))
}

func TestCode(t *testing.T) {
	assert.Equal(t, "not_found", Code(NotFound("patient", "pat_1")))
	assert.Equal(t, "unreadable_image", Code(New(ErrUnreadableImage, "blurry")))
	assert.Equal(t, "storage_error", Code(fmt.Errorf("outer: %w", Storage("insert", errors.New("boom")))))
	assert.Equal(t, "internal_error", Code(errors.New("plain")))
	assert.Equal(t, "internal_error", Code(nil))
}
