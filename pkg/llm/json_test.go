package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-rx/pkg/apperrors"
)

func TestExtractJSON_PlainObject(t *testing.T) {
	input := `{"riskLevel": "Low", "extractedDrugs": []}`
	result, err := ExtractJSON(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != input {
		t.Errorf("expected %q, got %q", input, result)
	}
}

func TestExtractJSON_WithThinkTags(t *testing.T) {
	input := `<think>
The handwriting is legible, two drugs listed.
</think>
{"riskLevel": "Moderate", "extractedDrugs": [{"name": "Aspirin"}]}`

	expected := `{"riskLevel": "Moderate", "extractedDrugs": [{"name": "Aspirin"}]}`
	result, err := ExtractJSON(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != expected {
		t.Errorf("expected %q, got %q", expected, result)
	}
}

func TestExtractJSON_MarkdownFence(t *testing.T) {
	input := "Here is the analysis:\n```json\n{\"error\": \"UNREADABLE\", \"message\": \"too blurry\"}\n```\n"

	result, err := ExtractJSON(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != `{"error": "UNREADABLE", "message": "too blurry"}` {
		t.Errorf("unexpected result %q", result)
	}
}

func TestExtractJSON_BracketsInStrings(t *testing.T) {
	input := `{"summary": "Take [with food] {not} on empty stomach"}`
	result, err := ExtractJSON(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != input {
		t.Errorf("expected %q, got %q", input, result)
	}
}

func TestExtractJSON_EscapedQuotesInStrings(t *testing.T) {
	input := `{"summary": "labelled \"PRN\" by prescriber"}`
	result, err := ExtractJSON(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != input {
		t.Errorf("expected %q, got %q", input, result)
	}
}

func TestExtractJSON_NoJSON(t *testing.T) {
	_, err := ExtractJSON("I cannot help with that.")
	if err == nil {
		t.Error("expected error for response without JSON")
	}
}

func TestExtractJSON_Truncated(t *testing.T) {
	_, err := ExtractJSON(`{"riskLevel": "High", "summary": "cut off`)
	if err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestDecodePayload(t *testing.T) {
	t.Run("object", func(t *testing.T) {
		v, err := decodePayload(`{"riskLevel":"High","extractedDrugs":[]}`)
		require.NoError(t, err)
		m, ok := v.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "High", m["riskLevel"])
	})

	t.Run("array is returned as-is", func(t *testing.T) {
		v, err := decodePayload(`[1, 2]`)
		require.NoError(t, err)
		assert.Equal(t, []any{float64(1), float64(2)}, v)
	})

	t.Run("fenced object", func(t *testing.T) {
		v, err := decodePayload("```json\n{\"riskLevel\":\"Low\"}\n```")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"riskLevel": "Low"}, v)
	})

	t.Run("blank payload is upstream", func(t *testing.T) {
		_, err := decodePayload("   ")
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrUpstream)
		assert.Equal(t, ErrorTypeEmpty, GetErrorType(err))
	})

	t.Run("prose is malformed", func(t *testing.T) {
		_, err := decodePayload("The prescription lists aspirin.")
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrMalformedResponse)
		assert.NotErrorIs(t, err, apperrors.ErrUpstream)
	})
}
