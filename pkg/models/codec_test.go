package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-rx/pkg/apperrors"
)

func TestRecommendations_RoundTrip(t *testing.T) {
	recs := []string{"Monitor INR", "Avoid NSAIDs", `Quote "this"`}

	encoded, err := EncodeRecommendations(recs)
	require.NoError(t, err)

	decoded, err := DecodeRecommendations(encoded)
	require.NoError(t, err)
	assert.Equal(t, recs, decoded)
}

func TestRecommendations_Empty(t *testing.T) {
	encoded, err := EncodeRecommendations(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", encoded)

	for _, col := range []string{"", "null", "  "} {
		decoded, err := DecodeRecommendations(col)
		require.NoError(t, err)
		assert.Equal(t, []string{}, decoded)
	}
}

func TestDecodeRecommendations_Corrupt(t *testing.T) {
	_, err := DecodeRecommendations(`["unterminated`)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStorage)

	_, err = DecodeRecommendations(`{"not":"a list"}`)
	assert.ErrorIs(t, err, apperrors.ErrStorage)
}

func TestAlternative_RoundTrip(t *testing.T) {
	alt := AlternativePrescription{
		"summary": "Replace ibuprofen with paracetamol",
		"reason":  "renal function",
		"drugs":   []any{map[string]any{"name": "Paracetamol", "dosage": "500mg"}},
	}

	encoded, err := EncodeAlternative(alt)
	require.NoError(t, err)
	require.NotNil(t, encoded)
	assert.JSONEq(t, `{"summary":"Replace ibuprofen with paracetamol","reason":"renal function","drugs":[{"name":"Paracetamol","dosage":"500mg"}]}`, *encoded)

	decoded, err := DecodeAlternative(encoded)
	require.NoError(t, err)
	assert.Equal(t, alt, decoded)
}

func TestAlternative_Null(t *testing.T) {
	encoded, err := EncodeAlternative(nil)
	require.NoError(t, err)
	assert.Nil(t, encoded)

	decoded, err := DecodeAlternative(nil)
	require.NoError(t, err)
	assert.Nil(t, decoded)

	null := "null"
	decoded, err = DecodeAlternative(&null)
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestDecodeAlternative_Corrupt(t *testing.T) {
	bad := `{"summary": 12`
	_, err := DecodeAlternative(&bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStorage)
	assert.True(t, strings.Contains(err.Error(), "alternative prescription"))

	list := `[{"summary": "not an object"}]`
	_, err = DecodeAlternative(&list)
	assert.ErrorIs(t, err, apperrors.ErrStorage)
}

func TestNewID(t *testing.T) {
	a := NewID(PrescriptionIDPrefix)
	b := NewID(PrescriptionIDPrefix)

	assert.True(t, strings.HasPrefix(a, "pres_"))
	assert.NotEqual(t, a, b)
}

func TestNewPatient_MissingFields(t *testing.T) {
	assert.Equal(t, []string{"fullName", "dob"}, NewPatient{}.MissingFields())
	assert.Equal(t, []string{"dob"}, NewPatient{FullName: "Ada Lovelace"}.MissingFields())
	assert.Empty(t, NewPatient{FullName: "Ada Lovelace", DOB: "1815-12-10"}.MissingFields())
}
