package models

import (
	"encoding/json"
	"strings"

	"github.com/ekaya-inc/ekaya-rx/pkg/apperrors"
)

// EncodeRecommendations serializes the recommendation list for its text column.
func EncodeRecommendations(recs []string) (string, error) {
	if recs == nil {
		recs = []string{}
	}
	b, err := json.Marshal(recs)
	if err != nil {
		return "", apperrors.Storage("encode recommendations", err)
	}
	return string(b), nil
}

// DecodeRecommendations parses a stored recommendation column. An empty
// column decodes to an empty list; anything that is not a JSON string array
// is reported as corrupt data.
func DecodeRecommendations(s string) ([]string, error) {
	if isBlankColumn(s) {
		return []string{}, nil
	}
	var recs []string
	if err := json.Unmarshal([]byte(s), &recs); err != nil {
		return nil, apperrors.Storage("corrupt recommendations column", err)
	}
	if recs == nil {
		recs = []string{}
	}
	return recs, nil
}

// EncodeAlternative serializes the alternative prescription. Nil encodes to
// nil so the column is stored as NULL.
func EncodeAlternative(alt AlternativePrescription) (*string, error) {
	if alt == nil {
		return nil, nil
	}
	b, err := json.Marshal(alt)
	if err != nil {
		return nil, apperrors.Storage("encode alternative prescription", err)
	}
	s := string(b)
	return &s, nil
}

// DecodeAlternative parses a stored alternative prescription column. Every
// key survives the round trip; a value that is not a JSON object is corrupt.
func DecodeAlternative(s *string) (AlternativePrescription, error) {
	if s == nil || isBlankColumn(*s) {
		return nil, nil
	}
	var alt AlternativePrescription
	if err := json.Unmarshal([]byte(*s), &alt); err != nil {
		return nil, apperrors.Storage("corrupt alternative prescription column", err)
	}
	return alt, nil
}

func isBlankColumn(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == "null"
}
