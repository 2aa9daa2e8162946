package models

import (
	"strings"

	"github.com/ekaya-inc/ekaya-rx/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-rx/pkg/jsonutil"
)

// UnreadableSentinel is the error value the model returns when it cannot read the image.
const UnreadableSentinel = "UNREADABLE"

// Defaults applied to extracted drug lines on the way into storage.
const (
	UnknownDrugName = "Unknown"
	NotApplicable   = "N/A"
)

// Analysis is the structured result returned by the vision model.
type Analysis map[string]any

// IsUnreadable reports whether v is the {"error": "UNREADABLE"} sentinel.
func IsUnreadable(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	s, ok := m["error"].(string)
	return ok && strings.EqualFold(strings.TrimSpace(s), UnreadableSentinel)
}

// UnreadableMessage returns the model's explanation attached to the sentinel, if any.
func UnreadableMessage(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m["message"].(string)
	return s
}

// ValidateAnalysis checks the two structural guarantees persistence depends on:
// a string risk level and a sequence of extracted drugs.
func ValidateAnalysis(v any) (Analysis, error) {
	m, ok := v.(map[string]any)
	if !ok || m == nil {
		return nil, apperrors.New(apperrors.ErrInvalidAnalysis, "response is not an object")
	}
	raw, present := m["riskLevel"]
	if !present || raw == nil {
		return nil, apperrors.New(apperrors.ErrInvalidAnalysis, "missing risk level")
	}
	risk, ok := raw.(string)
	if !ok {
		return nil, apperrors.New(apperrors.ErrInvalidAnalysis, "risk level is not a string")
	}
	if strings.TrimSpace(risk) == "" {
		return nil, apperrors.New(apperrors.ErrInvalidAnalysis, "missing risk level")
	}
	if _, ok := m["extractedDrugs"].([]any); !ok {
		return nil, apperrors.New(apperrors.ErrInvalidAnalysis, "extractedDrugs is not a sequence")
	}
	return Analysis(m), nil
}

// RiskLevel returns the risk level as reported by the model.
func (a Analysis) RiskLevel() RiskLevel {
	s, _ := a["riskLevel"].(string)
	return RiskLevel(strings.TrimSpace(s))
}

// Summary returns the interaction summary or "".
func (a Analysis) Summary() string {
	return jsonutil.FlexibleString(a["summary"])
}

// Disclaimer returns the disclaimer text or "".
func (a Analysis) Disclaimer() string {
	return jsonutil.FlexibleString(a["disclaimer"])
}

// Recommendations returns the ordered recommendation list, never nil.
func (a Analysis) Recommendations() []string {
	items, _ := a["recommendations"].([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, jsonutil.FlexibleString(item))
	}
	return out
}

// Alternative returns the alternative prescription object verbatim, or nil
// when the model returned null or something that is not an object. No
// defaults are applied to it.
func (a Analysis) Alternative() AlternativePrescription {
	m, ok := a["alternativePrescription"].(map[string]any)
	if !ok {
		return nil
	}
	return AlternativePrescription(m)
}

// DrugLines returns one line per element of extractedDrugs with the
// Unknown / N/A defaults applied. Elements that are not objects still
// produce a line so the count always matches the analysis.
func (a Analysis) DrugLines() []DrugLine {
	items, _ := a["extractedDrugs"].([]any)
	out := make([]DrugLine, 0, len(items))
	for _, item := range items {
		out = append(out, drugLine(item))
	}
	return out
}

func drugLine(v any) DrugLine {
	m, _ := v.(map[string]any)
	return DrugLine{
		Name:      orDefault(jsonutil.FlexibleString(m["name"]), UnknownDrugName),
		Dosage:    orDefault(jsonutil.FlexibleString(m["dosage"]), NotApplicable),
		Frequency: orDefault(jsonutil.FlexibleString(m["frequency"]), NotApplicable),
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// Shape merges the analysis with the durable identifiers. The identifiers
// overwrite any same-named keys the model produced.
func (a Analysis) Shape(id, patientID string) PersistedPrescription {
	out := make(PersistedPrescription, len(a)+2)
	for k, v := range a {
		out[k] = v
	}
	out["id"] = id
	out["patientId"] = patientID
	return out
}
