package models

import "time"

// RiskLevel is the drug-interaction severity assigned by the analysis.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskModerate RiskLevel = "Moderate"
	RiskHigh     RiskLevel = "High"
)

// Known reports whether r is one of the three defined levels.
func (r RiskLevel) Known() bool {
	switch r {
	case RiskLow, RiskModerate, RiskHigh:
		return true
	}
	return false
}

// RequiresAlternative reports whether the prompt asks the model for an
// alternative prescription at this level.
func (r RiskLevel) RequiresAlternative() bool {
	return r == RiskModerate || r == RiskHigh
}

// Prescription is one analyzed prescription event for a patient.
type Prescription struct {
	ID                      string                  `json:"id"`
	PatientID               string                  `json:"patientId"`
	DoctorID                *string                 `json:"doctorId"`
	RiskLevel               RiskLevel               `json:"riskLevel"`
	Summary                 string                  `json:"summary"`
	Recommendations         []string                `json:"recommendations"`
	AlternativePrescription AlternativePrescription `json:"alternativePrescription"`
	Disclaimer              string                  `json:"disclaimer"`
	CreatedAt               time.Time               `json:"createdAt"`
	ExtractedDrugs          []PrescribedDrug        `json:"extractedDrugs"`
}

// PrescribedDrug is one medication line item of a prescription.
type PrescribedDrug struct {
	ID             string `json:"id"`
	PrescriptionID string `json:"prescriptionId"`
	LineNumber     int    `json:"-"`
	Name           string `json:"name"`
	Dosage         string `json:"dosage"`
	Frequency      string `json:"frequency"`
}

// DrugLine is a medication as described by the analysis.
type DrugLine struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
}

// AlternativePrescription is the suggested replacement regimen exactly as the
// model produced it. Nil serializes as null.
type AlternativePrescription map[string]any

// Stats holds the dashboard counters.
type Stats struct {
	TotalPatients      int64 `json:"totalPatients"`
	PrescriptionsToday int64 `json:"prescriptionsToday"`
	HighRiskAlerts     int64 `json:"highRiskAlerts"`
}

// PersistedPrescription is the ingest response: the full analysis result
// merged with the durable identifiers.
type PersistedPrescription map[string]any

// ID returns the prescription identifier.
func (p PersistedPrescription) ID() string {
	id, _ := p["id"].(string)
	return id
}

// PatientID returns the owning patient identifier.
func (p PersistedPrescription) PatientID() string {
	id, _ := p["patientId"].(string)
	return id
}
