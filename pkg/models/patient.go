package models

import (
	"strings"
	"time"
)

// Patient is one person under care.
type Patient struct {
	ID               string    `json:"id"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	FullName         string    `json:"fullName"`
	DOB              string    `json:"dob"`
	Gender           string    `json:"gender"`
	BloodType        string    `json:"bloodType"`
	ContactNumber    string    `json:"contactNumber"`
	EmergencyContact string    `json:"emergencyContact"`
	Allergies        string    `json:"allergies"`
	MedicalHistory   string    `json:"medicalHistory"`
}

// NewPatient is the input for creating a patient.
// DOB is kept as an opaque string and never parsed.
type NewPatient struct {
	FullName         string `json:"fullName"`
	DOB              string `json:"dob"`
	Gender           string `json:"gender"`
	BloodType        string `json:"bloodType"`
	ContactNumber    string `json:"contactNumber"`
	EmergencyContact string `json:"emergencyContact"`
	Allergies        string `json:"allergies"`
	MedicalHistory   string `json:"medicalHistory"`
}

// MissingFields returns the names of required fields that are blank.
func (p NewPatient) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(p.FullName) == "" {
		missing = append(missing, "fullName")
	}
	if strings.TrimSpace(p.DOB) == "" {
		missing = append(missing, "dob")
	}
	return missing
}

// Build assigns identity and timestamps to the input.
func (p NewPatient) Build(id string, now time.Time) *Patient {
	return &Patient{
		ID:               id,
		CreatedAt:        now,
		UpdatedAt:        now,
		FullName:         strings.TrimSpace(p.FullName),
		DOB:              strings.TrimSpace(p.DOB),
		Gender:           p.Gender,
		BloodType:        p.BloodType,
		ContactNumber:    p.ContactNumber,
		EmergencyContact: p.EmergencyContact,
		Allergies:        p.Allergies,
		MedicalHistory:   p.MedicalHistory,
	}
}
