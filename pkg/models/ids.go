package models

import "github.com/google/uuid"

// Identifier prefixes.
const (
	PatientIDPrefix      = "pat"
	PrescriptionIDPrefix = "pres"
	DrugIDPrefix         = "drug"
)

// NewID returns a fresh identifier such as "pres_3f1c...".
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
