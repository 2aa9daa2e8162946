package testhelpers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-rx/pkg/adapters/storage"
	"github.com/ekaya-inc/ekaya-rx/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-rx/pkg/models"
)

// StoreFactory returns an empty, migrated store. The suite closes it.
type StoreFactory func(t *testing.T) storage.Store

// BaseTime is the fixed clock used by fixtures. Millisecond precision keeps
// round trips exact on every engine.
var BaseTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// NewTestPatient builds a patient created offset after BaseTime.
func NewTestPatient(name string, offset time.Duration) *models.Patient {
	return models.NewPatient{
		FullName:       name,
		DOB:            "1980-05-17",
		Gender:         "Female",
		BloodType:      "O+",
		ContactNumber:  "555-0100",
		Allergies:      "Penicillin",
		MedicalHistory: "Hypertension",
	}.Build(models.NewID(models.PatientIDPrefix), BaseTime.Add(offset))
}

// NewTestPrescription builds a prescription with an alternative regimen.
func NewTestPrescription(patientID string, risk models.RiskLevel, createdAt time.Time) *models.Prescription {
	doctor := "doc_test"
	return &models.Prescription{
		ID:              models.NewID(models.PrescriptionIDPrefix),
		PatientID:       patientID,
		DoctorID:        &doctor,
		RiskLevel:       risk,
		Summary:         "Concurrent anticoagulant and NSAID use.",
		Recommendations: []string{"Monitor INR weekly", "Avoid ibuprofen"},
		AlternativePrescription: models.AlternativePrescription{
			"summary": "Replace ibuprofen with acetaminophen.",
			"reason":  "Avoids NSAID bleeding risk with warfarin.",
			"drugs": []any{
				map[string]any{"name": "Acetaminophen", "dosage": "500mg", "frequency": "every 6 hours"},
			},
		},
		Disclaimer: "For decision support only.",
		CreatedAt:  createdAt,
	}
}

// NewTestDrug builds the n-th drug line of a prescription.
func NewTestDrug(prescriptionID, name string, line int) *models.PrescribedDrug {
	return &models.PrescribedDrug{
		ID:             models.NewID(models.DrugIDPrefix),
		PrescriptionID: prescriptionID,
		LineNumber:     line,
		Name:           name,
		Dosage:         "5mg",
		Frequency:      "once daily",
	}
}

// RunStoreSuite exercises the storage.Store contract. Every engine runs it.
func RunStoreSuite(t *testing.T, open StoreFactory) {
	newStore := func(t *testing.T) storage.Store {
		t.Helper()
		s := open(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("PatientRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		p := NewTestPatient("Ada Quinn", 0)
		require.NoError(t, s.InsertPatient(ctx, p))

		got, err := s.GetPatient(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.FullName, got.FullName)
		assert.Equal(t, p.DOB, got.DOB)
		assert.Equal(t, p.Allergies, got.Allergies)
		assert.True(t, p.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", got.CreatedAt, p.CreatedAt)

		exists, err := s.PatientExists(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("MissingPatient", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetPatient(ctx, "pat_missing")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)

		exists, err := s.PatientExists(ctx, "pat_missing")
		require.NoError(t, err)
		assert.False(t, exists)

		assert.ErrorIs(t, s.DeletePatient(ctx, "pat_missing"), apperrors.ErrNotFound)
		assert.ErrorIs(t, s.DeletePrescription(ctx, "pres_missing"), apperrors.ErrNotFound)
	})

	t.Run("ListPatientsNewestFirst", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		older := NewTestPatient("Older", 0)
		newer := NewTestPatient("Newer", time.Hour)
		require.NoError(t, s.InsertPatient(ctx, older))
		require.NoError(t, s.InsertPatient(ctx, newer))

		list, err := s.ListPatients(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer.ID, list[0].ID)
		assert.Equal(t, older.ID, list[1].ID)
	})

	t.Run("EmptyCollections", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		list, err := s.ListPatients(ctx)
		require.NoError(t, err)
		assert.NotNil(t, list)
		assert.Empty(t, list)

		history, err := s.ListPrescriptionsByPatient(ctx, "pat_nobody")
		require.NoError(t, err)
		assert.NotNil(t, history)
		assert.Empty(t, history)

		n, err := s.CountPatients(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("PrescriptionRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		patient := NewTestPatient("Ben Ortiz", 0)
		require.NoError(t, s.InsertPatient(ctx, patient))

		withAlt := NewTestPrescription(patient.ID, models.RiskHigh, BaseTime.Add(time.Minute))
		bare := NewTestPrescription(patient.ID, models.RiskLow, BaseTime.Add(2*time.Minute))
		bare.DoctorID = nil
		bare.AlternativePrescription = nil
		bare.Recommendations = nil
		require.NoError(t, s.InsertPrescription(ctx, withAlt))
		require.NoError(t, s.InsertPrescription(ctx, bare))

		// Inserted out of order to prove line order, not insertion order, is returned.
		require.NoError(t, s.InsertDrug(ctx, NewTestDrug(withAlt.ID, "Ibuprofen", 1)))
		require.NoError(t, s.InsertDrug(ctx, NewTestDrug(withAlt.ID, "Warfarin", 0)))

		history, err := s.ListPrescriptionsByPatient(ctx, patient.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)

		first, second := history[0], history[1]
		assert.Equal(t, bare.ID, first.ID, "newest first")
		assert.Nil(t, first.DoctorID)
		assert.Nil(t, first.AlternativePrescription)
		assert.Equal(t, []string{}, first.Recommendations)
		assert.Empty(t, first.ExtractedDrugs)

		assert.Equal(t, withAlt.ID, second.ID)
		require.NotNil(t, second.DoctorID)
		assert.Equal(t, "doc_test", *second.DoctorID)
		assert.Equal(t, models.RiskHigh, second.RiskLevel)
		assert.Equal(t, withAlt.Recommendations, second.Recommendations)
		assert.Equal(t, withAlt.AlternativePrescription, second.AlternativePrescription)
		assert.Equal(t, withAlt.Disclaimer, second.Disclaimer)
		assert.True(t, withAlt.CreatedAt.Equal(second.CreatedAt))
		require.Len(t, second.ExtractedDrugs, 2)
		assert.Equal(t, "Warfarin", second.ExtractedDrugs[0].Name)
		assert.Equal(t, "Ibuprofen", second.ExtractedDrugs[1].Name)
		assert.Equal(t, withAlt.ID, second.ExtractedDrugs[0].PrescriptionID)
	})

	t.Run("ForeignKeys", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		err := s.InsertPrescription(ctx, NewTestPrescription("pat_ghost", models.RiskLow, BaseTime))
		assert.ErrorIs(t, err, apperrors.ErrStorage)

		err = s.InsertDrug(ctx, NewTestDrug("pres_ghost", "Aspirin", 0))
		assert.ErrorIs(t, err, apperrors.ErrStorage)
	})

	t.Run("DeletePatientCascades", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		patient := NewTestPatient("Cara Diaz", 0)
		keep := NewTestPatient("Dev Patel", 0)
		require.NoError(t, s.InsertPatient(ctx, patient))
		require.NoError(t, s.InsertPatient(ctx, keep))

		pres := NewTestPrescription(patient.ID, models.RiskHigh, BaseTime)
		kept := NewTestPrescription(keep.ID, models.RiskHigh, BaseTime)
		require.NoError(t, s.InsertPrescription(ctx, pres))
		require.NoError(t, s.InsertPrescription(ctx, kept))
		require.NoError(t, s.InsertDrug(ctx, NewTestDrug(pres.ID, "Warfarin", 0)))
		require.NoError(t, s.InsertDrug(ctx, NewTestDrug(kept.ID, "Warfarin", 0)))

		require.NoError(t, s.DeletePatient(ctx, patient.ID))

		_, err := s.GetPatient(ctx, patient.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		history, err := s.ListPrescriptionsByPatient(ctx, patient.ID)
		require.NoError(t, err)
		assert.Empty(t, history)
		assert.ErrorIs(t, s.DeletePrescription(ctx, pres.ID), apperrors.ErrNotFound)

		high, err := s.CountPrescriptionsByRisk(ctx, models.RiskHigh)
		require.NoError(t, err)
		assert.Equal(t, int64(1), high)

		require.NoError(t, s.InsertDrug(ctx, NewTestDrug(kept.ID, "Aspirin", 1)))
		keptHistory, err := s.ListPrescriptionsByPatient(ctx, keep.ID)
		require.NoError(t, err)
		require.Len(t, keptHistory, 1)
		assert.Len(t, keptHistory[0].ExtractedDrugs, 2)
	})

	t.Run("DeletePrescriptionCascades", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		patient := NewTestPatient("Eli Fox", 0)
		require.NoError(t, s.InsertPatient(ctx, patient))
		pres := NewTestPrescription(patient.ID, models.RiskModerate, BaseTime)
		sibling := NewTestPrescription(patient.ID, models.RiskHigh, BaseTime.Add(time.Minute))
		require.NoError(t, s.InsertPrescription(ctx, pres))
		require.NoError(t, s.InsertPrescription(ctx, sibling))
		drug := NewTestDrug(pres.ID, "Metformin", 0)
		require.NoError(t, s.InsertDrug(ctx, drug))
		require.NoError(t, s.InsertDrug(ctx, NewTestDrug(sibling.ID, "Warfarin", 0)))
		require.NoError(t, s.InsertDrug(ctx, NewTestDrug(sibling.ID, "Aspirin", 1)))

		require.NoError(t, s.DeletePrescription(ctx, pres.ID))

		history, err := s.ListPrescriptionsByPatient(ctx, patient.ID)
		require.NoError(t, err)
		require.Len(t, history, 1, "only the deleted prescription is removed")
		assert.Equal(t, sibling.ID, history[0].ID)
		require.Len(t, history[0].ExtractedDrugs, 2)
		assert.Equal(t, "Warfarin", history[0].ExtractedDrugs[0].Name)
		assert.Equal(t, "Aspirin", history[0].ExtractedDrugs[1].Name)

		// Re-inserting under the old ids only works if the drug row was removed.
		require.NoError(t, s.InsertPrescription(ctx, pres))
		require.NoError(t, s.InsertDrug(ctx, drug))

		_, err = s.GetPatient(ctx, patient.ID)
		assert.NoError(t, err, "deleting a prescription leaves the patient")
	})

	t.Run("Counters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		patient := NewTestPatient("Gus Hale", 0)
		require.NoError(t, s.InsertPatient(ctx, patient))
		since := BaseTime.Add(-24 * time.Hour)

		for _, p := range []*models.Prescription{
			NewTestPrescription(patient.ID, models.RiskHigh, since.Add(-time.Second)),
			NewTestPrescription(patient.ID, models.RiskHigh, since),
			NewTestPrescription(patient.ID, models.RiskLow, BaseTime),
		} {
			require.NoError(t, s.InsertPrescription(ctx, p))
		}

		recent, err := s.CountPrescriptionsSince(ctx, since)
		require.NoError(t, err)
		assert.Equal(t, int64(2), recent, "window is inclusive of its start")

		high, err := s.CountPrescriptionsByRisk(ctx, models.RiskHigh)
		require.NoError(t, err)
		assert.Equal(t, int64(2), high)

		patients, err := s.CountPatients(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), patients)
	})

	t.Run("TransactionCommits", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		patient := NewTestPatient("Ivy Jones", 0)
		require.NoError(t, s.InsertPatient(ctx, patient))
		pres := NewTestPrescription(patient.ID, models.RiskLow, BaseTime)

		err := s.WithTransaction(ctx, func(ctx context.Context, q storage.Queries) error {
			if err := q.InsertPrescription(ctx, pres); err != nil {
				return err
			}
			return q.InsertDrug(ctx, NewTestDrug(pres.ID, "Lisinopril", 0))
		})
		require.NoError(t, err)

		history, err := s.ListPrescriptionsByPatient(ctx, patient.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Len(t, history[0].ExtractedDrugs, 1)
	})

	t.Run("TransactionRollsBackOnError", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		patient := NewTestPatient("Jon Kim", 0)
		require.NoError(t, s.InsertPatient(ctx, patient))
		pres := NewTestPrescription(patient.ID, models.RiskHigh, BaseTime)
		boom := errors.New("boom")

		err := s.WithTransaction(ctx, func(ctx context.Context, q storage.Queries) error {
			if err := q.InsertPrescription(ctx, pres); err != nil {
				return err
			}
			if err := q.InsertDrug(ctx, NewTestDrug(pres.ID, "Warfarin", 0)); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		history, err := s.ListPrescriptionsByPatient(ctx, patient.ID)
		require.NoError(t, err)
		assert.Empty(t, history)
		high, err := s.CountPrescriptionsByRisk(ctx, models.RiskHigh)
		require.NoError(t, err)
		assert.Zero(t, high)
	})

	t.Run("TransactionRollsBackOnPanic", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		patient := NewTestPatient("Kai Lee", 0)
		require.NoError(t, s.InsertPatient(ctx, patient))
		pres := NewTestPrescription(patient.ID, models.RiskLow, BaseTime)

		assert.Panics(t, func() {
			_ = s.WithTransaction(ctx, func(ctx context.Context, q storage.Queries) error {
				if err := q.InsertPrescription(ctx, pres); err != nil {
					return err
				}
				panic("driver exploded")
			})
		})

		history, err := s.ListPrescriptionsByPatient(ctx, patient.ID)
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}
