package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/adapters/storage"
	"github.com/ekaya-inc/ekaya-rx/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-rx/pkg/models"
	"github.com/ekaya-inc/ekaya-rx/pkg/testhelpers"
)

func TestStore_Contract(t *testing.T) {
	testhelpers.RunStoreSuite(t, func(t *testing.T) storage.Store {
		return New(zap.NewNop())
	})
}

func TestStore_RegisteredEngine(t *testing.T) {
	store, err := storage.Open(context.Background(), &storage.Config{Engine: EngineName}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, EngineName, store.Engine())
	assert.NoError(t, store.Ping(context.Background()))
}

func TestStore_ClosedRejectsQueries(t *testing.T) {
	store := New(nil)
	require.NoError(t, store.Close())

	_, err := store.ListPatients(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrStorage)
	assert.ErrorIs(t, store.Ping(context.Background()), apperrors.ErrStorage)
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := New(nil)
	ctx := context.Background()
	p := testhelpers.NewTestPatient("Mia Novak", 0)
	require.NoError(t, store.InsertPatient(ctx, p))

	got, err := store.GetPatient(ctx, p.ID)
	require.NoError(t, err)
	got.FullName = "changed"

	again, err := store.GetPatient(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mia Novak", again.FullName)
}

func TestStore_ConcurrentTransactions(t *testing.T) {
	store := New(nil)
	ctx := context.Background()
	patient := testhelpers.NewTestPatient("Noor Ali", 0)
	require.NoError(t, store.InsertPatient(ctx, patient))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pres := testhelpers.NewTestPrescription(patient.ID, models.RiskLow, testhelpers.BaseTime)
			err := store.WithTransaction(ctx, func(ctx context.Context, q storage.Queries) error {
				return q.InsertPrescription(ctx, pres)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	history, err := store.ListPrescriptionsByPatient(ctx, patient.ID)
	require.NoError(t, err)
	assert.Len(t, history, 20)
}
