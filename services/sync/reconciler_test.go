package sync

import (
	"context"
	"testing"

	"clinicsync-backend/lib/clinicstore"
	"clinicsync-backend/lib/fieldinfer"
	"clinicsync-backend/lib/sqliteutil"

	"github.com/stretchr/testify/require"
)

func newTestReconciler(t *testing.T) (*Reconciler, *clinicstore.Store) {
	db, err := sqliteutil.OpenDB(clinicstore.Schema, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := clinicstore.NewStore(db)
	return NewReconciler(store), store
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)

	batch := []fieldinfer.StockRecord{
		{Name: "Hexavalente", Laboratory: "GSK", SalePrice: 350, CurrentStock: 12, AvailableStock: 10},
		{Name: "BCG", CurrentStock: 5, AvailableStock: 5},
	}

	first := rec.Reconcile(ctx, batch)
	require.Equal(t, 2, first.Created)
	require.Equal(t, 0, first.Updated)
	require.Empty(t, first.Errors)

	second := rec.Reconcile(ctx, batch)
	require.Equal(t, 0, second.Created)
	require.Equal(t, 2, second.Updated)
	require.Empty(t, second.Errors)

	n, err := store.CountVaccines(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	v, err := store.GetVaccine(ctx, "hexavalente")
	require.NoError(t, err)
	require.Equal(t, 12, v.CurrentStock)
	require.Equal(t, 10, v.AvailableStock)
	require.InDelta(t, 350, v.SalePrice, 0.001)
}

func TestReconcilePersistsAgeRange(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)

	result := rec.Reconcile(ctx, []fieldinfer.StockRecord{
		{Name: "Pentavalente", CurrentStock: 4, AvailableStock: 4, MinAgeMonths: 2, MaxAgeMonths: 24},
	})
	require.Empty(t, result.Errors)

	v, err := store.GetVaccine(ctx, "Pentavalente")
	require.NoError(t, err)
	require.Equal(t, 2, v.MinAgeMonths)
	require.Equal(t, 24, v.MaxAgeMonths)

	// a later scrape without age columns keeps the known range
	result = rec.Reconcile(ctx, []fieldinfer.StockRecord{
		{Name: "Pentavalente", CurrentStock: 3, AvailableStock: 3},
	})
	require.Empty(t, result.Errors)
	v, err = store.GetVaccine(ctx, "Pentavalente")
	require.NoError(t, err)
	require.Equal(t, 2, v.MinAgeMonths)
	require.Equal(t, 24, v.MaxAgeMonths)
}

func TestReconcileCollectsErrorsWithoutAborting(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)

	batch := []fieldinfer.StockRecord{
		{Name: "A", CurrentStock: 5, AvailableStock: 5},
		{Name: "B", CurrentStock: 3, AvailableStock: 1},
		{Name: "C", CurrentStock: 2, AvailableStock: 9}, // invalid
		{Name: "D", CurrentStock: 1, AvailableStock: 0},
		{Name: "E", CurrentStock: 8, AvailableStock: 8},
	}

	result := rec.Reconcile(ctx, batch)
	require.Equal(t, 5, result.TotalScraped)
	require.Equal(t, 4, result.Created+result.Updated)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "C")

	// The invalid record left no trace, not even a name-only entity.
	_, err := store.GetVaccine(ctx, "C")
	require.Error(t, err)

	n, err := store.CountVaccines(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestReconcilePreservesKnownPricesOnParseMiss(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)

	rec.Reconcile(ctx, []fieldinfer.StockRecord{
		{Name: "Hexavalente", PurchasePrice: 200, SalePrice: 350, CurrentStock: 10, AvailableStock: 8},
	})

	// A later scrape that failed to parse the prices must not zero
	// them out.
	result := rec.Reconcile(ctx, []fieldinfer.StockRecord{
		{Name: "HEXAVALENTE", CurrentStock: 7, AvailableStock: 7},
	})
	require.Equal(t, 1, result.Updated)

	v, err := store.GetVaccine(ctx, "hexavalente")
	require.NoError(t, err)
	require.InDelta(t, 200, v.PurchasePrice, 0.001)
	require.InDelta(t, 350, v.SalePrice, 0.001)
	require.Equal(t, 7, v.CurrentStock)
}
