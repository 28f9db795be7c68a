package sync

import (
	"context"
	"fmt"
	"log/slog"

	"clinicsync-backend/lib/clinicstore"
	"clinicsync-backend/lib/fieldinfer"
)

// ReconciliationResult summarizes one batch merge of scraped stock
// records into the store.
type ReconciliationResult struct {
	TotalScraped int      `json:"total_scraped"`
	Created      int      `json:"created"`
	Updated      int      `json:"updated"`
	Errors       []string `json:"errors,omitempty"`
}

func (r *ReconciliationResult) merge(other ReconciliationResult) {
	r.TotalScraped += other.TotalScraped
	r.Created += other.Created
	r.Updated += other.Updated
	r.Errors = append(r.Errors, other.Errors...)
}

// Reconciler merges scraped stock records into the authoritative
// store. Records are matched by case-insensitive name and processed
// independently: one bad record never aborts the batch.
type Reconciler struct {
	store *clinicstore.Store
}

func NewReconciler(store *clinicstore.Store) *Reconciler {
	return &Reconciler{store: store}
}

func (r *Reconciler) Reconcile(ctx context.Context, records []fieldinfer.StockRecord) ReconciliationResult {
	ctx, span := tracer.Start(ctx, "Reconcile")
	defer span.End()

	result := ReconciliationResult{TotalScraped: len(records)}
	for _, rec := range records {
		created, err := r.reconcileOne(ctx, rec)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			slog.WarnContext(ctx, "stock record rejected", "name", rec.Name, "err", err)
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}
	return result
}

func (r *Reconciler) reconcileOne(ctx context.Context, rec fieldinfer.StockRecord) (created bool, err error) {
	// Reject before touching the store so an invalid record leaves no
	// trace, not even a name-only entity.
	if rec.AvailableStock > rec.CurrentStock {
		return false, fmt.Errorf(
			"%q: available stock %d exceeds current stock %d",
			rec.Name, rec.AvailableStock, rec.CurrentStock,
		)
	}

	vaccine, created, err := r.store.FindOrCreateVaccine(ctx, rec.Name)
	if err != nil {
		return false, fmt.Errorf("%q: %w", rec.Name, err)
	}

	// Stock counts always follow the scrape; prices and laboratory are
	// only overwritten by a real parsed value, never by a zero from a
	// parse miss.
	vaccine.CurrentStock = rec.CurrentStock
	vaccine.AvailableStock = rec.AvailableStock
	vaccine.MinimumStock = rec.MinStock
	if rec.Laboratory != "" {
		vaccine.Laboratory = rec.Laboratory
	}
	if rec.PurchasePrice > 0 {
		vaccine.PurchasePrice = rec.PurchasePrice
	}
	if rec.SalePrice > 0 {
		vaccine.SalePrice = rec.SalePrice
	}
	if rec.MinAgeMonths > 0 {
		vaccine.MinAgeMonths = rec.MinAgeMonths
	}
	if rec.MaxAgeMonths > 0 {
		vaccine.MaxAgeMonths = rec.MaxAgeMonths
	}

	if err := r.store.SaveVaccine(ctx, vaccine); err != nil {
		return created, fmt.Errorf("%q: %w", rec.Name, err)
	}
	return created, nil
}
