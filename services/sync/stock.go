package sync

import (
	"context"
	"log/slog"
	"time"

	"clinicsync-backend/lib/fieldinfer"
	"clinicsync-backend/lib/grid"
)

// DefaultStockPageCap bounds a runaway pagination loop; the real grid
// never comes close.
const DefaultStockPageCap = 100

// StockSyncResult is the outcome of one stock sync, page reconciliation
// results folded together.
type StockSyncResult struct {
	Pages int `json:"pages"`
	// Fallbacks counts rows where column inference had to guess; they
	// are persisted anyway but surfaced so operators can spot layout
	// drift.
	Fallbacks int `json:"fallback_rows"`
	ReconciliationResult
}

// StockScraper extracts the stock grid and persists it page by page
// through the Reconciler. Unlike the other scrapers it keeps partial
// results: pages already reconciled stay persisted when a later page
// fails.
type StockScraper struct {
	nav        navigator
	grid       gridPager
	url        string
	pageCap    int
	delay      time.Duration
	reconciler *Reconciler
}

func NewStockScraper(nav navigator, g gridPager, url string, pageCap int, rec *Reconciler) *StockScraper {
	if pageCap <= 0 {
		pageCap = DefaultStockPageCap
	}
	return &StockScraper{nav: nav, grid: g, url: url, pageCap: pageCap, delay: grid.PageDelay, reconciler: rec}
}

func (s *StockScraper) Run(ctx context.Context) (StockSyncResult, error) {
	ctx, span := tracer.Start(ctx, "StockScraper.Run")
	defer span.End()

	var result StockSyncResult
	r := &run{state: StateNotStarted}

	if err := s.nav.Login(ctx); err != nil {
		return result, r.fail(err)
	}
	r.enter(StateLoggedIn)

	if err := s.nav.Navigate(ctx, s.url); err != nil {
		return result, r.fail(err)
	}
	if err := s.grid.WaitReady(ctx); err != nil {
		return result, r.fail(err)
	}
	r.enter(StateNavigated)

	r.enter(StateExtracting)
	pages, err := forEachPage(ctx, s.grid, s.pageCap, s.delay, func(page int, rows []grid.Row) error {
		var records []fieldinfer.StockRecord
		for _, row := range rows {
			rec, fallback, ok := stockFromRow(row)
			if !ok {
				continue
			}
			if fallback {
				result.Fallbacks++
				slog.WarnContext(ctx, "stock column inference fell back",
					"page", page, "name", rec.Name)
			}
			records = append(records, rec)
		}
		pageResult := s.reconciler.Reconcile(ctx, records)
		result.merge(pageResult)
		slog.DebugContext(ctx, "stock page reconciled",
			"page", page, "scraped", pageResult.TotalScraped,
			"created", pageResult.Created, "updated", pageResult.Updated)
		return nil
	})
	result.Pages = pages
	if err != nil {
		// Pages reconciled so far are already persisted; report them
		// alongside the failure.
		return result, r.fail(err)
	}

	r.enter(StateDone)
	return result, nil
}
