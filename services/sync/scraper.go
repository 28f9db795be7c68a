// Package sync extracts data from the legacy franchise system with a
// real browser and reconciles it into the local stores. Each sync
// domain (calendar, stock, users, patient search) is one scraper
// driving one grid.
package sync

import (
	"context"
	"fmt"
	"time"

	"clinicsync-backend/lib/grid"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("clinicsync.services.sync")

// State tracks how far a scraper run progressed, so failures can be
// tagged with the step they happened in.
type State string

const (
	StateNotStarted State = "not_started"
	StateLoggedIn   State = "logged_in"
	StateNavigated  State = "navigated"
	StateFiltered   State = "filtered"
	StateExtracting State = "extracting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// ScrapeError wraps a failure with the state the scraper was in when
// it happened.
type ScrapeError struct {
	State State
	Err   error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("scrape failed at %s: %v", e.State, e.Err)
}

func (e *ScrapeError) Unwrap() error { return e.Err }

// run is the per-invocation state machine shared by all scrapers.
type run struct {
	state State
}

func (r *run) enter(s State) { r.state = s }

func (r *run) fail(err error) error {
	failedAt := r.state
	r.state = StateFailed
	return &ScrapeError{State: failedAt, Err: err}
}

// navigator is the slice of browser.Session the scrapers need.
type navigator interface {
	Login(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
}

// gridPager is the slice of grid.Grid the scrapers need; tests swap in
// a fake to exercise pagination without a browser.
type gridPager interface {
	WaitReady(ctx context.Context) error
	ClearFilters(ctx context.Context)
	ApplyFilter(ctx context.Context, fieldID, value string) error
	HasNextPage(ctx context.Context) bool
	AdvancePage(ctx context.Context) error
	Rows(ctx context.Context) ([]grid.Row, error)
}

// forEachPage walks grid pages in order, calling visit with each
// page's rows, up to pageCap pages. Pages are strictly sequential
// because advancing replaces the visible DOM. The returned count is
// the number of pages actually visited.
func forEachPage(ctx context.Context, g gridPager, pageCap int, delay time.Duration, visit func(page int, rows []grid.Row) error) (int, error) {
	visited := 0
	for page := 1; page <= pageCap; page++ {
		rows, err := g.Rows(ctx)
		if err != nil {
			return visited, fmt.Errorf("page %d: %w", page, err)
		}
		visited++
		if err := visit(page, rows); err != nil {
			return visited, err
		}
		if !g.HasNextPage(ctx) {
			break
		}
		if err := g.AdvancePage(ctx); err != nil {
			return visited, fmt.Errorf("page %d: %w", page, err)
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	return visited, nil
}
