package sync

import (
	"context"
	"log/slog"
	"time"

	"clinicsync-backend/lib/grid"
)

// CalendarScraper extracts every appointment row from the scheduling
// grid, across all pages. Any failure discards the partial result;
// calendar syncs are all or nothing.
type CalendarScraper struct {
	nav     navigator
	grid    gridPager
	url     string
	pageCap int
	delay   time.Duration
}

func NewCalendarScraper(nav navigator, g gridPager, url string, pageCap int) *CalendarScraper {
	return &CalendarScraper{nav: nav, grid: g, url: url, pageCap: pageCap, delay: grid.PageDelay}
}

func (c *CalendarScraper) Run(ctx context.Context) ([]AppointmentRecord, error) {
	ctx, span := tracer.Start(ctx, "CalendarScraper.Run")
	defer span.End()

	r := &run{state: StateNotStarted}
	if err := c.nav.Login(ctx); err != nil {
		return nil, r.fail(err)
	}
	r.enter(StateLoggedIn)

	if err := c.nav.Navigate(ctx, c.url); err != nil {
		return nil, r.fail(err)
	}
	if err := c.grid.WaitReady(ctx); err != nil {
		return nil, r.fail(err)
	}
	r.enter(StateNavigated)

	r.enter(StateExtracting)
	var records []AppointmentRecord
	pages, err := forEachPage(ctx, c.grid, c.pageCap, c.delay, func(page int, rows []grid.Row) error {
		for _, row := range rows {
			rec, ok := appointmentFromRow(row)
			if !ok {
				slog.DebugContext(ctx, "skipping unparseable appointment row",
					"page", page, "text", row.Text)
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, r.fail(err)
	}

	r.enter(StateDone)
	slog.DebugContext(ctx, "calendar scrape finished",
		"pages", pages, "appointments", len(records))
	return records, nil
}
