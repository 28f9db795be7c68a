package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"clinicsync-backend/lib/grid"
)

// RecentUserCount is how many of the newest registrations a users sync
// brings over. The grid is assumed most-recent-first.
const RecentUserCount = 20

// UsersScraper extracts the most recent user registrations. All or
// nothing; a failure discards whatever was gathered.
type UsersScraper struct {
	nav     navigator
	grid    gridPager
	url     string
	pageCap int
	limit   int
	delay   time.Duration
}

func NewUsersScraper(nav navigator, g gridPager, url string, pageCap int) *UsersScraper {
	return &UsersScraper{
		nav: nav, grid: g, url: url,
		pageCap: pageCap, limit: RecentUserCount, delay: grid.PageDelay,
	}
}

func (u *UsersScraper) Run(ctx context.Context) ([]UserRecord, error) {
	ctx, span := tracer.Start(ctx, "UsersScraper.Run")
	defer span.End()

	r := &run{state: StateNotStarted}
	if err := u.nav.Login(ctx); err != nil {
		return nil, r.fail(err)
	}
	r.enter(StateLoggedIn)

	if err := u.nav.Navigate(ctx, u.url); err != nil {
		return nil, r.fail(err)
	}
	if err := u.grid.WaitReady(ctx); err != nil {
		return nil, r.fail(err)
	}
	r.enter(StateNavigated)

	r.enter(StateExtracting)
	var records []UserRecord
	_, err := forEachPage(ctx, u.grid, u.pageCap, u.delay, func(page int, rows []grid.Row) error {
		for _, row := range rows {
			if len(records) >= u.limit {
				return errEnoughUsers
			}
			rec, ok := userFromRow(row)
			if !ok {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil && !errors.Is(err, errEnoughUsers) {
		return nil, r.fail(err)
	}

	r.enter(StateDone)
	slog.DebugContext(ctx, "users scrape finished", "users", len(records))
	return records, nil
}

// errEnoughUsers stops pagination early once the limit is reached; it
// never escapes Run.
var errEnoughUsers = errors.New("user limit reached")
