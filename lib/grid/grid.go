// Package grid reads paginated, filterable WebForms data grids. The
// legacy markup is opaque and inconsistent between screens, so every
// interaction (filtering, pagination) is modeled as an ordered list of
// fallback strategies tried in sequence, and row extraction works on a
// serialized HTML snapshot of the page rather than live elements.
package grid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"clinicsync-backend/lib/browser"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("clinicsync.lib.grid")

var (
	ErrControlNotFound     = errors.New("filter control not found")
	ErrPaginationExhausted = errors.New("all pagination strategies failed")
)

const (
	keyDelay = time.Millisecond * 50
	// inter-page pacing, keeps the legacy server from being hammered
	PageDelay = time.Second * 2
)

type Grid struct {
	drv        browser.Driver
	id         string
	uniqueID   string
	navTimeout time.Duration
}

// New binds a grid to the session's current page. id is the grid's
// client element id (underscore form); the postback unique id is
// derived from it.
func New(session *browser.Session, id string) *Grid {
	return &Grid{
		drv:        session.Driver(),
		id:         id,
		uniqueID:   toUniqueID(id),
		navTimeout: session.NavTimeout(),
	}
}

// WebForms renders server ids like ctl00$ContentPlaceHolder1$GridView1
// as client ids with underscores. Postbacks need the server form back.
func toUniqueID(clientID string) string {
	return strings.ReplaceAll(clientID, "_", "$")
}

// WaitReady blocks until the grid element is present, bounded by the
// session's navigation timeout.
func (g *Grid) WaitReady(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return g.drv.WaitVisible("#"+g.id, g.navTimeout)
}

// strategy is one way of triggering a grid action. Strategies are tried
// in order until one succeeds.
type strategy struct {
	name    string
	attempt func() error
}

func (g *Grid) runStrategies(ctx context.Context, action string, strategies []strategy) error {
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.attempt()
		if err == nil {
			if err := g.WaitReady(ctx); err != nil {
				slog.WarnContext(ctx, "grid not ready after strategy",
					"action", action, "strategy", s.name, "err", err)
				continue
			}
			slog.DebugContext(ctx, "grid action succeeded",
				"action", action, "strategy", s.name)
			return nil
		}
		slog.DebugContext(ctx, "grid strategy failed",
			"action", action, "strategy", s.name, "err", err)
	}
	return fmt.Errorf("%s: all strategies failed", action)
}

// ClearFilters blanks every visible filter input and select in the grid
// header. Best-effort: a field that cannot be cleared never fails the
// overall operation.
func (g *Grid) ClearFilters(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "ClearFilters")
	defer span.End()

	script := fmt.Sprintf(`(() => {
		const grid = document.getElementById(%q);
		if (!grid) return 0;
		let cleared = 0;
		for (const input of grid.querySelectorAll("tr input[type='text']")) {
			input.value = '';
			cleared++;
		}
		for (const select of grid.querySelectorAll("tr select")) {
			select.selectedIndex = 0;
			cleared++;
		}
		return cleared;
	})()`, g.id)

	cleared, err := g.drv.Eval(script)
	if err != nil {
		slog.WarnContext(ctx, "failed to clear grid filters", "err", err)
		return
	}
	slog.DebugContext(ctx, "cleared grid filters", "fields", cleared)
}

// ApplyFilter sets a filter value and triggers the grid's filter
// action. The value is typed key by key because some filter widgets are
// input-masked and reject bulk paste. Trigger strategies, in order: the
// filter button by id, the button by its image, a synthesized postback.
func (g *Grid) ApplyFilter(ctx context.Context, fieldID, value string) error {
	ctx, span := tracer.Start(ctx, "ApplyFilter")
	defer span.End()

	if err := g.drv.TypeSlowly("#"+fieldID, value, keyDelay); err != nil {
		return fmt.Errorf("type filter value: %w", err)
	}

	buttonID := filterButtonID(g.id)
	err := g.runStrategies(ctx, "apply filter", []strategy{
		{"filter button", func() error {
			return g.drv.Click("#"+buttonID, g.navTimeout)
		}},
		{"filter image button", func() error {
			return g.drv.Click("input[src*='find.png'], input[title*='Filtrar']", g.navTimeout)
		}},
		{"postback", func() error {
			return g.postback(toUniqueID(buttonID), "")
		}},
	})
	if err != nil {
		return fmt.Errorf("%w: field %s", ErrControlNotFound, fieldID)
	}
	return nil
}

// filterButtonID derives the filter row's button id from the grid id.
// The filter row is always the grid's first child control (ctl01).
func filterButtonID(gridID string) string {
	return gridID + "_ctl01_BtnFiltrar"
}

// HasNextPage inspects the pager row for a next-page affordance.
// Absence means the current page is terminal.
func (g *Grid) HasNextPage(ctx context.Context) bool {
	content, err := g.drv.Content()
	if err != nil {
		slog.WarnContext(ctx, "failed to snapshot page for pager check", "err", err)
		return false
	}
	return pagerHasNext(content, g.id)
}

// AdvancePage moves the grid to its next page. Strategies, in order: a
// generic postback, clicking a next-page link, clicking the next-page
// image button. Each attempt must see the grid ready again before it
// counts as a success.
func (g *Grid) AdvancePage(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "AdvancePage")
	defer span.End()

	err := g.runStrategies(ctx, "advance page", []strategy{
		{"postback", func() error {
			return g.postback(g.uniqueID, "Page$Next")
		}},
		{"pager link", func() error {
			return g.drv.Click(`a[href*="Page$Next"], a[href*="Page%24Next"]`, g.navTimeout)
		}},
		{"next image button", func() error {
			return g.drv.Click("input[src*='resultset_next']", g.navTimeout)
		}},
	})
	if err != nil {
		return ErrPaginationExhausted
	}
	return nil
}

// postback synthesizes the WebForms __doPostBack call, the lowest level
// way of triggering a grid action when no clickable control is found.
func (g *Grid) postback(target, argument string) error {
	script := fmt.Sprintf(`(() => {
		if (typeof __doPostBack !== 'function') return false;
		__doPostBack(%q, %q);
		return true;
	})()`, target, argument)

	result, err := g.drv.Eval(script)
	if err != nil {
		return err
	}
	if ok, _ := result.(bool); !ok {
		return errors.New("__doPostBack is not available")
	}
	return nil
}

// Rows snapshots the page and extracts the grid's data rows, excluding
// header, filter and pager rows. When the grid shows its explicit
// no-records marker the result is empty regardless of other content.
// Restartable: call again after a page change to read the new page.
func (g *Grid) Rows(ctx context.Context) ([]Row, error) {
	_, span := tracer.Start(ctx, "Rows")
	defer span.End()

	content, err := g.drv.Content()
	if err != nil {
		return nil, fmt.Errorf("snapshot page: %w", err)
	}
	return ParseRows(content, g.id)
}
