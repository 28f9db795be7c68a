package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"clinicsync-backend/lib/fieldinfer"
	"clinicsync-backend/lib/grid"
	"clinicsync-backend/lib/textutil"

	"github.com/antzucaro/matchr"
)

// cpfFilterSuffix is the filter-row input for the CPF column, relative
// to the grid id.
const cpfFilterSuffix = "_ctl01_fltCPF"

// nameMatchThreshold is the Jaro-Winkler similarity above which a
// fallback row's name is considered a match for the expected name.
const nameMatchThreshold = 0.85

// PatientSearchScraper looks a patient up in the legacy system by CPF.
// The grid filter is unreliable: when no returned row textually
// contains the CPF, the first plausible data row is taken anyway and
// the result is flagged unverified.
type PatientSearchScraper struct {
	nav    navigator
	grid   gridPager
	url    string
	gridID string
}

func NewPatientSearchScraper(nav navigator, g gridPager, url, gridID string) *PatientSearchScraper {
	return &PatientSearchScraper{nav: nav, grid: g, url: url, gridID: gridID}
}

// SearchByCPF returns the best-matching patient row, or found=false
// when the grid reports no records. expectedName, when non-empty, is
// used to fuzzily verify a fallback row.
func (p *PatientSearchScraper) SearchByCPF(ctx context.Context, cpf, expectedName string) (PatientRecord, bool, error) {
	ctx, span := tracer.Start(ctx, "PatientSearchScraper.SearchByCPF")
	defer span.End()

	digits := fieldinfer.ParseCPF(cpf)
	if len(digits) != 11 {
		return PatientRecord{}, false, fmt.Errorf("invalid cpf %q", cpf)
	}
	formatted := fieldinfer.FormatCPF(digits)

	r := &run{state: StateNotStarted}
	if err := p.nav.Login(ctx); err != nil {
		return PatientRecord{}, false, r.fail(err)
	}
	r.enter(StateLoggedIn)

	if err := p.nav.Navigate(ctx, p.url); err != nil {
		return PatientRecord{}, false, r.fail(err)
	}
	if err := p.grid.WaitReady(ctx); err != nil {
		return PatientRecord{}, false, r.fail(err)
	}
	r.enter(StateNavigated)

	p.grid.ClearFilters(ctx)
	if err := p.grid.ApplyFilter(ctx, p.gridID+cpfFilterSuffix, formatted); err != nil {
		return PatientRecord{}, false, r.fail(err)
	}
	r.enter(StateFiltered)

	r.enter(StateExtracting)
	rows, err := p.grid.Rows(ctx)
	if err != nil {
		return PatientRecord{}, false, r.fail(err)
	}
	if len(rows) == 0 {
		r.enter(StateDone)
		return PatientRecord{}, false, nil
	}

	rec, ok := p.selectRow(ctx, rows, digits, expectedName)
	if !ok {
		r.enter(StateDone)
		return PatientRecord{}, false, nil
	}
	r.enter(StateDone)
	return rec, true, nil
}

func (p *PatientSearchScraper) selectRow(ctx context.Context, rows []grid.Row, digits, expectedName string) (PatientRecord, bool) {
	// Preferred: a row whose text carries the searched CPF.
	for _, row := range rows {
		if strings.Contains(onlyDigits(row.Text), digits) {
			rec, ok := patientFromRow(row, digits)
			if ok {
				rec.Verified = true
				return rec, true
			}
		}
	}

	// Fallback: the first plausible data row. Deliberately permissive,
	// the filter sometimes returns an unfiltered grid.
	for _, row := range rows {
		if len(row.Cells) < 5 {
			continue
		}
		rec, ok := patientFromRow(row, digits)
		if !ok {
			continue
		}
		if expectedName != "" {
			if textutil.EqualNames(rec.Name, expectedName) {
				rec.Verified = true
			} else {
				similarity := matchr.JaroWinkler(
					textutil.NormalizeName(rec.Name),
					textutil.NormalizeName(expectedName),
					false,
				)
				rec.Verified = similarity >= nameMatchThreshold
			}
		}
		if !rec.Verified {
			slog.WarnContext(ctx, "patient row does not contain searched cpf",
				"cpf", fieldinfer.FormatCPF(digits), "row_name", rec.Name)
		}
		return rec, true
	}
	return PatientRecord{}, false
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
