package sync

import (
	"context"
	"errors"
	"testing"

	"clinicsync-backend/lib/clinicstore"
	"clinicsync-backend/lib/grid"
	"clinicsync-backend/lib/sqliteutil"

	"github.com/stretchr/testify/require"
)

type fakeNav struct {
	loginErr    error
	navigateErr error
	visited     []string
}

func (f *fakeNav) Login(ctx context.Context) error { return f.loginErr }

func (f *fakeNav) Navigate(ctx context.Context, url string) error {
	f.visited = append(f.visited, url)
	return f.navigateErr
}

// fakeGrid serves a fixed sequence of pages. HasNextPage answers true
// until the last page is being shown.
type fakeGrid struct {
	pages        [][]grid.Row
	current      int
	rowsCalls    int
	advanceCalls int
	rowsErr      error
	filterErr    error
	filtered     map[string]string
}

func (f *fakeGrid) WaitReady(ctx context.Context) error { return nil }
func (f *fakeGrid) ClearFilters(ctx context.Context)    {}

func (f *fakeGrid) ApplyFilter(ctx context.Context, fieldID, value string) error {
	if f.filtered == nil {
		f.filtered = map[string]string{}
	}
	f.filtered[fieldID] = value
	return f.filterErr
}

func (f *fakeGrid) HasNextPage(ctx context.Context) bool {
	return f.current < len(f.pages)-1
}

func (f *fakeGrid) AdvancePage(ctx context.Context) error {
	f.advanceCalls++
	if f.current >= len(f.pages)-1 {
		return grid.ErrPaginationExhausted
	}
	f.current++
	return nil
}

func (f *fakeGrid) Rows(ctx context.Context) ([]grid.Row, error) {
	f.rowsCalls++
	if f.rowsErr != nil {
		return nil, f.rowsErr
	}
	return f.pages[f.current], nil
}

func row(cells ...string) grid.Row {
	text := ""
	for _, c := range cells {
		text += c + " "
	}
	return grid.Row{Cells: cells, Text: text}
}

func TestForEachPageVisitsUntilLastPage(t *testing.T) {
	g := &fakeGrid{pages: [][]grid.Row{
		{row("a")}, {row("b")}, {row("c")}, {row("d")},
	}}

	visited, err := forEachPage(context.Background(), g, 100, 0, func(page int, rows []grid.Row) error {
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 4, visited)
	require.Equal(t, 3, g.advanceCalls)
}

func TestForEachPageHonorsCap(t *testing.T) {
	pages := make([][]grid.Row, 10)
	for i := range pages {
		pages[i] = []grid.Row{row("x")}
	}
	g := &fakeGrid{pages: pages}

	visited, err := forEachPage(context.Background(), g, 3, 0, func(page int, rows []grid.Row) error {
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, visited)
}

func TestCalendarScraperMapsRows(t *testing.T) {
	g := &fakeGrid{pages: [][]grid.Row{
		{
			row("Maria da Silva", "02/09/2026", "10:30", "Hexavalente", "Agendado", "1ª dose", ""),
			row("João Souza", "02/09/2026", "11:00", "BCG", "Concluído", "", "trazer carteirinha"),
			row("", "02/09/2026", "11:30", "", "", "", ""), // nameless, skipped
		},
	}}
	scraper := NewCalendarScraper(&fakeNav{}, g, "http://legacy/Agenda/Agenda.aspx", 100)
	scraper.delay = 0

	records, err := scraper.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Equal(t, "Maria da Silva", records[0].PatientName)
	require.Equal(t, "2026-09-02", records[0].Date)
	require.Equal(t, "10:30", records[0].Time)
	require.Equal(t, clinicstore.StatusScheduled, records[0].Status)

	require.Equal(t, clinicstore.StatusCompleted, records[1].Status)
	require.Equal(t, "trazer carteirinha", records[1].Observations)
}

func TestCalendarScraperDiscardsPartialResultOnFailure(t *testing.T) {
	g := &fakeGrid{
		pages:   [][]grid.Row{{row("Maria", "01/09/2026", "10:00", "", "", "", "")}},
		rowsErr: errors.New("page snapshot failed"),
	}
	scraper := NewCalendarScraper(&fakeNav{}, g, "http://legacy/Agenda/Agenda.aspx", 100)
	scraper.delay = 0

	records, err := scraper.Run(context.Background())
	require.Nil(t, records)

	var scrapeErr *ScrapeError
	require.ErrorAs(t, err, &scrapeErr)
	require.Equal(t, StateExtracting, scrapeErr.State)
}

func TestStockScraperPersistsPageByPage(t *testing.T) {
	ctx := context.Background()
	db, err := sqliteutil.OpenDB(clinicstore.Schema, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := clinicstore.NewStore(db)

	g := &fakeGrid{pages: [][]grid.Row{
		{row("Hexavalente", "GSK", "R$ 350,00", "10", "12")},
		{row("BCG", "Fiocruz", "R$ 80,00", "5", "5")},
	}}
	scraper := NewStockScraper(&fakeNav{}, g, "http://legacy/Cadastro/Vacinas.aspx", 100, NewReconciler(store))
	scraper.delay = 0

	result, err := scraper.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, result.Pages)
	require.Equal(t, 2, result.Created)
	require.Empty(t, result.Errors)

	n, err := store.CountVaccines(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestStockScraperKeepsPersistedPagesOnLaterFailure(t *testing.T) {
	ctx := context.Background()
	db, err := sqliteutil.OpenDB(clinicstore.Schema, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := clinicstore.NewStore(db)

	g := &failAfterFirstPageGrid{fakeGrid{pages: [][]grid.Row{
		{row("Hexavalente", "GSK", "R$ 350,00", "10", "12")},
		{row("BCG", "Fiocruz", "R$ 80,00", "5", "5")},
	}}}
	scraper := NewStockScraper(&fakeNav{}, g, "http://legacy/Cadastro/Vacinas.aspx", 100, NewReconciler(store))
	scraper.delay = 0

	result, err := scraper.Run(ctx)
	require.Error(t, err)
	require.Equal(t, 1, result.Created)

	// The first page survived the failure.
	v, gerr := store.GetVaccine(ctx, "hexavalente")
	require.NoError(t, gerr)
	require.Equal(t, "GSK", v.Laboratory)
}

// failAfterFirstPageGrid fails the second Rows call.
type failAfterFirstPageGrid struct{ fakeGrid }

func (f *failAfterFirstPageGrid) Rows(ctx context.Context) ([]grid.Row, error) {
	if f.rowsCalls >= 1 {
		return nil, errors.New("grid vanished")
	}
	return f.fakeGrid.Rows(ctx)
}

func TestUsersScraperStopsAtLimit(t *testing.T) {
	var firstPage, secondPage []grid.Row
	for i := 0; i < 15; i++ {
		firstPage = append(firstPage, row("user"+string(rune('a'+i)), "Nome", "Recepção", "01/08/2026"))
		secondPage = append(secondPage, row("other"+string(rune('a'+i)), "Nome", "Recepção", "01/08/2026"))
	}
	g := &fakeGrid{pages: [][]grid.Row{firstPage, secondPage}}
	scraper := NewUsersScraper(&fakeNav{}, g, "http://legacy/Cadastro/Usuario.aspx", 100)
	scraper.delay = 0

	records, err := scraper.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, records, RecentUserCount)
	require.Equal(t, "usera", records[0].Username)
}

func TestPatientSearchPrefersRowContainingCPF(t *testing.T) {
	g := &fakeGrid{pages: [][]grid.Row{
		{
			row("Outra Pessoa", "01/01/2000", "", "", "05/05/2020"),
			{
				Cells: []string{"Maria da Silva", "10/03/1995", "José", "", "02/02/2021"},
				Text:  "Maria da Silva 10/03/1995 José 02/02/2021 123.456.789-01",
			},
		},
	}}
	scraper := NewPatientSearchScraper(&fakeNav{}, g,
		"http://legacy/Cadastro/Paciente.aspx", "ctl00_ContentPlaceHolder1_GridView1")

	rec, found, err := scraper.SearchByCPF(context.Background(), "12345678901", "")
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, rec.Verified)
	require.Equal(t, "Maria da Silva", rec.Name)
	require.Equal(t, "123.456.789-01", rec.CPF)

	// The masked filter input received the punctuated form.
	require.Equal(t, "123.456.789-01",
		g.filtered["ctl00_ContentPlaceHolder1_GridView1_ctl01_fltCPF"])
}

func TestPatientSearchFallsBackUnverified(t *testing.T) {
	g := &fakeGrid{pages: [][]grid.Row{
		{row("Maria da Silva", "10/03/1995", "José", "", "02/02/2021")},
	}}
	scraper := NewPatientSearchScraper(&fakeNav{}, g,
		"http://legacy/Cadastro/Paciente.aspx", "ctl00_ContentPlaceHolder1_GridView1")

	rec, found, err := scraper.SearchByCPF(context.Background(), "123.456.789-01", "")
	require.NoError(t, err)
	require.True(t, found)
	require.False(t, rec.Verified)
	require.Equal(t, "Maria da Silva", rec.Name)
}

func TestPatientSearchVerifiesFallbackByName(t *testing.T) {
	g := &fakeGrid{pages: [][]grid.Row{
		{row("Maria da Silva", "10/03/1995", "José", "", "02/02/2021")},
	}}
	scraper := NewPatientSearchScraper(&fakeNav{}, g,
		"http://legacy/Cadastro/Paciente.aspx", "ctl00_ContentPlaceHolder1_GridView1")

	rec, found, err := scraper.SearchByCPF(context.Background(), "12345678901", "Maria Silva")
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, rec.Verified)
	require.Equal(t, "Maria da Silva", rec.Name)
}

func TestPatientSearchVerifiesExactNameIgnoringCase(t *testing.T) {
	g := &fakeGrid{pages: [][]grid.Row{
		{row("MARIA  DA SILVA", "10/03/1995", "José", "", "02/02/2021")},
	}}
	scraper := NewPatientSearchScraper(&fakeNav{}, g,
		"http://legacy/Cadastro/Paciente.aspx", "ctl00_ContentPlaceHolder1_GridView1")

	rec, found, err := scraper.SearchByCPF(context.Background(), "12345678901", "maria da silva")
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, rec.Verified)
}

func TestPatientSearchRejectsInvalidCPF(t *testing.T) {
	scraper := NewPatientSearchScraper(&fakeNav{}, &fakeGrid{},
		"http://legacy/Cadastro/Paciente.aspx", "ctl00_ContentPlaceHolder1_GridView1")

	_, _, err := scraper.SearchByCPF(context.Background(), "123", "")
	require.Error(t, err)
}

func TestScraperFailureIsTaggedWithState(t *testing.T) {
	scraper := NewCalendarScraper(
		&fakeNav{loginErr: errors.New("bad credentials")},
		&fakeGrid{pages: [][]grid.Row{{}}},
		"http://legacy/Agenda/Agenda.aspx", 100,
	)
	scraper.delay = 0

	_, err := scraper.Run(context.Background())
	var scrapeErr *ScrapeError
	require.ErrorAs(t, err, &scrapeErr)
	require.Equal(t, StateNotStarted, scrapeErr.State)
}
