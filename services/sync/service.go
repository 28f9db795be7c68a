package sync

import (
	"context"
	"fmt"
	"log/slog"

	"clinicsync-backend/lib/browser"
	"clinicsync-backend/lib/clinicstore"
	"clinicsync-backend/lib/grid"
	"clinicsync-backend/lib/userstore"
)

// Config locates the legacy system's pages. Paths are relative to
// BaseURL; the grid id is shared by every listing page.
type Config struct {
	BaseURL  string `json:"base_url"`
	Username string `json:"username"`
	Password string `json:"password"`
	Headless bool   `json:"headless"`

	StockPath    string `json:"stock_path"`
	CalendarPath string `json:"calendar_path"`
	PatientsPath string `json:"patients_path"`
	UsersPath    string `json:"users_path"`
	GridID       string `json:"grid_id"`

	StockPageCap int `json:"stock_page_cap"`
	// InitialUserPassword seeds accounts created from a users sync;
	// those accounts must change it at first login.
	InitialUserPassword string `json:"initial_user_password"`
}

func (c *Config) setDefaults() {
	if c.StockPath == "" {
		c.StockPath = "/Cadastro/Vacinas.aspx"
	}
	if c.CalendarPath == "" {
		c.CalendarPath = "/Agenda/Agenda.aspx"
	}
	if c.PatientsPath == "" {
		c.PatientsPath = "/Cadastro/Paciente.aspx"
	}
	if c.UsersPath == "" {
		c.UsersPath = "/Cadastro/Usuario.aspx"
	}
	if c.GridID == "" {
		c.GridID = "ctl00_ContentPlaceHolder1_GridView1"
	}
	if c.StockPageCap <= 0 {
		c.StockPageCap = DefaultStockPageCap
	}
	if c.InitialUserPassword == "" {
		c.InitialUserPassword = "trocar123"
	}
}

// CalendarSyncResult is the outcome of one calendar sync.
type CalendarSyncResult struct {
	Appointments    []AppointmentRecord `json:"appointments"`
	NewAppointments int                 `json:"new_appointments"`
	Errors          []string            `json:"errors,omitempty"`
}

// UsersSyncResult is the outcome of one users sync.
type UsersSyncResult struct {
	Users   []UserRecord `json:"users"`
	Created int          `json:"created"`
	Errors  []string     `json:"errors,omitempty"`
}

// Syncer runs one sync domain end to end. The HTTP layer depends on
// this interface so response shaping is testable without a browser.
type Syncer interface {
	SyncStock(ctx context.Context) (StockSyncResult, error)
	SyncCalendar(ctx context.Context) (CalendarSyncResult, error)
	SyncUsers(ctx context.Context) (UsersSyncResult, error)
	SearchPatient(ctx context.Context, cpf, expectedName string) (PatientRecord, bool, error)
}

// Service is the live Syncer. Every call owns an independent browser
// session, torn down on all exit paths; concurrent calls never share
// browser state.
type Service struct {
	cfg        Config
	store      *clinicstore.Store
	users      *userstore.Store
	reconciler *Reconciler

	// afterStockSync runs after a stock sync persisted anything, used
	// by the bootstrap to refresh the stock snapshot document.
	afterStockSync func(ctx context.Context)
}

func NewService(cfg Config, store *clinicstore.Store, users *userstore.Store) *Service {
	cfg.setDefaults()
	return &Service{
		cfg:        cfg,
		store:      store,
		users:      users,
		reconciler: NewReconciler(store),
	}
}

// OnStockSynced registers a hook invoked after each stock sync that
// persisted at least one record.
func (s *Service) OnStockSynced(fn func(ctx context.Context)) {
	s.afterStockSync = fn
}

func (s *Service) open(ctx context.Context) (*browser.Session, error) {
	return browser.Open(ctx, browser.Options{
		BaseURL:  s.cfg.BaseURL,
		LoginURL: s.cfg.BaseURL + "/Login.aspx",
		Username: s.cfg.Username,
		Password: s.cfg.Password,
		Headless: s.cfg.Headless,
	})
}

func (s *Service) SyncStock(ctx context.Context) (StockSyncResult, error) {
	ctx, span := tracer.Start(ctx, "SyncStock")
	defer span.End()

	session, err := s.open(ctx)
	if err != nil {
		return StockSyncResult{}, err
	}
	defer session.Close()

	scraper := NewStockScraper(
		session, grid.New(session, s.cfg.GridID),
		s.cfg.BaseURL+s.cfg.StockPath, s.cfg.StockPageCap, s.reconciler,
	)
	result, err := scraper.Run(ctx)
	if result.Created+result.Updated > 0 && s.afterStockSync != nil {
		s.afterStockSync(ctx)
	}
	return result, err
}

func (s *Service) SyncCalendar(ctx context.Context) (CalendarSyncResult, error) {
	ctx, span := tracer.Start(ctx, "SyncCalendar")
	defer span.End()

	session, err := s.open(ctx)
	if err != nil {
		return CalendarSyncResult{}, err
	}
	defer session.Close()

	scraper := NewCalendarScraper(
		session, grid.New(session, s.cfg.GridID),
		s.cfg.BaseURL+s.cfg.CalendarPath, s.cfg.StockPageCap,
	)
	records, err := scraper.Run(ctx)
	if err != nil {
		return CalendarSyncResult{}, err
	}
	return s.persistAppointments(ctx, records), nil
}

// persistAppointments matches or creates patients by name and upserts
// appointments on their (patient, date, time) natural key. Per-record
// failures are collected, never aborting the batch.
func (s *Service) persistAppointments(ctx context.Context, records []AppointmentRecord) CalendarSyncResult {
	result := CalendarSyncResult{Appointments: records}
	for _, rec := range records {
		patient, _, err := s.store.FindOrCreatePatient(ctx, clinicstore.Patient{Name: rec.PatientName})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rec.PatientName, err))
			continue
		}

		appointment := clinicstore.Appointment{
			PatientID:    patient.ID,
			Date:         rec.Date,
			Time:         rec.Time,
			Status:       rec.Status,
			Dose:         rec.Dose,
			Observations: rec.Observations,
		}
		if rec.VaccineName != "" {
			vaccine, _, err := s.store.FindOrCreateVaccine(ctx, rec.VaccineName)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rec.VaccineName, err))
				continue
			}
			appointment.VaccineID = vaccine.ID
		}

		created, err := s.store.UpsertAppointment(ctx, appointment)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s %s %s: %v",
				rec.PatientName, rec.Date, rec.Time, err))
			continue
		}
		if created {
			result.NewAppointments++
		}
	}
	return result
}

func (s *Service) SyncUsers(ctx context.Context) (UsersSyncResult, error) {
	ctx, span := tracer.Start(ctx, "SyncUsers")
	defer span.End()

	session, err := s.open(ctx)
	if err != nil {
		return UsersSyncResult{}, err
	}
	defer session.Close()

	scraper := NewUsersScraper(
		session, grid.New(session, s.cfg.GridID),
		s.cfg.BaseURL+s.cfg.UsersPath, s.cfg.StockPageCap,
	)
	records, err := scraper.Run(ctx)
	if err != nil {
		return UsersSyncResult{}, err
	}

	result := UsersSyncResult{Users: records}
	for _, rec := range records {
		created, err := s.users.Upsert(rec.Username, rec.Name, rec.Position, s.cfg.InitialUserPassword)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rec.Username, err))
			continue
		}
		if created {
			result.Created++
			slog.DebugContext(ctx, "user account created from sync", "username", rec.Username)
		}
	}
	return result, nil
}

func (s *Service) SearchPatient(ctx context.Context, cpf, expectedName string) (PatientRecord, bool, error) {
	ctx, span := tracer.Start(ctx, "SearchPatient")
	defer span.End()

	session, err := s.open(ctx)
	if err != nil {
		return PatientRecord{}, false, err
	}
	defer session.Close()

	scraper := NewPatientSearchScraper(
		session, grid.New(session, s.cfg.GridID),
		s.cfg.BaseURL+s.cfg.PatientsPath, s.cfg.GridID,
	)
	rec, found, err := scraper.SearchByCPF(ctx, cpf, expectedName)
	if err != nil || !found {
		return rec, found, err
	}

	// Keep the local patient registry current with what the legacy
	// system returned.
	if _, _, err := s.store.FindOrCreatePatient(ctx, clinicstore.Patient{
		Name:         rec.Name,
		CPF:          rec.CPF,
		BirthDate:    rec.BirthDate,
		Responsible1: rec.Responsible1,
		Responsible2: rec.Responsible2,
		RegisterDate: rec.RegisterDate,
	}); err != nil {
		slog.WarnContext(ctx, "failed to persist searched patient", "err", err)
	}
	return rec, true, nil
}
