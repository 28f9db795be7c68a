// Package clinicstore is the authoritative relational store for
// vaccines, patients and appointments. Scraped data is merged into it
// by the sync reconciler; the web layer only reads from it.
package clinicstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clinicsync-backend/lib/textutil"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const Schema = `
CREATE TABLE IF NOT EXISTS vaccines (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	name_key TEXT NOT NULL UNIQUE,
	laboratory TEXT NOT NULL DEFAULT '',
	current_stock INTEGER NOT NULL DEFAULT 0,
	available_stock INTEGER NOT NULL DEFAULT 0,
	minimum_stock INTEGER NOT NULL DEFAULT 0,
	purchase_price REAL NOT NULL DEFAULT 0,
	sale_price REAL NOT NULL DEFAULT 0,
	expiry_date TEXT NOT NULL DEFAULT '',
	lot_number TEXT NOT NULL DEFAULT '',
	min_age_months INTEGER NOT NULL DEFAULT 0,
	max_age_months INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS patients (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	name_key TEXT NOT NULL,
	cpf TEXT NOT NULL DEFAULT '',
	birth_date TEXT NOT NULL DEFAULT '',
	responsible1 TEXT NOT NULL DEFAULT '',
	responsible2 TEXT NOT NULL DEFAULT '',
	register_date TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_patients_name_key ON patients(name_key);
CREATE INDEX IF NOT EXISTS idx_patients_cpf ON patients(cpf);
CREATE TABLE IF NOT EXISTS appointments (
	id TEXT PRIMARY KEY,
	patient_id INTEGER NOT NULL REFERENCES patients(id),
	vaccine_id INTEGER REFERENCES vaccines(id),
	date TEXT NOT NULL,
	time TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'scheduled',
	dose TEXT NOT NULL DEFAULT '',
	observations TEXT NOT NULL DEFAULT '',
	UNIQUE(patient_id, date, time)
);
CREATE INDEX IF NOT EXISTS idx_appointments_date ON appointments(date);
`

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// FindOrCreateVaccine matches a stock entity by case-insensitive name,
// creating an empty one when absent. The second return reports whether
// a new entity was created.
func (s *Store) FindOrCreateVaccine(ctx context.Context, name string) (Vaccine, bool, error) {
	key := textutil.NormalizeName(name)
	if key == "" {
		return Vaccine{}, false, fmt.Errorf("vaccine has no name")
	}

	v, err := s.findVaccineByKey(ctx, key)
	if err == nil {
		return v, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Vaccine{}, false, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO vaccines(name, name_key) VALUES(?, ?)`,
		name, key,
	)
	if err != nil {
		return Vaccine{}, false, fmt.Errorf("create vaccine: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Vaccine{}, false, err
	}
	return Vaccine{ID: id, Name: name}, true, nil
}

func (s *Store) findVaccineByKey(ctx context.Context, key string) (Vaccine, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, laboratory, current_stock, available_stock, minimum_stock,
			purchase_price, sale_price, expiry_date, lot_number,
			min_age_months, max_age_months, updated_at
		 FROM vaccines WHERE name_key = ?`, key)
	return scanVaccine(row)
}

func (s *Store) GetVaccine(ctx context.Context, name string) (Vaccine, error) {
	return s.findVaccineByKey(ctx, textutil.NormalizeName(name))
}

// SaveVaccine persists the entity. The available<=current invariant is
// enforced here so no caller can bypass it.
func (s *Store) SaveVaccine(ctx context.Context, v Vaccine) error {
	if err := v.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE vaccines SET name = ?, laboratory = ?, current_stock = ?,
			available_stock = ?, minimum_stock = ?, purchase_price = ?,
			sale_price = ?, expiry_date = ?, lot_number = ?,
			min_age_months = ?, max_age_months = ?,
			updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		v.Name, v.Laboratory, v.CurrentStock, v.AvailableStock,
		v.MinimumStock, v.PurchasePrice, v.SalePrice, v.ExpiryDate,
		v.LotNumber, v.MinAgeMonths, v.MaxAgeMonths, v.ID,
	)
	if err != nil {
		return fmt.Errorf("save vaccine %q: %w", v.Name, err)
	}
	return nil
}

func (s *Store) ListVaccines(ctx context.Context) ([]Vaccine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, laboratory, current_stock, available_stock, minimum_stock,
			purchase_price, sale_price, expiry_date, lot_number,
			min_age_months, max_age_months, updated_at
		 FROM vaccines ORDER BY name_key`)
	if err != nil {
		return nil, fmt.Errorf("list vaccines: %w", err)
	}
	defer rows.Close()

	var out []Vaccine
	for rows.Next() {
		v, err := scanVaccine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) CountVaccines(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vaccines`).Scan(&n)
	return n, err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanVaccine(row scannable) (Vaccine, error) {
	var v Vaccine
	err := row.Scan(
		&v.ID, &v.Name, &v.Laboratory, &v.CurrentStock, &v.AvailableStock,
		&v.MinimumStock, &v.PurchasePrice, &v.SalePrice, &v.ExpiryDate,
		&v.LotNumber, &v.MinAgeMonths, &v.MaxAgeMonths, &v.UpdatedAt,
	)
	if err != nil {
		return Vaccine{}, err
	}
	return v, nil
}

// FindPatient matches by CPF digits when the query looks like a tax id,
// otherwise by case-insensitive name.
func (s *Store) FindPatient(ctx context.Context, nameOrCPF string) (Patient, error) {
	var row *sql.Row
	if digits := digitsOnly(nameOrCPF); len(digits) == 11 {
		row = s.db.QueryRowContext(ctx,
			patientSelect+` WHERE cpf = ?`, digits)
	} else {
		row = s.db.QueryRowContext(ctx,
			patientSelect+` WHERE name_key = ?`, textutil.NormalizeName(nameOrCPF))
	}
	return scanPatient(row)
}

const patientSelect = `SELECT id, name, cpf, birth_date, responsible1, responsible2,
	register_date, created_at FROM patients`

func scanPatient(row scannable) (Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.Name, &p.CPF, &p.BirthDate, &p.Responsible1,
		&p.Responsible2, &p.RegisterDate, &p.CreatedAt,
	)
	if err != nil {
		return Patient{}, err
	}
	return p, nil
}

func digitsOnly(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

// FindOrCreatePatient matches by case-insensitive name, creating when
// absent.
func (s *Store) FindOrCreatePatient(ctx context.Context, p Patient) (Patient, bool, error) {
	key := textutil.NormalizeName(p.Name)
	if key == "" {
		return Patient{}, false, fmt.Errorf("patient has no name")
	}

	existing, err := scanPatient(s.db.QueryRowContext(ctx,
		patientSelect+` WHERE name_key = ?`, key))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Patient{}, false, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO patients(name, name_key, cpf, birth_date, responsible1, responsible2, register_date)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		p.Name, key, digitsOnly(p.CPF), p.BirthDate,
		p.Responsible1, p.Responsible2, p.RegisterDate,
	)
	if err != nil {
		return Patient{}, false, fmt.Errorf("create patient: %w", err)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return Patient{}, false, err
	}
	return p, true, nil
}

// UpsertAppointment creates or updates an appointment matched by its
// (patient, date, time) natural key. Surrogate ids are assigned on
// create.
func (s *Store) UpsertAppointment(ctx context.Context, a Appointment) (created bool, err error) {
	var existingID string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM appointments WHERE patient_id = ? AND date = ? AND time = ?`,
		a.PatientID, a.Date, a.Time,
	).Scan(&existingID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		id := a.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO appointments(id, patient_id, vaccine_id, date, time, status, dose, observations)
			 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
			id, a.PatientID, nullableID(a.VaccineID), a.Date, a.Time,
			a.Status, a.Dose, a.Observations,
		)
		if err != nil {
			return false, fmt.Errorf("create appointment: %w", err)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("find appointment: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE appointments SET vaccine_id = ?, status = ?, dose = ?, observations = ?
		 WHERE id = ?`,
		nullableID(a.VaccineID), a.Status, a.Dose, a.Observations, existingID,
	)
	if err != nil {
		return false, fmt.Errorf("update appointment: %w", err)
	}
	return false, nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func (s *Store) GetAppointment(ctx context.Context, id string) (Appointment, error) {
	row := s.db.QueryRowContext(ctx, appointmentSelect+` WHERE a.id = ?`, id)
	return scanAppointment(row)
}

const appointmentSelect = `
SELECT a.id, a.patient_id, COALESCE(a.vaccine_id, 0), p.name,
	COALESCE(v.name, ''), a.date, a.time, a.status, a.dose, a.observations
FROM appointments a
JOIN patients p ON p.id = a.patient_id
LEFT JOIN vaccines v ON v.id = a.vaccine_id`

func scanAppointment(row scannable) (Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID, &a.PatientID, &a.VaccineID, &a.PatientName, &a.VaccineName,
		&a.Date, &a.Time, &a.Status, &a.Dose, &a.Observations,
	)
	if err != nil {
		return Appointment{}, err
	}
	return a, nil
}

func (s *Store) ListAppointmentsByDate(ctx context.Context, date string) ([]Appointment, error) {
	rows, err := s.db.QueryContext(ctx,
		appointmentSelect+` WHERE a.date = ? ORDER BY a.time`, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) CountAppointments(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM appointments`).Scan(&n)
	return n, err
}
