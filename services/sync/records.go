package sync

import (
	"strings"

	"clinicsync-backend/lib/clinicstore"
	"clinicsync-backend/lib/fieldinfer"
	"clinicsync-backend/lib/grid"
)

// AppointmentRecord is one scheduling-grid row in canonical form.
type AppointmentRecord struct {
	PatientName  string `json:"patient_name"`
	Date         string `json:"date"` // 2006-01-02
	Time         string `json:"time"` // HH:MM
	VaccineName  string `json:"vaccine_name"`
	Status       string `json:"status"`
	Dose         string `json:"dose"`
	Observations string `json:"observations"`
}

// PatientRecord is one patient-grid row. Verified reports whether the
// row's text actually contained the searched CPF; a permissive
// fallback match leaves it false.
type PatientRecord struct {
	Name         string `json:"name"`
	BirthDate    string `json:"birth_date"`
	Responsible1 string `json:"responsible1"`
	Responsible2 string `json:"responsible2"`
	RegisterDate string `json:"register_date"`
	CPF          string `json:"cpf"`
	Verified     bool   `json:"verified"`
}

// UserRecord is one user-registration row.
type UserRecord struct {
	Username     string `json:"username"`
	Name         string `json:"name"`
	Position     string `json:"position"`
	RegisterDate string `json:"register_date"`
}

// Scheduling grid column order: patient, date, time, vaccine, status,
// dose, observations.
func appointmentFromRow(row grid.Row) (AppointmentRecord, bool) {
	rec := AppointmentRecord{
		PatientName:  row.CellText(0),
		Time:         row.CellText(2),
		VaccineName:  row.CellText(3),
		Status:       normalizeStatus(row.CellText(4)),
		Dose:         row.CellText(5),
		Observations: row.CellText(6),
	}
	if rec.PatientName == "" {
		return AppointmentRecord{}, false
	}
	date, ok := fieldinfer.ParseDate(row.CellText(1))
	if !ok {
		return AppointmentRecord{}, false
	}
	rec.Date = date.Format("2006-01-02")
	return rec, true
}

// normalizeStatus maps the legacy system's Portuguese labels to the
// canonical status values. Unknown labels default to scheduled.
func normalizeStatus(label string) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "concluído", "concluido", "realizado", "aplicada", "completed":
		return clinicstore.StatusCompleted
	case "cancelado", "cancelada", "cancelled":
		return clinicstore.StatusCancelled
	default:
		return clinicstore.StatusScheduled
	}
}

// User grid column order: username, name, position, register date.
func userFromRow(row grid.Row) (UserRecord, bool) {
	rec := UserRecord{
		Username:     row.CellText(0),
		Name:         row.CellText(1),
		Position:     row.CellText(2),
		RegisterDate: row.CellText(3),
	}
	if rec.Username == "" {
		return UserRecord{}, false
	}
	return rec, true
}

// Patient grid column order: name, birth date, responsible 1,
// responsible 2, register date. The CPF is not a column; it is filled
// in from the search that produced the row.
func patientFromRow(row grid.Row, cpf string) (PatientRecord, bool) {
	rec := PatientRecord{
		Name:         row.CellText(0),
		BirthDate:    row.CellText(1),
		Responsible1: row.CellText(2),
		Responsible2: row.CellText(3),
		RegisterDate: row.CellText(4),
		CPF:          fieldinfer.FormatCPF(cpf),
	}
	if rec.Name == "" || len(rec.Name) <= 2 {
		return PatientRecord{}, false
	}
	return rec, true
}

func stockFromRow(row grid.Row) (fieldinfer.StockRecord, bool, bool) {
	rec, fallback := fieldinfer.InferStockColumns(row.Cells)
	if strings.TrimSpace(rec.Name) == "" {
		return fieldinfer.StockRecord{}, false, false
	}
	return rec, fallback, true
}
