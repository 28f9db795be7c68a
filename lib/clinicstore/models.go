package clinicstore

import (
	"fmt"
	"time"
)

// Vaccine is one stock entity, keyed by case-insensitive name.
type Vaccine struct {
	ID             int64
	Name           string
	Laboratory     string
	CurrentStock   int
	AvailableStock int
	MinimumStock   int
	PurchasePrice  float64
	SalePrice      float64
	ExpiryDate     string
	LotNumber      string
	MinAgeMonths   int
	MaxAgeMonths   int
	UpdatedAt      time.Time
}

// Validate enforces the stock invariant before any persist.
func (v Vaccine) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("vaccine has no name")
	}
	if v.AvailableStock > v.CurrentStock {
		return fmt.Errorf(
			"vaccine %q: available stock %d exceeds current stock %d",
			v.Name, v.AvailableStock, v.CurrentStock,
		)
	}
	return nil
}

type Patient struct {
	ID           int64
	Name         string
	CPF          string
	BirthDate    string
	Responsible1 string
	Responsible2 string
	RegisterDate string
	CreatedAt    time.Time
}

// Appointment statuses. Scraped rows carry the legacy system's
// Portuguese labels, persisted rows always use the canonical form.
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

type Appointment struct {
	ID           string
	PatientID    int64
	VaccineID    int64
	PatientName  string
	VaccineName  string
	Date         string // 2006-01-02
	Time         string // HH:MM
	Status       string
	Dose         string
	Observations string
}

// IsOverdue reports whether the appointment's slot has passed without
// it being completed or cancelled. Computed at read time, never
// persisted.
func (a Appointment) IsOverdue(now time.Time) bool {
	if a.Status == StatusCompleted || a.Status == StatusCancelled {
		return false
	}
	date, err := time.Parse("2006-01-02", a.Date)
	if err != nil {
		return false
	}
	today := now.Format("2006-01-02")
	switch {
	case date.Format("2006-01-02") < today:
		return true
	case date.Format("2006-01-02") == today:
		return a.Time != "" && a.Time < now.Format("15:04")
	}
	return false
}
