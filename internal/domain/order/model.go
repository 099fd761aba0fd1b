package order

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/clinic/internal/platform/apperr"
)

// Status is the fixed order lifecycle.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus normalizes s and rejects values outside the lifecycle.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", apperr.InvalidState("status must be one of active, completed, cancelled")
	}
	return st, nil
}

// Order is a prescription issued to one patient by one clinician. It is
// never persisted without items.
type Order struct {
	ID          uuid.UUID `json:"id"`
	PatientID   uuid.UUID `json:"patient_id"`
	ClinicianID uuid.UUID `json:"clinician_id"`
	IssueDate   time.Time `json:"issue_date"`
	Notes       *string   `json:"notes,omitempty"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	PatientName    string  `json:"patient_name,omitempty"`
	ClinicianName  string  `json:"clinician_name,omitempty"`
	Specialization *string `json:"specialization,omitempty"`
	Items          []*Item `json:"items"`
}

// Item is one order line. InventoryID is cleared if the stocked item is
// later removed; the medication details stay.
type Item struct {
	ID           uuid.UUID  `json:"id"`
	OrderID      uuid.UUID  `json:"prescription_id"`
	Position     int        `json:"position"`
	InventoryID  *uuid.UUID `json:"inventory_id,omitempty"`
	MedName      string     `json:"med_name"`
	Dose         *string    `json:"dose,omitempty"`
	Frequency    *string    `json:"frequency,omitempty"`
	Route        *string    `json:"route,omitempty"`
	Quantity     *int       `json:"quantity,omitempty"`
	Instructions *string    `json:"instructions,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`

	SKU         *string `json:"sku,omitempty"`
	BatchNumber *string `json:"batch_number,omitempty"`
}

// Summary is an order row in listings.
type Summary struct {
	ID            uuid.UUID `json:"id"`
	PatientID     uuid.UUID `json:"patient_id"`
	ClinicianID   uuid.UUID `json:"clinician_id"`
	IssueDate     time.Time `json:"issue_date"`
	Status        Status    `json:"status"`
	PatientName   string    `json:"patient_name"`
	ClinicianName string    `json:"clinician_name"`
	ItemsCount    int       `json:"items_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// PatientHeader is the patient portion of a records response.
type PatientHeader struct {
	ID              uuid.UUID  `json:"id"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	DOB             *time.Time `json:"dob,omitempty"`
	Gender          string     `json:"gender"`
	Allergies       *string    `json:"allergies,omitempty"`
	KnownConditions *string    `json:"known_conditions,omitempty"`
}

func (p *PatientHeader) FullName() string { return p.FirstName + " " + p.LastName }

// Records is a patient's full prescription history, newest first.
type Records struct {
	Patient       *PatientHeader `json:"patient"`
	Prescriptions []*Order       `json:"prescriptions"`
}

// ItemInput is one requested order line.
type ItemInput struct {
	InventoryID  *uuid.UUID `json:"inventory_id"`
	MedName      *string    `json:"med_name"`
	Dose         *string    `json:"dose"`
	Frequency    *string    `json:"frequency"`
	Route        *string    `json:"route"`
	Quantity     *int       `json:"quantity"`
	Instructions *string    `json:"instructions"`
}

func (in ItemInput) quantity() int {
	if in.Quantity == nil {
		return 0
	}
	return *in.Quantity
}

type CreateRequest struct {
	PatientID   uuid.UUID   `json:"patient_id"`
	ClinicianID uuid.UUID   `json:"clinician_id"`
	Notes       *string     `json:"notes"`
	Status      *string     `json:"status"`
	Items       []ItemInput `json:"items"`
}

// Patch is a partial order update. Items are immutable once issued.
type Patch struct {
	Notes  *string `json:"notes"`
	Status *string `json:"status"`
}

// ListFilter narrows an order listing.
type ListFilter struct {
	Status      Status
	PatientID   *uuid.UUID
	ClinicianID *uuid.UUID
	DateFrom    *time.Time
	DateTo      *time.Time
	Search      string
}
