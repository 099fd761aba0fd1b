package clinician

import (
	"time"

	"github.com/google/uuid"
)

// Clinician is the prescribing profile of a staff account.
type Clinician struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	DepartmentID   *uuid.UUID `json:"department_id,omitempty"`
	LicenseNumber  *string    `json:"license_number,omitempty"`
	Specialization *string    `json:"specialization,omitempty"`
	Phone          *string    `json:"phone,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Joined from users and departments.
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	DepartmentName *string `json:"department_name,omitempty"`
}

// StaffAccount is the subset of a user row the profile checks need.
type StaffAccount struct {
	ID   uuid.UUID
	Name string
	Role string
}

type CreateRequest struct {
	UserID         uuid.UUID  `json:"user_id"`
	DepartmentID   *uuid.UUID `json:"department_id"`
	LicenseNumber  *string    `json:"license_number"`
	Specialization *string    `json:"specialization"`
	Phone          *string    `json:"phone"`
}
