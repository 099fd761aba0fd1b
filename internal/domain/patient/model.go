package patient

import (
	"time"

	"github.com/google/uuid"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// Patient is a person receiving care. DeletedAt marks a tombstoned record;
// tombstoned patients are invisible to reads.
type Patient struct {
	ID                    uuid.UUID  `json:"id"`
	FirstName             string     `json:"first_name"`
	LastName              string     `json:"last_name"`
	DOB                   *time.Time `json:"dob,omitempty"`
	Gender                Gender     `json:"gender"`
	NationalID            *string    `json:"national_id,omitempty"`
	Phone                 *string    `json:"phone,omitempty"`
	Email                 *string    `json:"email,omitempty"`
	Address               *string    `json:"address,omitempty"`
	EmergencyContactName  *string    `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string    `json:"emergency_contact_phone,omitempty"`
	Allergies             *string    `json:"allergies,omitempty"`
	KnownConditions       *string    `json:"known_conditions,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	DeletedAt             *time.Time `json:"-"`
}

// FullName is "first last".
func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Input carries writable fields for create and partial update. Nil fields
// are left unchanged on update.
type Input struct {
	FirstName             *string `json:"first_name"`
	LastName              *string `json:"last_name"`
	DOB                   *string `json:"dob"`
	Gender                *string `json:"gender"`
	NationalID            *string `json:"national_id"`
	Phone                 *string `json:"phone"`
	Email                 *string `json:"email"`
	Address               *string `json:"address"`
	EmergencyContactName  *string `json:"emergency_contact_name"`
	EmergencyContactPhone *string `json:"emergency_contact_phone"`
	Allergies             *string `json:"allergies"`
	KnownConditions       *string `json:"known_conditions"`
}

func (in Input) empty() bool {
	return in.FirstName == nil && in.LastName == nil && in.DOB == nil && in.Gender == nil &&
		in.NationalID == nil && in.Phone == nil && in.Email == nil && in.Address == nil &&
		in.EmergencyContactName == nil && in.EmergencyContactPhone == nil &&
		in.Allergies == nil && in.KnownConditions == nil
}
