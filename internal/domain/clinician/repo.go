package clinician

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/clinic/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, c *Clinician) error
	GetByID(ctx context.Context, id uuid.UUID) (*Clinician, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Clinician, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, p pagination.Params) ([]*Clinician, int, error)

	// GetStaffAccount returns a live (not deleted) user.
	GetStaffAccount(ctx context.Context, userID uuid.UUID) (*StaffAccount, error)
	DepartmentExists(ctx context.Context, id uuid.UUID) (bool, error)
	// CountOrders counts prescriptions issued by the clinician.
	CountOrders(ctx context.Context, id uuid.UUID) (int, error)
}
