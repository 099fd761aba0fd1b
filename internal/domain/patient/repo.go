package patient

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/clinic/pkg/pagination"
)

// Repository defines the persistence interface for patients. Every read
// excludes tombstoned rows.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, search string, p pagination.Params) ([]*Patient, int, error)
}
