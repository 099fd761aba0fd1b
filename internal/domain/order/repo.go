package order

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/clinic/pkg/pagination"
)

// Repository defines the persistence interface for orders and the
// referential lookups order creation depends on.
type Repository interface {
	// GetPatient returns a live patient and holds a share lock on it for
	// the rest of the transaction.
	GetPatient(ctx context.Context, id uuid.UUID) (*PatientHeader, error)
	GetClinicianName(ctx context.Context, id uuid.UUID) (string, error)

	Insert(ctx context.Context, o *Order) error
	InsertItem(ctx context.Context, it *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ItemsFor(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]*Item, error)
	Update(ctx context.Context, id uuid.UUID, notes *string, status *Status) error
	List(ctx context.Context, f ListFilter, p pagination.Params) ([]*Summary, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Order, error)
}
