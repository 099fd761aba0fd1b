package inventory

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/clinic/pkg/pagination"
)

// Repository defines the persistence interface for inventory items.
type Repository interface {
	Create(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	GetBySKU(ctx context.Context, sku string) (*Item, error)
	// Update writes only the fields set in ch.
	Update(ctx context.Context, id uuid.UUID, ch Changes) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, p pagination.Params) ([]*Item, int, error)

	// LockByIDs takes row locks on the given items in ascending id order
	// and returns those that exist. It must run inside a transaction.
	LockByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Item, error)
	// Decrement subtracts qty when at least qty is on hand. ok is false when
	// the guard rejected the update.
	Decrement(ctx context.Context, id uuid.UUID, qty int) (remaining int, ok bool, err error)
}
