package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/clinic/internal/platform/apperr"
	"github.com/ehr/clinic/internal/platform/db"
)

// Ledger performs stock reads and decrements. Mutating calls participate in
// the caller's transaction and never commit on their own.
type Ledger struct {
	repo     Repository
	lowStock int
	today    func() time.Time
}

func NewLedger(repo Repository, lowStockThreshold int) *Ledger {
	return &Ledger{
		repo:     repo,
		lowStock: lowStockThreshold,
		today: func() time.Time {
			now := time.Now().UTC()
			return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		},
	}
}

var errNoTxScope = apperr.New(apperr.KindInternal, "inventory reservation requires an open transaction")

// LockItems row-locks every distinct id in ascending order. Any id that does
// not resolve is NotFound.
func (l *Ledger) LockItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Item, error) {
	if !db.HasTxScope(ctx) {
		return nil, errNoTxScope
	}
	distinct := dedupe(ids)
	items, err := l.repo.LockByIDs(ctx, distinct)
	if err != nil {
		return nil, db.Classify(err)
	}
	for _, id := range distinct {
		if _, ok := items[id]; !ok {
			return nil, apperr.NotFound("Inventory item %s not found", id)
		}
	}
	return items, nil
}

// CheckAndReserve locks itemID, verifies that quantity is on hand and
// decrements it. A zero quantity reserves nothing but still verifies the
// item exists.
func (l *Ledger) CheckAndReserve(ctx context.Context, itemID uuid.UUID, quantity int) (*Reservation, error) {
	if !db.HasTxScope(ctx) {
		return nil, errNoTxScope
	}
	if quantity < 0 {
		return nil, apperr.InvalidState("quantity must not be negative")
	}

	items, err := l.repo.LockByIDs(ctx, []uuid.UUID{itemID})
	if err != nil {
		return nil, db.Classify(err)
	}
	item, ok := items[itemID]
	if !ok {
		return nil, apperr.NotFound("Inventory item %s not found", itemID)
	}

	res := &Reservation{ItemID: item.ID, SKU: item.SKU, Name: item.Name, Prior: item.Quantity, New: item.Quantity}
	if quantity == 0 {
		return res, nil
	}
	if quantity > item.Quantity {
		return nil, stockError(item, item.Quantity, quantity)
	}

	remaining, ok, err := l.repo.Decrement(ctx, itemID, quantity)
	if err != nil {
		return nil, db.Classify(err)
	}
	if !ok {
		return nil, stockError(item, item.Quantity, quantity)
	}
	res.New = remaining
	return res, nil
}

// GetAvailability reads an item's stock without locking.
func (l *Ledger) GetAvailability(ctx context.Context, itemID uuid.UUID) (*Availability, error) {
	item, err := l.repo.GetByID(ctx, itemID)
	if err != nil {
		return nil, notFound(err, itemID)
	}
	return &Availability{
		ItemID:     item.ID,
		SKU:        item.SKU,
		Name:       item.Name,
		Quantity:   item.Quantity,
		ExpiryDate: item.ExpiryDate,
		LowStock:   l.lowStock > 0 && item.Quantity < l.lowStock,
		Expired:    item.ExpiryDate != nil && item.ExpiryDate.Before(l.today()),
	}, nil
}

func stockError(item *Item, available, required int) *apperr.StockError {
	return &apperr.StockError{
		InventoryID: item.ID,
		SKU:         item.SKU,
		Name:        item.Name,
		Available:   available,
		Required:    required,
	}
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func notFound(err error, id uuid.UUID) error {
	err = db.Classify(err)
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.NotFound("Inventory item %s not found", id)
	}
	return err
}
