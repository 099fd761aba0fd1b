package inventory

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/clinic/internal/domain/audit"
	"github.com/ehr/clinic/internal/platform/apperr"
	"github.com/ehr/clinic/internal/platform/db"
	"github.com/ehr/clinic/pkg/pagination"
)

const objectType = "inventory"

// ListQuery carries the caller-facing list switches.
type ListQuery struct {
	Search       string
	LowStock     bool
	ExpiringSoon bool
}

type Service struct {
	repo             Repository
	tx               db.TxRunner
	audit            audit.Recorder
	lowStock         int
	expiryWindowDays int
}

func NewService(repo Repository, tx db.TxRunner, recorder audit.Recorder, lowStockThreshold, expiryWindowDays int) *Service {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Service{repo: repo, tx: tx, audit: recorder, lowStock: lowStockThreshold, expiryWindowDays: expiryWindowDays}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Item, error) {
	sku := strings.TrimSpace(req.SKU)
	name := strings.TrimSpace(req.Name)
	if sku == "" || name == "" {
		return nil, apperr.InvalidState("sku and name are required")
	}
	if req.Quantity < 0 {
		return nil, apperr.InvalidState("quantity must not be negative")
	}
	item := &Item{
		SKU:         sku,
		Name:        name,
		Description: req.Description,
		BatchNumber: req.BatchNumber,
		Unit:        req.Unit,
		Quantity:    req.Quantity,
		Location:    req.Location,
	}
	if req.ExpiryDate != nil {
		d, err := ParseDate(*req.ExpiryDate)
		if err != nil {
			return nil, apperr.InvalidState("expiry_date must be YYYY-MM-DD")
		}
		item.ExpiryDate = &d
	}

	if err := s.ensureSKUFree(ctx, sku, uuid.Nil); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, skuConflict(err)
	}
	s.audit.Record(ctx, audit.Entry{Verb: audit.ActionCreate, ObjectType: objectType, ObjectID: item.ID.String(), Payload: req})
	return item, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, id)
	}
	return item, nil
}

// Update applies a partial change under a row lock, so a concurrent stock
// reservation either lands before the lock or waits for this write.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Item, error) {
	if req.empty() {
		return nil, apperr.InvalidState("at least one field must be provided")
	}
	ch, err := req.changes()
	if err != nil {
		return nil, err
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		locked, err := s.repo.LockByIDs(ctx, []uuid.UUID{id})
		if err != nil {
			return err
		}
		item, ok := locked[id]
		if !ok {
			return apperr.NotFound("Inventory item %s not found", id)
		}
		if ch.SKU != nil && *ch.SKU != item.SKU {
			if err := s.ensureSKUFree(ctx, *ch.SKU, id); err != nil {
				return err
			}
		}
		return s.repo.Update(ctx, id, ch)
	})
	if err != nil {
		if apperr.Is(db.Classify(err), apperr.KindNotFound) {
			return nil, notFound(err, id)
		}
		return nil, skuConflict(err)
	}
	s.audit.Record(ctx, audit.Entry{Verb: audit.ActionUpdate, ObjectType: objectType, ObjectID: id.String(), Payload: req})
	return s.Get(ctx, id)
}

// Delete removes an item. Order lines that referenced it keep their
// medication details and lose only the inventory link.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	item, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFound(err, id)
	}
	s.audit.Record(ctx, audit.Entry{Verb: audit.ActionDelete, ObjectType: objectType, ObjectID: id.String(),
		Payload: map[string]string{"sku": item.SKU, "name": item.Name}})
	return nil
}

func (s *Service) List(ctx context.Context, q ListQuery, p pagination.Params) ([]*Item, int, error) {
	f := Filter{Search: strings.TrimSpace(q.Search)}
	if q.LowStock {
		f.LowStockBelow = s.lowStock
	}
	if q.ExpiringSoon {
		f.ExpiringWithinDays = s.expiryWindowDays
	}
	items, total, err := s.repo.List(ctx, f, p)
	if err != nil {
		return nil, 0, db.Classify(err)
	}
	return items, total, nil
}

func (s *Service) ensureSKUFree(ctx context.Context, sku string, self uuid.UUID) error {
	existing, err := s.repo.GetBySKU(ctx, sku)
	if err != nil {
		if apperr.Is(db.Classify(err), apperr.KindNotFound) {
			return nil
		}
		return db.Classify(err)
	}
	if existing.ID != self {
		return apperr.Conflict("SKU already exists")
	}
	return nil
}

func (r UpdateRequest) changes() (Changes, error) {
	ch := Changes{
		Description: r.Description,
		BatchNumber: r.BatchNumber,
		Unit:        r.Unit,
		Location:    r.Location,
	}
	if r.SKU != nil {
		sku := strings.TrimSpace(*r.SKU)
		if sku == "" {
			return Changes{}, apperr.InvalidState("sku must not be empty")
		}
		ch.SKU = &sku
	}
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		if name == "" {
			return Changes{}, apperr.InvalidState("name must not be empty")
		}
		ch.Name = &name
	}
	if r.Quantity != nil {
		if *r.Quantity < 0 {
			return Changes{}, apperr.InvalidState("quantity must not be negative")
		}
		ch.Quantity = r.Quantity
	}
	if r.ExpiryDate != nil {
		d, err := ParseDate(*r.ExpiryDate)
		if err != nil {
			return Changes{}, apperr.InvalidState("expiry_date must be YYYY-MM-DD")
		}
		ch.ExpiryDate = &d
	}
	return ch, nil
}

// skuConflict covers the race between the SKU pre-check and the write.
func skuConflict(err error) error {
	err = db.Classify(err)
	if apperr.Is(err, apperr.KindConflict) && db.ConstraintName(err) == "inventory_sku_key" {
		return apperr.Conflict("SKU already exists")
	}
	return err
}
