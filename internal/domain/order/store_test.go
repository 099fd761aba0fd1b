package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/clinic/internal/domain/inventory"
	"github.com/ehr/clinic/internal/platform/db"
	"github.com/ehr/clinic/pkg/pagination"
)

// memStore backs both the order and inventory repositories. Transactions
// are serialized and roll back by restoring a snapshot.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	stock      map[uuid.UUID]*inventory.Item
	patients   map[uuid.UUID]*PatientHeader
	clinicians map[uuid.UUID]string
	orders     map[uuid.UUID]*Order
	items      []*Item

	// insertErrs are returned by successive Insert calls before any
	// insert succeeds.
	insertErrs []error
	txCount    int
}

func newMemStore() *memStore {
	return &memStore{
		stock:      map[uuid.UUID]*inventory.Item{},
		patients:   map[uuid.UUID]*PatientHeader{},
		clinicians: map[uuid.UUID]string{},
		orders:     map[uuid.UUID]*Order{},
	}
}

func (s *memStore) addStock(sku, name string, qty int) uuid.UUID {
	id := uuid.New()
	s.stock[id] = &inventory.Item{ID: id, SKU: sku, Name: name, Quantity: qty}
	return id
}

func (s *memStore) addPatient(first, last string) uuid.UUID {
	id := uuid.New()
	s.patients[id] = &PatientHeader{ID: id, FirstName: first, LastName: last, Gender: "other"}
	return id
}

func (s *memStore) addClinician(name string) uuid.UUID {
	id := uuid.New()
	s.clinicians[id] = name
	return id
}

func (s *memStore) quantity(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[id].Quantity
}

func (s *memStore) counts() (orders, items int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders), len(s.items)
}

type snapshot struct {
	stock  map[uuid.UUID]inventory.Item
	orders map[uuid.UUID]*Order
	items  []*Item
}

func (s *memStore) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn := snapshot{stock: map[uuid.UUID]inventory.Item{}, orders: map[uuid.UUID]*Order{}}
	for id, it := range s.stock {
		sn.stock[id] = *it
	}
	for id, o := range s.orders {
		sn.orders[id] = o
	}
	sn.items = append(sn.items, s.items...)
	return sn
}

func (s *memStore) restore(sn snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.stock {
		if it, ok := sn.stock[id]; ok {
			cp := it
			s.stock[id] = &cp
		}
	}
	s.orders = sn.orders
	s.items = sn.items
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.txCount++
	sn := s.snapshot()
	if err := fn(db.MarkTxScope(ctx)); err != nil {
		s.restore(sn)
		return db.Classify(err)
	}
	return nil
}

// -- order.Repository --

type orderRepo struct{ s *memStore }

func (r orderRepo) GetPatient(_ context.Context, id uuid.UUID) (*PatientHeader, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (r orderRepo) GetClinicianName(_ context.Context, id uuid.UUID) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	name, ok := r.s.clinicians[id]
	if !ok {
		return "", pgx.ErrNoRows
	}
	return name, nil
}

func (r orderRepo) Insert(_ context.Context, o *Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if len(r.s.insertErrs) > 0 {
		err := r.s.insertErrs[0]
		r.s.insertErrs = r.s.insertErrs[1:]
		return err
	}
	now := time.Now()
	o.ID = uuid.New()
	o.IssueDate, o.CreatedAt, o.UpdatedAt = now, now, now
	cp := *o
	r.s.orders[o.ID] = &cp
	return nil
}

func (r orderRepo) InsertItem(_ context.Context, it *Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it.ID = uuid.New()
	it.CreatedAt = time.Now()
	cp := *it
	r.s.items = append(r.s.items, &cp)
	return nil
}

func (r orderRepo) GetByID(_ context.Context, id uuid.UUID) (*Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *o
	if p, ok := r.s.patients[o.PatientID]; ok {
		cp.PatientName = p.FullName()
	}
	cp.ClinicianName = r.s.clinicians[o.ClinicianID]
	return &cp, nil
}

func (r orderRepo) ItemsFor(_ context.Context, ids []uuid.UUID) (map[uuid.UUID][]*Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := map[uuid.UUID][]*Item{}
	for _, it := range r.s.items {
		if want[it.OrderID] {
			cp := *it
			out[it.OrderID] = append(out[it.OrderID], &cp)
		}
	}
	for _, list := range out {
		sort.Slice(list, func(i, j int) bool { return list[i].Position < list[j].Position })
	}
	return out, nil
}

func (r orderRepo) Update(_ context.Context, id uuid.UUID, notes *string, status *Status) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return pgx.ErrNoRows
	}
	cp := *o
	if notes != nil {
		cp.Notes = notes
	}
	if status != nil {
		cp.Status = *status
	}
	cp.UpdatedAt = time.Now()
	r.s.orders[id] = &cp
	return nil
}

func (r orderRepo) List(_ context.Context, f ListFilter, p pagination.Params) ([]*Summary, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*Summary
	for _, o := range r.s.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.PatientID != nil && o.PatientID != *f.PatientID {
			continue
		}
		n := 0
		for _, it := range r.s.items {
			if it.OrderID == o.ID {
				n++
			}
		}
		out = append(out, &Summary{ID: o.ID, PatientID: o.PatientID, ClinicianID: o.ClinicianID,
			IssueDate: o.IssueDate, Status: o.Status, ItemsCount: n, CreatedAt: o.CreatedAt})
	}
	return out, len(out), nil
}

func (r orderRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*Order
	for _, o := range r.s.orders {
		if o.PatientID == patientID {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssueDate.After(out[j].IssueDate) })
	return out, nil
}

// -- inventory.Repository --

type stockRepo struct{ s *memStore }

func (r stockRepo) Create(context.Context, *inventory.Item) error { return nil }

func (r stockRepo) GetByID(_ context.Context, id uuid.UUID) (*inventory.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.stock[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *it
	return &cp, nil
}

func (r stockRepo) GetBySKU(context.Context, string) (*inventory.Item, error) {
	return nil, pgx.ErrNoRows
}

func (r stockRepo) Update(context.Context, uuid.UUID, inventory.Changes) error { return nil }
func (r stockRepo) Delete(context.Context, uuid.UUID) error       { return nil }

func (r stockRepo) List(context.Context, inventory.Filter, pagination.Params) ([]*inventory.Item, int, error) {
	return nil, 0, nil
}

func (r stockRepo) LockByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*inventory.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[uuid.UUID]*inventory.Item{}
	for _, id := range ids {
		if it, ok := r.s.stock[id]; ok {
			cp := *it
			out[id] = &cp
		}
	}
	return out, nil
}

func (r stockRepo) Decrement(_ context.Context, id uuid.UUID, qty int) (int, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.stock[id]
	if !ok || it.Quantity < qty {
		return 0, false, nil
	}
	cp := *it
	cp.Quantity -= qty
	r.s.stock[id] = &cp
	return cp.Quantity, true, nil
}
