package order

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/clinic/internal/domain/audit"
	"github.com/ehr/clinic/internal/platform/apperr"
	"github.com/ehr/clinic/internal/platform/auth"
	"github.com/ehr/clinic/internal/platform/db"
	"github.com/ehr/clinic/pkg/pagination"
)

// Service serves the order read paths and partial updates. Creation goes
// through the Engine.
type Service struct {
	repo   Repository
	engine *Engine
	audit  audit.Recorder
}

func NewService(repo Repository, engine *Engine, recorder audit.Recorder) *Service {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Service{repo: repo, engine: engine, audit: recorder}
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, req CreateRequest) (*Order, error) {
	return s.engine.CreateOrder(ctx, actor, req)
}

// UpdateOrder changes notes and/or status. Items and stock are untouched;
// cancelling an order does not restock.
func (s *Service) UpdateOrder(ctx context.Context, actor auth.Actor, id uuid.UUID, p Patch) (*Order, error) {
	if err := auth.Authorize(actor.Role, auth.OpOrderUpdate); err != nil {
		return nil, err
	}
	ctx = auth.WithActor(ctx, actor)
	if p.Notes == nil && p.Status == nil {
		return nil, apperr.InvalidState("no fields to update")
	}
	var status *Status
	if p.Status != nil {
		st, err := ParseStatus(*p.Status)
		if err != nil {
			return nil, err
		}
		status = &st
	}
	if err := s.repo.Update(ctx, id, p.Notes, status); err != nil {
		return nil, notFound(err, "Prescription not found")
	}
	s.audit.Record(ctx, audit.Entry{Verb: audit.ActionUpdate, ObjectType: objectType, ObjectID: id.String(), Payload: p})
	return load(ctx, s.repo, id)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	return load(ctx, s.repo, id)
}

func (s *Service) List(ctx context.Context, f ListFilter, p pagination.Params) ([]*Summary, int, error) {
	f.Search = strings.TrimSpace(f.Search)
	items, total, err := s.repo.List(ctx, f, p)
	if err != nil {
		return nil, 0, db.Classify(err)
	}
	return items, total, nil
}

// PatientRecords returns the patient with every order issued to them,
// newest first, each with its items.
func (s *Service) PatientRecords(ctx context.Context, patientID uuid.UUID) (*Records, error) {
	p, err := s.repo.GetPatient(ctx, patientID)
	if err != nil {
		return nil, notFound(err, "Patient not found")
	}
	orders, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, db.Classify(err)
	}
	if orders == nil {
		orders = []*Order{}
	}
	ids := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	items := map[uuid.UUID][]*Item{}
	if len(ids) > 0 {
		if items, err = s.repo.ItemsFor(ctx, ids); err != nil {
			return nil, db.Classify(err)
		}
	}
	for _, o := range orders {
		o.Items = items[o.ID]
		if o.Items == nil {
			o.Items = []*Item{}
		}
	}
	return &Records{Patient: p, Prescriptions: orders}, nil
}
