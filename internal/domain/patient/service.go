package patient

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/clinic/internal/domain/audit"
	"github.com/ehr/clinic/internal/platform/apperr"
	"github.com/ehr/clinic/internal/platform/db"
	"github.com/ehr/clinic/pkg/pagination"
)

const objectType = "patient"

type Service struct {
	repo  Repository
	audit audit.Recorder
}

func NewService(repo Repository, recorder audit.Recorder) *Service {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Service{repo: repo, audit: recorder}
}

func (s *Service) Create(ctx context.Context, in Input) (*Patient, error) {
	if in.FirstName == nil || strings.TrimSpace(*in.FirstName) == "" ||
		in.LastName == nil || strings.TrimSpace(*in.LastName) == "" {
		return nil, apperr.InvalidState("first_name and last_name are required")
	}
	p := &Patient{Gender: GenderOther}
	if err := apply(p, in); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, db.Classify(err)
	}
	s.audit.Record(ctx, audit.Entry{Verb: audit.ActionCreate, ObjectType: objectType, ObjectID: p.ID.String(), Payload: in})
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (*Patient, error) {
	if in.empty() {
		return nil, apperr.InvalidState("at least one field must be provided")
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(p, in); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, notFound(err)
	}
	s.audit.Record(ctx, audit.Entry{Verb: audit.ActionUpdate, ObjectType: objectType, ObjectID: id.String(), Payload: in})
	return s.Get(ctx, id)
}

// Delete tombstones the patient. Orders keep referencing the row.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return notFound(err)
	}
	s.audit.Record(ctx, audit.Entry{Verb: audit.ActionDelete, ObjectType: objectType, ObjectID: id.String()})
	return nil
}

func (s *Service) List(ctx context.Context, search string, p pagination.Params) ([]*Patient, int, error) {
	patients, total, err := s.repo.List(ctx, strings.TrimSpace(search), p)
	if err != nil {
		return nil, 0, db.Classify(err)
	}
	return patients, total, nil
}

func apply(p *Patient, in Input) error {
	if in.FirstName != nil {
		v := strings.TrimSpace(*in.FirstName)
		if v == "" {
			return apperr.InvalidState("first_name must not be empty")
		}
		p.FirstName = v
	}
	if in.LastName != nil {
		v := strings.TrimSpace(*in.LastName)
		if v == "" {
			return apperr.InvalidState("last_name must not be empty")
		}
		p.LastName = v
	}
	if in.Gender != nil {
		g := Gender(strings.ToLower(*in.Gender))
		if !g.Valid() {
			return apperr.InvalidState("gender must be one of male, female, other")
		}
		p.Gender = g
	}
	if in.DOB != nil {
		d, err := time.Parse("2006-01-02", *in.DOB)
		if err != nil {
			return apperr.InvalidState("dob must be YYYY-MM-DD")
		}
		if d.After(time.Now()) {
			return apperr.InvalidState("dob must not be in the future")
		}
		p.DOB = &d
	}
	set := func(dst **string, v *string) {
		if v != nil {
			*dst = v
		}
	}
	set(&p.NationalID, in.NationalID)
	set(&p.Phone, in.Phone)
	set(&p.Email, in.Email)
	set(&p.Address, in.Address)
	set(&p.EmergencyContactName, in.EmergencyContactName)
	set(&p.EmergencyContactPhone, in.EmergencyContactPhone)
	set(&p.Allergies, in.Allergies)
	set(&p.KnownConditions, in.KnownConditions)
	return nil
}

func notFound(err error) error {
	err = db.Classify(err)
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.NotFound("Patient not found")
	}
	return err
}
