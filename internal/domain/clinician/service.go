package clinician

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/clinic/internal/domain/audit"
	"github.com/ehr/clinic/internal/platform/apperr"
	"github.com/ehr/clinic/internal/platform/db"
	"github.com/ehr/clinic/pkg/pagination"
)

const objectType = "clinician"

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

// Create attaches a clinician profile to an existing doctor account.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Clinician, error) {
	if req.UserID == uuid.Nil {
		return nil, apperr.InvalidState("user_id is required")
	}
	account, err := s.repo.GetStaffAccount(ctx, req.UserID)
	if err != nil {
		err = db.Classify(err)
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.InvalidState("staff account %s does not exist", req.UserID)
		}
		return nil, err
	}
	if account.Role != "doctor" {
		return nil, apperr.InvalidState("staff account must have the doctor role")
	}

	if _, err := s.repo.GetByUserID(ctx, req.UserID); err == nil {
		return nil, apperr.Conflict("Clinician profile already exists for this user")
	} else if err = db.Classify(err); !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	if req.DepartmentID != nil {
		ok, err := s.repo.DepartmentExists(ctx, *req.DepartmentID)
		if err != nil {
			return nil, db.Classify(err)
		}
		if !ok {
			return nil, apperr.NotFound("Department not found")
		}
	}

	c := &Clinician{
		UserID:         req.UserID,
		DepartmentID:   req.DepartmentID,
		LicenseNumber:  req.LicenseNumber,
		Specialization: req.Specialization,
		Phone:          req.Phone,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		err = db.Classify(err)
		if apperr.Is(err, apperr.KindConflict) {
			return nil, apperr.Conflict("Clinician profile already exists for this user")
		}
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{Verb: audit.ActionCreate, ObjectType: objectType, ObjectID: c.ID.String(), Payload: req})
	return s.Get(ctx, c.ID)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Clinician, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, p pagination.Params) ([]*Clinician, int, error) {
	out, total, err := s.repo.List(ctx, p)
	if err != nil {
		return nil, 0, db.Classify(err)
	}
	return out, total, nil
}

// Delete removes a profile that no order references.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	n, err := s.repo.CountOrders(ctx, id)
	if err != nil {
		return db.Classify(err)
	}
	if n > 0 {
		return apperr.Conflict("Cannot delete clinician referenced by %d prescriptions", n)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		err = db.Classify(err)
		if apperr.Is(err, apperr.KindInvalidState) {
			// An order was inserted after the count; the foreign key held.
			return apperr.Conflict("Cannot delete clinician referenced by prescriptions")
		}
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.NotFound("Clinician not found")
		}
		return err
	}
	s.audit.Record(ctx, audit.Entry{Verb: audit.ActionDelete, ObjectType: objectType, ObjectID: id.String()})
	return nil
}

func notFound(err error) error {
	err = db.Classify(err)
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.NotFound("Clinician not found")
	}
	return err
}
