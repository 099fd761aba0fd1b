package audit

import (
	"context"

	"github.com/ehr/clinic/internal/platform/db"
	"github.com/ehr/clinic/pkg/pagination"
)

// Lister reads persisted audit records for one tenant.
type Lister interface {
	List(ctx context.Context, tenantID string, f Filter, limit, offset int) ([]*Record, int, error)
}

type Service struct {
	store         Lister
	defaultTenant string
}

func NewService(store Lister, defaultTenant string) *Service {
	return &Service{store: store, defaultTenant: defaultTenant}
}

// ListLogs returns the request tenant's audit records, newest first.
func (s *Service) ListLogs(ctx context.Context, f Filter, p pagination.Params) ([]*Record, int, error) {
	tenant := db.TenantFromContext(ctx)
	if tenant == "" {
		tenant = s.defaultTenant
	}
	return s.store.List(ctx, tenant, f, p.Limit, p.Offset())
}
