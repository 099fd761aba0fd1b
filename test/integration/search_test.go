package integration

import (
	"context"
	"testing"

	"github.com/ehr/clinic/internal/domain/inventory"
	"github.com/ehr/clinic/pkg/pagination"
)

func TestInventoryList_SearchMatchesWildcardsLiterally(t *testing.T) {
	ctx := context.Background()
	tenant := newTenant(t, ctx)
	seedStock(t, ctx, tenant, "ALC_70", "Alcohol 70% swab", 50)
	seedStock(t, ctx, tenant, "ALC-90", "Alcohol 90 swab", 50)
	repo := inventory.NewItemRepo(globalPool)
	p := pagination.Params{Page: 1, Limit: 10, Sort: "name"}

	tests := []struct {
		search string
		want   int
	}{
		{"%", 1},
		{"_", 1},
		{"alcohol", 2},
		{`\`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			err := withTenantConn(ctx, tenant, func(ctx context.Context) error {
				items, total, err := repo.List(ctx, inventory.Filter{Search: tt.search}, p)
				if err != nil {
					return err
				}
				if total != tt.want || len(items) != tt.want {
					t.Errorf("search %q matched %d, want %d", tt.search, total, tt.want)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
		})
	}
}
