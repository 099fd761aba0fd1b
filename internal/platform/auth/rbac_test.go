package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/clinic/internal/platform/apperr"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"admin", RoleAdmin},
		{"Doctor", RoleDoctor},
		{" pharmacist ", RolePharmacist},
		{"receptionist", RoleReceptionist},
		{"nurse", RoleInvalid},
		{"", RoleInvalid},
		{"invalid", RoleInvalid},
	}
	for _, tt := range tests {
		if got := ParseRole(tt.in); got != tt.want {
			t.Errorf("ParseRole(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestAuthorize_Table(t *testing.T) {
	A, D, P, R := RoleAdmin, RoleDoctor, RolePharmacist, RoleReceptionist
	allowed := map[Operation][]Role{
		OpPatientRead:     {A, D, R},
		OpPatientWrite:    {A, D, R},
		OpPatientDelete:   {A},
		OpPatientRecords:  {A, D},
		OpOrderRead:       {A, D, P},
		OpOrderCreate:     {A, D},
		OpOrderUpdate:     {A, D},
		OpInventoryRead:   {A, D, P},
		OpInventoryWrite:  {A, P},
		OpInventoryDelete: {A},
		OpClinicianRead:   {A, D, R},
		OpClinicianWrite:  {A},
		OpAuditRead:       {A},
	}
	if len(allowed) != int(opCount) {
		t.Fatalf("table covers %d operations, expected %d", len(allowed), opCount)
	}

	for op, roles := range allowed {
		want := make(map[Role]bool)
		for _, r := range roles {
			want[r] = true
		}
		for r := RoleInvalid; r < roleCount; r++ {
			err := Authorize(r, op)
			if want[r] && err != nil {
				t.Errorf("%s should be allowed %s: %v", r, op, err)
			}
			if !want[r] {
				if err == nil {
					t.Errorf("%s should be denied %s", r, op)
				} else if !apperr.Is(err, apperr.KindForbidden) {
					t.Errorf("expected Forbidden, got %v", err)
				}
			}
		}
	}
}

func TestAuthorize_OutOfRange(t *testing.T) {
	if Authorize(RoleAdmin, opCount) == nil {
		t.Error("expected unknown operation to be denied")
	}
	if Authorize(Role(200), OpPatientRead) == nil {
		t.Error("expected out-of-range role to be denied")
	}
}

func TestOnlyAdminAndPharmacistMutateInventory(t *testing.T) {
	got := AllowedRoles(OpInventoryWrite)
	if len(got) != 2 || got[0] != "admin" || got[1] != "pharmacist" {
		t.Errorf("unexpected inventory.write roles: %v", got)
	}
}

func runRequireOperation(t *testing.T, op Operation, ctx context.Context) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil).WithContext(ctx)
	c := e.NewContext(req, httptest.NewRecorder())
	return RequireOperation(op)(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})(c)
}

func TestRequireOperation(t *testing.T) {
	doctor := WithActor(context.Background(), Actor{ID: uuid.New(), Role: RoleDoctor})
	if err := runRequireOperation(t, OpOrderCreate, doctor); err != nil {
		t.Errorf("doctor should create orders: %v", err)
	}

	err := runRequireOperation(t, OpInventoryWrite, doctor)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
	if httpErr.Message != "required role: admin or pharmacist" {
		t.Errorf("unexpected message: %v", httpErr.Message)
	}
}

func TestRequireOperation_NoActor(t *testing.T) {
	err := runRequireOperation(t, OpPatientRead, context.Background())
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}
